package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/utils"
	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"
	apptRepo "github.com/jonlee90/thepuppyday-sub014/modules/appointment/repository"
	syncEntity "github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/mapper"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"
	syncRepo "github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"
	syncService "github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/service"
	catalogRepo "github.com/jonlee90/thepuppyday-sub014/modules/catalog/repository"

	"github.com/google/uuid"
)

// calendarImportLookback is how far back the calendar preview scans for
// unmapped events.
const calendarImportLookback = 90 * 24 * time.Hour

// ImportPreview is what the admin reviews before confirming.
type ImportPreview struct {
	Rows       []CandidateRow   `json:"rows"`
	Duplicates []DuplicateMatch `json:"duplicates"`
	RowErrors  []RowParseError  `json:"row_errors,omitempty"`
}

// ImportResult reports one confirmed batch.
type ImportResult struct {
	BatchID   string          `json:"batch_id"`
	Created   int             `json:"created"`
	RowErrors []RowParseError `json:"row_errors,omitempty"`
}

// ImportService runs the preview/confirm/rollback flow for calendar and
// file imports. Previews read live data and never write; only Confirm
// creates rows, all stamped with one batch id so Rollback can find them.
type ImportService struct {
	apptRepo    apptRepo.AppointmentRepository
	catalogRepo catalogRepo.CatalogRepository
	connRepo    syncRepo.ConnectionRepository
	mappingRepo syncRepo.MappingRepository
	client      provider.Client
	tokenSvc    *syncService.TokenService
	syncSvc     *syncService.SyncService
	detector    *DuplicateDetector
	loc         *time.Location
	now         func() time.Time
}

func NewImportService(
	appointmentRepo apptRepo.AppointmentRepository,
	catalog catalogRepo.CatalogRepository,
	connRepo syncRepo.ConnectionRepository,
	mappingRepo syncRepo.MappingRepository,
	client provider.Client,
	tokenSvc *syncService.TokenService,
	syncSvc *syncService.SyncService,
	detector *DuplicateDetector,
	loc *time.Location,
) *ImportService {
	return &ImportService{
		apptRepo:    appointmentRepo,
		catalogRepo: catalog,
		connRepo:    connRepo,
		mappingRepo: mappingRepo,
		client:      client,
		tokenSvc:    tokenSvc,
		syncSvc:     syncSvc,
		detector:    detector,
		loc:         loc,
		now:         time.Now,
	}
}

// PreviewCalendar fetches recent events straight from the provider and
// returns the unmapped, parseable ones with duplicate annotations. Nothing
// is cached or persisted between preview and confirm.
func (s *ImportService) PreviewCalendar(ctx context.Context, adminID uuid.UUID) (*ImportPreview, *errors.AppError) {
	conn, err := s.connRepo.GetActiveByAdminID(ctx, adminID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}
	if conn == nil {
		return nil, errors.NewAppError(errors.ErrConnectionInactive, "no active calendar connection", nil)
	}

	accessToken, appErr := s.tokenSvc.GetValidAccessToken(ctx, conn.ID)
	if appErr != nil {
		return nil, appErr
	}
	events, err := s.client.ListEvents(ctx, accessToken, conn.CalendarID, s.now().Add(-calendarImportLookback))
	if err != nil {
		return nil, errors.NewAppError(errors.ErrProviderUnavailable, "failed to list calendar events", err)
	}

	preview := &ImportPreview{}
	rowNumber := 0
	for i := range events {
		ev := &events[i]
		if ev.Deleted() {
			continue
		}
		mapping, err := s.mappingRepo.GetByGoogleEventID(ctx, conn.ID, ev.ID)
		if err != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "failed to check event mapping", err)
		}
		if mapping != nil {
			continue
		}

		rowNumber++
		imported, err := mapper.FromGoogleEvent(ev, s.loc)
		if err != nil {
			preview.RowErrors = append(preview.RowErrors, RowParseError{RowNumber: rowNumber, Reason: err.Error()})
			continue
		}
		preview.Rows = append(preview.Rows, CandidateRow{
			RowNumber:     rowNumber,
			GoogleEventID: imported.GoogleEventID,
			CustomerName:  imported.CustomerName,
			CustomerEmail: imported.CustomerEmail,
			CustomerPhone: imported.CustomerPhone,
			PetName:       imported.PetName,
			ServiceName:   imported.ServiceName,
			AddOnNames:    imported.AddOnNames,
			StartTime:     imported.StartTime,
			Status:        imported.Status,
			Notes:         imported.Notes,
		})
	}

	matches, err := s.detector.FindDuplicates(ctx, preview.Rows)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "duplicate detection failed", err)
	}
	preview.Duplicates = matches
	logger.Info("ImportService:PreviewCalendar", "admin_id", adminID, "rows", len(preview.Rows), "duplicates", len(matches))
	return preview, nil
}

// PreviewFile parses an uploaded CSV or XLSX and annotates duplicates.
func (s *ImportService) PreviewFile(ctx context.Context, r io.Reader, filename string) (*ImportPreview, *errors.AppError) {
	var (
		rows    []CandidateRow
		rowErrs []RowParseError
		err     error
	)
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".xlsx"):
		rows, rowErrs, err = ParseXLSX(r, s.loc)
	case strings.HasSuffix(strings.ToLower(filename), ".csv"):
		rows, rowErrs, err = ParseCSV(r, s.loc)
	default:
		return nil, errors.NewAppError(errors.ErrInvalidInput, "unsupported file type, expected .csv or .xlsx", nil)
	}
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "could not parse file: "+err.Error(), err)
	}

	matches, derr := s.detector.FindDuplicates(ctx, rows)
	if derr != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "duplicate detection failed", derr)
	}
	logger.Info("ImportService:PreviewFile", "file", filename, "rows", len(rows), "duplicates", len(matches))
	return &ImportPreview{Rows: rows, Duplicates: matches, RowErrors: rowErrs}, nil
}

// Confirm creates appointments from the admin-resolved rows. Rows the admin
// chose to skip are simply not in the request. Calendar-sourced rows keep
// their existing event via a mapping; file-sourced rows are pushed out
// through the normal sync path.
func (s *ImportService) Confirm(ctx context.Context, adminID uuid.UUID, rows []CandidateRow) (*ImportResult, *errors.AppError) {
	if len(rows) == 0 {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "no rows to import", nil)
	}

	conn, err := s.connRepo.GetActiveByAdminID(ctx, adminID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}

	addOnIDs, err := s.addOnIndex(ctx)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load add-ons", err)
	}

	result := &ImportResult{BatchID: utils.GenerateID()}
	for i := range rows {
		row := &rows[i]
		if rowErr := s.importRow(ctx, adminID, conn, row, addOnIDs, result.BatchID); rowErr != nil {
			result.RowErrors = append(result.RowErrors, *rowErr)
			continue
		}
		result.Created++
	}

	logger.Info("ImportService:Confirm", "admin_id", adminID, "batch_id", result.BatchID,
		"created", result.Created, "failed", len(result.RowErrors))
	return result, nil
}

func (s *ImportService) importRow(
	ctx context.Context,
	adminID uuid.UUID,
	conn *syncEntity.CalendarConnection,
	row *CandidateRow,
	addOnIDs map[string]uuid.UUID,
	batchID string,
) *RowParseError {
	svc, err := s.catalogRepo.GetServiceByName(ctx, row.ServiceName)
	if err != nil {
		return &RowParseError{RowNumber: row.RowNumber, Reason: "service lookup failed"}
	}
	if svc == nil {
		return &RowParseError{RowNumber: row.RowNumber, Reason: "unknown service " + row.ServiceName}
	}

	customerID, err := s.apptRepo.EnsureCustomer(ctx, row.CustomerName, row.CustomerEmail, row.CustomerPhone)
	if err != nil {
		return &RowParseError{RowNumber: row.RowNumber, Reason: "customer lookup failed"}
	}
	petID, err := s.apptRepo.EnsurePet(ctx, customerID, row.PetName)
	if err != nil {
		return &RowParseError{RowNumber: row.RowNumber, Reason: "pet lookup failed"}
	}

	appt := &apptEntity.Appointment{
		CustomerID: customerID,
		PetID:      petID,
		ServiceID:  svc.ID,
		StartTime:  row.StartTime,
		Status:     row.Status,
		Notes:      row.Notes,
	}
	created, err := s.apptRepo.CreateImported(ctx, appt, batchID)
	if err != nil {
		return &RowParseError{RowNumber: row.RowNumber, Reason: "failed to create appointment"}
	}

	for _, name := range row.AddOnNames {
		addonID, ok := addOnIDs[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			logger.Warn("ImportService:importRow:UnknownAddOn", "row", row.RowNumber, "add_on", name)
			continue
		}
		if err := s.apptRepo.LinkAddOn(ctx, created.ID, addonID); err != nil {
			logger.Error("ImportService:importRow:LinkAddOn:Error", "error", err, "appointment_id", created.ID)
		}
	}

	if row.GoogleEventID != "" && conn != nil {
		// The event already exists on the calendar; adopt it instead of
		// pushing a duplicate.
		_, err := s.mappingRepo.Upsert(ctx, &syncEntity.EventMapping{
			AppointmentID: created.ID,
			ConnectionID:  conn.ID,
			GoogleEventID: row.GoogleEventID,
			LastSyncedAt:  s.now(),
			Status:        syncEntity.SyncStatusSynced,
		})
		if err != nil {
			logger.Error("ImportService:importRow:Mapping:Error", "error", err, "appointment_id", created.ID)
		}
		return nil
	}

	if conn != nil {
		// File-sourced rows go out through the normal push path; failures
		// land in the retry queue like any other sync.
		if appErr := s.syncSvc.SyncAppointment(ctx, adminID, created.ID, syncEntity.OpCreate, false); appErr != nil {
			logger.Warn("ImportService:importRow:Push:Deferred", "appointment_id", created.ID, "code", appErr.Code)
		}
	}
	return nil
}

// Rollback deletes everything one import batch created, pushing event
// deletes first. Only allowed within the rollback window.
func (s *ImportService) Rollback(ctx context.Context, adminID uuid.UUID, batchID string) (int, *errors.AppError) {
	appts, err := s.apptRepo.ListByImportBatch(ctx, batchID)
	if err != nil {
		return 0, errors.NewAppError(errors.ErrInternalServer, "failed to load import batch", err)
	}
	if len(appts) == 0 {
		return 0, errors.NewAppError(errors.ErrNotFound, "import batch not found or already rolled back", nil)
	}

	earliest := appts[0].CreatedAt
	for _, a := range appts[1:] {
		if a.CreatedAt.Before(earliest) {
			earliest = a.CreatedAt
		}
	}
	if s.now().Sub(earliest) > constants.ImportRollbackWindow {
		return 0, errors.NewAppError(errors.ErrInvalidInput, "rollback window has expired for this batch", nil)
	}

	deleted := 0
	for i := range appts {
		appt := &appts[i]
		// Event delete first so a failed appointment delete can retry the
		// whole row later; the push path tolerates already-deleted events.
		if appErr := s.syncSvc.SyncAppointment(ctx, adminID, appt.ID, syncEntity.OpDelete, true); appErr != nil {
			logger.Warn("ImportService:Rollback:PushDelete:Error", "appointment_id", appt.ID, "code", appErr.Code)
		}
		if err := s.apptRepo.DeleteByID(ctx, appt.ID); err != nil {
			logger.Error("ImportService:Rollback:Delete:Error", "error", err, "appointment_id", appt.ID)
			continue
		}
		deleted++
	}
	logger.Info("ImportService:Rollback", "batch_id", batchID, "deleted", deleted, "of", len(appts))
	return deleted, nil
}

func (s *ImportService) addOnIndex(ctx context.Context) (map[string]uuid.UUID, error) {
	addOns, err := s.catalogRepo.ListAddOns(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]uuid.UUID, len(addOns))
	for _, a := range addOns {
		index[strings.ToLower(a.Name)] = a.ID
	}
	return index, nil
}
