package service

import (
	"context"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"
	apptRepo "github.com/jonlee90/thepuppyday-sub014/modules/appointment/repository"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/mapper"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"

	"github.com/google/uuid"
)

// SyncService pushes local appointment changes to the connected calendar.
// Every attempt writes one sync log row; transient failures land in the
// durable retry queue, permanent ones mark the mapping errored and stop.
type SyncService struct {
	connRepo    repository.ConnectionRepository
	apptRepo    apptRepo.AppointmentRepository
	mappingRepo repository.MappingRepository
	syncLogRepo repository.SyncLogRepository
	retryRepo   repository.RetryRepository
	tokenSvc    *TokenService
	client      provider.Client
	quotaSvc    *QuotaService
	breaker     *Breaker
	timezone    string
	now         func() time.Time
}

func NewSyncService(
	connRepo repository.ConnectionRepository,
	appointmentRepo apptRepo.AppointmentRepository,
	mappingRepo repository.MappingRepository,
	syncLogRepo repository.SyncLogRepository,
	retryRepo repository.RetryRepository,
	tokenSvc *TokenService,
	client provider.Client,
	quotaSvc *QuotaService,
	breaker *Breaker,
	timezone string,
) *SyncService {
	return &SyncService{
		connRepo:    connRepo,
		apptRepo:    appointmentRepo,
		mappingRepo: mappingRepo,
		syncLogRepo: syncLogRepo,
		retryRepo:   retryRepo,
		tokenSvc:    tokenSvc,
		client:      client,
		quotaSvc:    quotaSvc,
		breaker:     breaker,
		timezone:    timezone,
		now:         time.Now,
	}
}

// SyncAppointment is the entry point for appointment change hooks and manual
// sync. force bypasses the eligibility check and the paused flag, but never
// an inactive connection. First-attempt transient failures are scheduled
// into the retry queue here.
func (s *SyncService) SyncAppointment(ctx context.Context, adminID, appointmentID uuid.UUID, op entity.SyncOperation, force bool) *errors.AppError {
	conn, err := s.connRepo.GetActiveByAdminID(ctx, adminID)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}
	if conn == nil {
		return errors.NewAppError(errors.ErrConnectionInactive, "no active calendar connection", nil)
	}

	if !force {
		if conn.Paused {
			return errors.NewAppError(errors.ErrSyncPaused, "sync is paused for this connection", nil)
		}
		if op != entity.OpDelete {
			appt, err := s.apptRepo.GetByID(ctx, appointmentID)
			if err != nil {
				return errors.NewAppError(errors.ErrInternalServer, "failed to load appointment", err)
			}
			if appt == nil {
				return errors.NewAppError(errors.ErrNotFound, "appointment not found", nil)
			}
			if !IsEligible(appt, conn.SettingsView(), s.now()) {
				logger.Debug("SyncService:SyncAppointment:NotEligible", "appointment_id", appointmentID)
				return nil
			}
		}
	}

	pushErr := s.syncManaged(ctx, conn, appointmentID, op)
	if pushErr == nil {
		return nil
	}

	if Classify(pushErr).Retryable() {
		return errors.NewAppError(errors.ErrProviderUnavailable, "sync failed, queued for retry", pushErr)
	}
	return errors.NewAppError(errors.ErrInternalServer, "sync failed permanently", pushErr)
}

// syncManaged runs one push under the engine's shared failure policy:
// breaker accounting on both outcomes, queued retries cleared on success,
// a retry scheduled for transient failures. Webhook reconciliation goes
// through here too so a failed recreate is redriven like any other push.
func (s *SyncService) syncManaged(ctx context.Context, conn *entity.CalendarConnection, appointmentID uuid.UUID, op entity.SyncOperation) error {
	pushErr := s.PushSync(ctx, conn, appointmentID, op)
	if pushErr == nil {
		s.breaker.RecordSuccess(ctx, conn)
		if err := s.retryRepo.DeleteByAppointmentID(ctx, appointmentID); err != nil {
			logger.Error("SyncService:syncManaged:ClearRetries:Error", "error", err, "appointment_id", appointmentID)
		}
		return nil
	}

	s.breaker.RecordFailure(ctx, conn, pushErr.Error())

	classification := Classify(pushErr)
	if classification.Retryable() {
		s.scheduleRetry(ctx, conn.ID, appointmentID, op, pushErr.Error(), classification.SuggestedDelay)
	} else {
		logger.Warn("SyncService:syncManaged:PermanentFailure",
			"appointment_id", appointmentID, "operation", op, "reason", classification.Reason)
	}
	return pushErr
}

// PushSync performs exactly one push attempt against the provider and
// appends the sync log row. Retry scheduling and breaker accounting belong
// to the callers.
func (s *SyncService) PushSync(ctx context.Context, conn *entity.CalendarConnection, appointmentID uuid.UUID, op entity.SyncOperation) error {
	err := s.pushOnce(ctx, conn, appointmentID, op)

	logEntry := &entity.SyncLogEntry{
		AppointmentID: appointmentID,
		Operation:     op,
		Outcome:       entity.OutcomeSuccess,
	}
	if err != nil {
		logEntry.Outcome = entity.OutcomeFailure
		detail := err.Error()
		logEntry.ErrorDetail = &detail
	}
	if logErr := s.syncLogRepo.Append(ctx, logEntry); logErr != nil {
		logger.Error("SyncService:PushSync:Log:Error", "error", logErr, "appointment_id", appointmentID)
	}
	return err
}

func (s *SyncService) pushOnce(ctx context.Context, conn *entity.CalendarConnection, appointmentID uuid.UUID, op entity.SyncOperation) error {
	mapping, err := s.mappingRepo.GetByAppointmentID(ctx, appointmentID)
	if err != nil {
		return err
	}

	if op == entity.OpDelete {
		return s.pushDelete(ctx, conn, appointmentID, mapping)
	}

	detail, err := s.apptRepo.GetDetail(ctx, appointmentID)
	if err != nil {
		return err
	}
	if detail == nil {
		// Appointment vanished between enqueue and attempt. Nothing to push.
		logger.Warn("SyncService:pushOnce:AppointmentGone", "appointment_id", appointmentID)
		return nil
	}

	accessToken, appErr := s.tokenSvc.GetValidAccessToken(ctx, conn.ID)
	if appErr != nil {
		return appErr
	}

	draft := mapper.ToGoogleEvent(detail, s.timezone)

	// Create vs update is decided by the mapping, not the requested
	// operation: a retried create that already succeeded once must not
	// produce a second event.
	if mapping == nil {
		s.quotaSvc.RecordCall(ctx)
		ev, err := s.client.InsertEvent(ctx, accessToken, conn.CalendarID, draft)
		if err != nil {
			return err
		}
		_, err = s.mappingRepo.Upsert(ctx, &entity.EventMapping{
			AppointmentID: appointmentID,
			ConnectionID:  conn.ID,
			GoogleEventID: ev.ID,
			LastSyncedAt:  s.now(),
			Status:        entity.SyncStatusSynced,
		})
		if err != nil {
			return err
		}
		logger.Info("SyncService:pushOnce:Created", "appointment_id", appointmentID, "event_id", ev.ID)
		return nil
	}

	s.quotaSvc.RecordCall(ctx)
	ev, err := s.client.UpdateEvent(ctx, accessToken, conn.CalendarID, mapping.GoogleEventID, draft)
	if err != nil {
		if Classify(err).Reason == ReasonNotFound {
			// The event was deleted on the Google side. Local state wins:
			// recreate it under a fresh event id.
			s.quotaSvc.RecordCall(ctx)
			ev, err = s.client.InsertEvent(ctx, accessToken, conn.CalendarID, draft)
			if err != nil {
				return err
			}
			logger.Info("SyncService:pushOnce:Recreated", "appointment_id", appointmentID, "event_id", ev.ID)
		} else {
			if stErr := s.mappingRepo.SetStatus(ctx, mapping.ID, entity.SyncStatusError); stErr != nil {
				logger.Error("SyncService:pushOnce:SetStatus:Error", "error", stErr, "mapping_id", mapping.ID)
			}
			return err
		}
	}
	if err := s.mappingRepo.UpdateSynced(ctx, mapping.ID, ev.ID, s.now()); err != nil {
		return err
	}
	logger.Info("SyncService:pushOnce:Updated", "appointment_id", appointmentID, "event_id", ev.ID)
	return nil
}

func (s *SyncService) pushDelete(ctx context.Context, conn *entity.CalendarConnection, appointmentID uuid.UUID, mapping *entity.EventMapping) error {
	if mapping == nil {
		// Never synced, nothing to remove.
		return nil
	}

	accessToken, appErr := s.tokenSvc.GetValidAccessToken(ctx, conn.ID)
	if appErr != nil {
		return appErr
	}

	s.quotaSvc.RecordCall(ctx)
	err := s.client.DeleteEvent(ctx, accessToken, conn.CalendarID, mapping.GoogleEventID)
	if err != nil && Classify(err).Reason != ReasonNotFound {
		return err
	}
	// Already-gone events count as deleted.
	if err := s.mappingRepo.DeleteByAppointmentID(ctx, appointmentID); err != nil {
		return err
	}
	logger.Info("SyncService:pushDelete:Deleted", "appointment_id", appointmentID, "event_id", mapping.GoogleEventID)
	return nil
}

// scheduleRetry records the first retry for a failed push. Re-failures of
// queued items are rescheduled by the retry sweeper, not here.
func (s *SyncService) scheduleRetry(ctx context.Context, connectionID, appointmentID uuid.UUID, op entity.SyncOperation, lastError string, delay time.Duration) {
	if delay < constants.RetryBackoffSchedule[0] {
		delay = constants.RetryBackoffSchedule[0]
	}
	now := s.now()
	errMsg := lastError
	item := &entity.RetryQueueItem{
		AppointmentID: appointmentID,
		ConnectionID:  connectionID,
		Operation:     op,
		RetryCount:    0,
		LastAttemptAt: now,
		NextRetryAt:   now.Add(delay),
		LastError:     &errMsg,
	}
	if err := s.retryRepo.Upsert(ctx, item); err != nil {
		logger.Error("SyncService:scheduleRetry:Error", "error", err, "appointment_id", appointmentID)
		return
	}
	logger.Info("SyncService:scheduleRetry", "appointment_id", appointmentID, "operation", op, "next_retry_at", item.NextRetryAt)
}

// Status summarizes engine health for the admin dashboard.
type SyncStatusReport struct {
	Connected          bool               `json:"connected"`
	GoogleAccountEmail string             `json:"google_account_email,omitempty"`
	Paused             bool               `json:"paused"`
	PauseReason        *string            `json:"pause_reason,omitempty"`
	LastSyncedAt       *time.Time         `json:"last_synced_at,omitempty"`
	PendingRetries     int                `json:"pending_retries"`
	Successes24h       int                `json:"successes_24h"`
	Failures24h        int                `json:"failures_24h"`
	Quota              *QuotaUsage        `json:"quota,omitempty"`
	Settings           *entity.Settings   `json:"settings,omitempty"`
	ChannelExpiresAt   *time.Time         `json:"channel_expires_at,omitempty"`
}

// Status builds the dashboard report for one admin's connection.
func (s *SyncService) Status(ctx context.Context, adminID uuid.UUID) (*SyncStatusReport, *errors.AppError) {
	conn, err := s.connRepo.GetActiveByAdminID(ctx, adminID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}
	if conn == nil {
		return &SyncStatusReport{Connected: false}, nil
	}

	successes, failures, err := s.syncLogRepo.CountOutcomesSince(ctx, s.now().Add(-24*time.Hour))
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to count sync outcomes", err)
	}
	pending, err := s.retryRepo.CountPending(ctx)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to count pending retries", err)
	}
	quota, qErr := s.quotaSvc.GetUsage(ctx)
	if qErr != nil {
		logger.Error("SyncService:Status:Quota:Error", "error", qErr)
	}

	settings := conn.SettingsView()
	return &SyncStatusReport{
		Connected:          true,
		GoogleAccountEmail: conn.GoogleAccountEmail,
		Paused:             conn.Paused,
		PauseReason:        conn.PauseReason,
		LastSyncedAt:       conn.LastSyncedAt,
		PendingRetries:     pending,
		Successes24h:       successes,
		Failures24h:        failures,
		Quota:              quota,
		Settings:           &settings,
		ChannelExpiresAt:   conn.ChannelExpiresAt,
	}, nil
}

// RecentActivity lists the latest sync log rows for one appointment.
func (s *SyncService) RecentActivity(ctx context.Context, appointmentID uuid.UUID, limit int) ([]entity.SyncLogEntry, *errors.AppError) {
	entries, err := s.syncLogRepo.ListRecentByAppointment(ctx, appointmentID, limit)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list sync activity", err)
	}
	return entries, nil
}

// UpdateSettings persists the admin's sync preferences.
func (s *SyncService) UpdateSettings(ctx context.Context, adminID uuid.UUID, autoSync bool, statuses []string, syncPast, syncCompleted bool) *errors.AppError {
	conn, err := s.connRepo.GetActiveByAdminID(ctx, adminID)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}
	if conn == nil {
		return errors.NewAppError(errors.ErrConnectionInactive, "no active calendar connection", nil)
	}
	for _, st := range statuses {
		if !validSyncStatuses[st] {
			return errors.NewAppError(errors.ErrInvalidInput, "unknown appointment status: "+st, nil)
		}
	}
	if err := s.connRepo.UpdateSettings(ctx, conn.ID, autoSync, statuses, syncPast, syncCompleted); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to update sync settings", err)
	}
	logger.Info("SyncService:UpdateSettings", "connection_id", conn.ID, "auto_sync", autoSync, "statuses", statuses)
	return nil
}

// Resume clears a tripped breaker on the admin's connection.
func (s *SyncService) Resume(ctx context.Context, adminID uuid.UUID) *errors.AppError {
	conn, err := s.connRepo.GetActiveByAdminID(ctx, adminID)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}
	if conn == nil {
		return errors.NewAppError(errors.ErrConnectionInactive, "no active calendar connection", nil)
	}
	if err := s.breaker.Resume(ctx, conn.ID); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to resume sync", err)
	}
	return nil
}

var validSyncStatuses = map[string]bool{
	string(apptEntity.StatusScheduled): true,
	string(apptEntity.StatusConfirmed): true,
	string(apptEntity.StatusCheckedIn): true,
	string(apptEntity.StatusCompleted): true,
	string(apptEntity.StatusCancelled): true,
	string(apptEntity.StatusNoShow):    true,
}
