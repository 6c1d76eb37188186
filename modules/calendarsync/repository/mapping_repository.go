package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/database"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"

	"github.com/google/uuid"
)

type MappingRepository interface {
	Upsert(ctx context.Context, mapping *entity.EventMapping) (*entity.EventMapping, error)
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*entity.EventMapping, error)
	GetByGoogleEventID(ctx context.Context, connectionID uuid.UUID, googleEventID string) (*entity.EventMapping, error)
	UpdateSynced(ctx context.Context, id uuid.UUID, googleEventID string, at time.Time) error
	SetStatus(ctx context.Context, id uuid.UUID, status entity.SyncStatus) error
	DeleteByAppointmentID(ctx context.Context, appointmentID uuid.UUID) error
	DeleteByConnectionID(ctx context.Context, connectionID uuid.UUID) error
}

type mappingRepository struct {
	db database.Database
}

func NewMappingRepository(db database.Database) MappingRepository {
	return &mappingRepository{db: db}
}

// Upsert inserts the mapping or refreshes the existing row for the
// appointment. The unique constraint on appointment_id is what makes repeated
// creates converge on one external event.
func (r *mappingRepository) Upsert(ctx context.Context, mapping *entity.EventMapping) (*entity.EventMapping, error) {
	query := `
		INSERT INTO event_mappings (appointment_id, connection_id, google_event_id, last_synced_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (appointment_id)
		DO UPDATE SET google_event_id = $3, last_synced_at = $4, status = $5, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		mapping.AppointmentID, mapping.ConnectionID, mapping.GoogleEventID, mapping.LastSyncedAt, mapping.Status,
	).Scan(&mapping.ID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		logger.Error("MappingRepository:Upsert:Error", "error", err, "appointment_id", mapping.AppointmentID)
		return nil, err
	}
	return mapping, nil
}

func (r *mappingRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*entity.EventMapping, error) {
	var mapping entity.EventMapping
	query := `
		SELECT id, created_at, updated_at, appointment_id, connection_id, google_event_id, last_synced_at, status
		FROM event_mappings
		WHERE appointment_id = $1
	`
	if err := r.db.GetContext(ctx, &mapping, query, appointmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("MappingRepository:GetByAppointmentID:Error", "error", err, "appointment_id", appointmentID)
		return nil, err
	}
	return &mapping, nil
}

func (r *mappingRepository) GetByGoogleEventID(ctx context.Context, connectionID uuid.UUID, googleEventID string) (*entity.EventMapping, error) {
	var mapping entity.EventMapping
	query := `
		SELECT id, created_at, updated_at, appointment_id, connection_id, google_event_id, last_synced_at, status
		FROM event_mappings
		WHERE connection_id = $1 AND google_event_id = $2
	`
	if err := r.db.GetContext(ctx, &mapping, query, connectionID, googleEventID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("MappingRepository:GetByGoogleEventID:Error", "error", err, "google_event_id", googleEventID)
		return nil, err
	}
	return &mapping, nil
}

func (r *mappingRepository) UpdateSynced(ctx context.Context, id uuid.UUID, googleEventID string, at time.Time) error {
	query := `
		UPDATE event_mappings
		SET google_event_id = $1, last_synced_at = $2, status = $3, updated_at = NOW()
		WHERE id = $4
	`
	if err := r.db.ExecContext(ctx, query, googleEventID, at, entity.SyncStatusSynced, id); err != nil {
		logger.Error("MappingRepository:UpdateSynced:Error", "error", err, "mapping_id", id)
		return err
	}
	return nil
}

func (r *mappingRepository) SetStatus(ctx context.Context, id uuid.UUID, status entity.SyncStatus) error {
	query := `UPDATE event_mappings SET status = $1, updated_at = NOW() WHERE id = $2`
	if err := r.db.ExecContext(ctx, query, status, id); err != nil {
		logger.Error("MappingRepository:SetStatus:Error", "error", err, "mapping_id", id)
		return err
	}
	return nil
}

func (r *mappingRepository) DeleteByAppointmentID(ctx context.Context, appointmentID uuid.UUID) error {
	query := `DELETE FROM event_mappings WHERE appointment_id = $1`
	if err := r.db.ExecContext(ctx, query, appointmentID); err != nil {
		logger.Error("MappingRepository:DeleteByAppointmentID:Error", "error", err, "appointment_id", appointmentID)
		return err
	}
	return nil
}

func (r *mappingRepository) DeleteByConnectionID(ctx context.Context, connectionID uuid.UUID) error {
	query := `DELETE FROM event_mappings WHERE connection_id = $1`
	if err := r.db.ExecContext(ctx, query, connectionID); err != nil {
		logger.Error("MappingRepository:DeleteByConnectionID:Error", "error", err, "connection_id", connectionID)
		return err
	}
	return nil
}
