package repository

import (
	"context"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/database"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"

	"github.com/google/uuid"
)

type SyncLogRepository interface {
	Append(ctx context.Context, entry *entity.SyncLogEntry) error
	CountOutcomesSince(ctx context.Context, since time.Time) (successes int, failures int, err error)
	ListRecentByAppointment(ctx context.Context, appointmentID uuid.UUID, limit int) ([]entity.SyncLogEntry, error)
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]entity.SyncLogEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type syncLogRepository struct {
	db database.Database
}

func NewSyncLogRepository(db database.Database) SyncLogRepository {
	return &syncLogRepository{db: db}
}

// Append writes one audit row. The table is insert-only; nothing else in the
// engine updates or deletes entries.
func (r *syncLogRepository) Append(ctx context.Context, entry *entity.SyncLogEntry) error {
	query := `
		INSERT INTO sync_log_entries (appointment_id, operation, outcome, error_detail)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		entry.AppointmentID, entry.Operation, entry.Outcome, entry.ErrorDetail,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		logger.Error("SyncLogRepository:Append:Error", "error", err, "appointment_id", entry.AppointmentID)
		return err
	}
	return nil
}

func (r *syncLogRepository) CountOutcomesSince(ctx context.Context, since time.Time) (int, int, error) {
	var counts struct {
		Successes int `db:"successes"`
		Failures  int `db:"failures"`
	}
	query := `
		SELECT
			COUNT(*) FILTER (WHERE outcome = 'success') AS successes,
			COUNT(*) FILTER (WHERE outcome = 'failure') AS failures
		FROM sync_log_entries
		WHERE created_at >= $1
	`
	if err := r.db.GetContext(ctx, &counts, query, since); err != nil {
		logger.Error("SyncLogRepository:CountOutcomesSince:Error", "error", err)
		return 0, 0, err
	}
	return counts.Successes, counts.Failures, nil
}

func (r *syncLogRepository) ListRecentByAppointment(ctx context.Context, appointmentID uuid.UUID, limit int) ([]entity.SyncLogEntry, error) {
	var entries []entity.SyncLogEntry
	query := `
		SELECT id, created_at, updated_at, appointment_id, operation, outcome, error_detail
		FROM sync_log_entries
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &entries, query, appointmentID, limit); err != nil {
		logger.Error("SyncLogRepository:ListRecentByAppointment:Error", "error", err, "appointment_id", appointmentID)
		return nil, err
	}
	return entries, nil
}

func (r *syncLogRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]entity.SyncLogEntry, error) {
	var entries []entity.SyncLogEntry
	query := `
		SELECT id, created_at, updated_at, appointment_id, operation, outcome, error_detail
		FROM sync_log_entries
		WHERE created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &entries, query, cutoff, limit); err != nil {
		logger.Error("SyncLogRepository:ListOlderThan:Error", "error", err)
		return nil, err
	}
	return entries, nil
}

func (r *syncLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.NamedExecContext(ctx, `DELETE FROM sync_log_entries WHERE created_at < :cutoff`, map[string]any{"cutoff": cutoff})
	if err != nil {
		logger.Error("SyncLogRepository:DeleteOlderThan:Error", "error", err)
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}
