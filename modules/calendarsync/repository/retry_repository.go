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

type RetryRepository interface {
	Upsert(ctx context.Context, item *entity.RetryQueueItem) error
	GetByAppointmentAndOp(ctx context.Context, appointmentID uuid.UUID, op entity.SyncOperation) (*entity.RetryQueueItem, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]entity.RetryQueueItem, error)
	CountPending(ctx context.Context) (int, error)
	Reschedule(ctx context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, lastError string) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByAppointmentID(ctx context.Context, appointmentID uuid.UUID) error
	DeleteByConnectionID(ctx context.Context, connectionID uuid.UUID) error
}

type retryRepository struct {
	db database.Database
}

func NewRetryRepository(db database.Database) RetryRepository {
	return &retryRepository{db: db}
}

// Upsert keeps one row per (appointment, operation) so repeated failures of
// the same push collapse instead of fanning out. The retry counter is only
// advanced by Reschedule.
func (r *retryRepository) Upsert(ctx context.Context, item *entity.RetryQueueItem) error {
	query := `
		INSERT INTO retry_queue_items (appointment_id, connection_id, operation, retry_count, last_attempt_at, next_retry_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (appointment_id, operation)
		DO UPDATE SET last_attempt_at = $5, next_retry_at = $6, last_error = $7, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		item.AppointmentID, item.ConnectionID, item.Operation, item.RetryCount, item.LastAttemptAt, item.NextRetryAt, item.LastError,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		logger.Error("RetryRepository:Upsert:Error", "error", err, "appointment_id", item.AppointmentID)
		return err
	}
	return nil
}

func (r *retryRepository) GetByAppointmentAndOp(ctx context.Context, appointmentID uuid.UUID, op entity.SyncOperation) (*entity.RetryQueueItem, error) {
	var item entity.RetryQueueItem
	query := `
		SELECT id, created_at, updated_at, appointment_id, connection_id, operation, retry_count, last_attempt_at, next_retry_at, last_error
		FROM retry_queue_items
		WHERE appointment_id = $1 AND operation = $2
	`
	if err := r.db.GetContext(ctx, &item, query, appointmentID, op); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("RetryRepository:GetByAppointmentAndOp:Error", "error", err, "appointment_id", appointmentID)
		return nil, err
	}
	return &item, nil
}

// ListDue orders by enqueue time so retries for one appointment keep their
// original order.
func (r *retryRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]entity.RetryQueueItem, error) {
	var items []entity.RetryQueueItem
	query := `
		SELECT id, created_at, updated_at, appointment_id, connection_id, operation, retry_count, last_attempt_at, next_retry_at, last_error
		FROM retry_queue_items
		WHERE next_retry_at <= $1
		ORDER BY created_at
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &items, query, now, limit); err != nil {
		logger.Error("RetryRepository:ListDue:Error", "error", err)
		return nil, err
	}
	return items, nil
}

func (r *retryRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM retry_queue_items`
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		logger.Error("RetryRepository:CountPending:Error", "error", err)
		return 0, err
	}
	return count, nil
}

func (r *retryRepository) Reschedule(ctx context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, lastError string) error {
	query := `
		UPDATE retry_queue_items
		SET retry_count = $1, next_retry_at = $2, last_attempt_at = NOW(), last_error = $3, updated_at = NOW()
		WHERE id = $4
	`
	if err := r.db.ExecContext(ctx, query, retryCount, nextRetryAt, lastError, id); err != nil {
		logger.Error("RetryRepository:Reschedule:Error", "error", err, "item_id", id)
		return err
	}
	return nil
}

func (r *retryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM retry_queue_items WHERE id = $1`
	if err := r.db.ExecContext(ctx, query, id); err != nil {
		logger.Error("RetryRepository:Delete:Error", "error", err, "item_id", id)
		return err
	}
	return nil
}

func (r *retryRepository) DeleteByAppointmentID(ctx context.Context, appointmentID uuid.UUID) error {
	query := `DELETE FROM retry_queue_items WHERE appointment_id = $1`
	if err := r.db.ExecContext(ctx, query, appointmentID); err != nil {
		logger.Error("RetryRepository:DeleteByAppointmentID:Error", "error", err, "appointment_id", appointmentID)
		return err
	}
	return nil
}

func (r *retryRepository) DeleteByConnectionID(ctx context.Context, connectionID uuid.UUID) error {
	query := `DELETE FROM retry_queue_items WHERE connection_id = $1`
	if err := r.db.ExecContext(ctx, query, connectionID); err != nil {
		logger.Error("RetryRepository:DeleteByConnectionID:Error", "error", err, "connection_id", connectionID)
		return err
	}
	return nil
}
