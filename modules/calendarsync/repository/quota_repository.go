package repository

import (
	"context"
	"database/sql"

	"github.com/jonlee90/thepuppyday-sub014/core/database"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
)

type QuotaRepository interface {
	Increment(ctx context.Context, day string) (int, error)
	GetCount(ctx context.Context, day string) (int, error)
	DeleteBefore(ctx context.Context, day string) error
}

type quotaRepository struct {
	db database.Database
}

func NewQuotaRepository(db database.Database) QuotaRepository {
	return &quotaRepository{db: db}
}

// Increment upserts today's row and returns the new count in one statement,
// which is what makes concurrent recordCall() calls safe.
func (r *quotaRepository) Increment(ctx context.Context, day string) (int, error) {
	var count int
	query := `
		INSERT INTO quota_counters (day, count)
		VALUES ($1, 1)
		ON CONFLICT (day)
		DO UPDATE SET count = quota_counters.count + 1
		RETURNING count
	`
	if err := r.db.QueryRowContext(ctx, query, day).Scan(&count); err != nil {
		logger.Error("QuotaRepository:Increment:Error", "error", err, "day", day)
		return 0, err
	}
	return count, nil
}

func (r *quotaRepository) GetCount(ctx context.Context, day string) (int, error) {
	var count int
	query := `SELECT count FROM quota_counters WHERE day = $1`
	if err := r.db.GetContext(ctx, &count, query, day); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		logger.Error("QuotaRepository:GetCount:Error", "error", err, "day", day)
		return 0, err
	}
	return count, nil
}

// DeleteBefore prunes counters for days before the given day; day keys sort
// lexicographically in date order.
func (r *quotaRepository) DeleteBefore(ctx context.Context, day string) error {
	query := `DELETE FROM quota_counters WHERE day < $1`
	if err := r.db.ExecContext(ctx, query, day); err != nil {
		logger.Error("QuotaRepository:DeleteBefore:Error", "error", err, "day", day)
		return err
	}
	return nil
}
