package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/database"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ConnectionRepository owns the calendar_connections table. Field groups are
// updated through narrow statements keyed by connection id so concurrent
// writers (token refresh, sync attempts, channel renewal) never clobber each
// other's columns.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *entity.CalendarConnection) (*entity.CalendarConnection, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarConnection, error)
	GetActiveByAdminID(ctx context.Context, adminID uuid.UUID) (*entity.CalendarConnection, error)
	GetByChannelID(ctx context.Context, channelID string) (*entity.CalendarConnection, error)
	ListActive(ctx context.Context) ([]entity.CalendarConnection, error)
	Delete(ctx context.Context, id uuid.UUID) error

	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error
	UpdateChannel(ctx context.Context, id uuid.UUID, channelID, channelToken, resourceID *string, expiresAt *time.Time) error
	UpdateSettings(ctx context.Context, id uuid.UUID, autoSync bool, statuses []string, syncPast, syncCompleted bool) error
	SetInactive(ctx context.Context, id uuid.UUID) error
	SetLastSyncedAt(ctx context.Context, id uuid.UUID, at time.Time) error

	// Circuit breaker state
	IncrementFailures(ctx context.Context, id uuid.UUID) (int, error)
	ResetFailures(ctx context.Context, id uuid.UUID) error
	SetPaused(ctx context.Context, id uuid.UUID, reason string) error
	ClearPaused(ctx context.Context, id uuid.UUID) error
}

type connectionRepository struct {
	db database.Database
}

func NewConnectionRepository(db database.Database) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `
	id, created_at, updated_at, admin_id, google_account_email, calendar_id,
	access_token, refresh_token, token_expires_at, is_active,
	consecutive_failures, paused, pause_reason, paused_at,
	channel_id, channel_token, channel_resource_id, channel_expires_at,
	last_synced_at, auto_sync_enabled, sync_statuses, sync_past_appointments, sync_completed
`

func (r *connectionRepository) Create(ctx context.Context, conn *entity.CalendarConnection) (*entity.CalendarConnection, error) {
	query := `
		INSERT INTO calendar_connections (
			admin_id, google_account_email, calendar_id,
			access_token, refresh_token, token_expires_at, is_active,
			auto_sync_enabled, sync_statuses, sync_past_appointments, sync_completed
		)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		conn.AdminID, conn.GoogleAccountEmail, conn.CalendarID,
		conn.AccessToken, conn.RefreshToken, conn.TokenExpiresAt,
		conn.AutoSyncEnabled, pq.Array([]string(conn.SyncStatuses)),
		conn.SyncPastAppointments, conn.SyncCompleted,
	).Scan(&conn.ID, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		logger.Error("ConnectionRepository:Create:Error", "error", err, "admin_id", conn.AdminID)
		return nil, err
	}
	conn.IsActive = true
	return conn, nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarConnection, error) {
	var conn entity.CalendarConnection
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE id = $1`
	if err := r.db.GetContext(ctx, &conn, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("ConnectionRepository:GetByID:Error", "error", err, "connection_id", id)
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) GetActiveByAdminID(ctx context.Context, adminID uuid.UUID) (*entity.CalendarConnection, error) {
	var conn entity.CalendarConnection
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE admin_id = $1 AND is_active = true`
	if err := r.db.GetContext(ctx, &conn, query, adminID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("ConnectionRepository:GetActiveByAdminID:Error", "error", err, "admin_id", adminID)
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) GetByChannelID(ctx context.Context, channelID string) (*entity.CalendarConnection, error) {
	var conn entity.CalendarConnection
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE channel_id = $1`
	if err := r.db.GetContext(ctx, &conn, query, channelID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("ConnectionRepository:GetByChannelID:Error", "error", err, "channel_id", channelID)
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) ListActive(ctx context.Context) ([]entity.CalendarConnection, error) {
	var conns []entity.CalendarConnection
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE is_active = true ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &conns, query); err != nil {
		logger.Error("ConnectionRepository:ListActive:Error", "error", err)
		return nil, err
	}
	return conns, nil
}

// Delete removes the connection row. Mapping cleanup is handled in the same
// disconnect path by the mapping repository.
func (r *connectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM calendar_connections WHERE id = $1`
	if err := r.db.ExecContext(ctx, query, id); err != nil {
		logger.Error("ConnectionRepository:Delete:Error", "error", err, "connection_id", id)
		return err
	}
	return nil
}

func (r *connectionRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE calendar_connections
		SET access_token = $1, refresh_token = $2, token_expires_at = $3, updated_at = NOW()
		WHERE id = $4
	`
	if err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, id); err != nil {
		logger.Error("ConnectionRepository:UpdateTokens:Error", "error", err, "connection_id", id)
		return err
	}
	return nil
}

func (r *connectionRepository) UpdateChannel(ctx context.Context, id uuid.UUID, channelID, channelToken, resourceID *string, expiresAt *time.Time) error {
	query := `
		UPDATE calendar_connections
		SET channel_id = $1, channel_token = $2, channel_resource_id = $3, channel_expires_at = $4, updated_at = NOW()
		WHERE id = $5
	`
	if err := r.db.ExecContext(ctx, query, channelID, channelToken, resourceID, expiresAt, id); err != nil {
		logger.Error("ConnectionRepository:UpdateChannel:Error", "error", err, "connection_id", id)
		return err
	}
	return nil
}

func (r *connectionRepository) UpdateSettings(ctx context.Context, id uuid.UUID, autoSync bool, statuses []string, syncPast, syncCompleted bool) error {
	query := `
		UPDATE calendar_connections
		SET auto_sync_enabled = $1, sync_statuses = $2, sync_past_appointments = $3, sync_completed = $4, updated_at = NOW()
		WHERE id = $5
	`
	if err := r.db.ExecContext(ctx, query, autoSync, pq.Array(statuses), syncPast, syncCompleted, id); err != nil {
		logger.Error("ConnectionRepository:UpdateSettings:Error", "error", err, "connection_id", id)
		return err
	}
	return nil
}

func (r *connectionRepository) SetInactive(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE calendar_connections SET is_active = false, updated_at = NOW() WHERE id = $1`
	if err := r.db.ExecContext(ctx, query, id); err != nil {
		logger.Error("ConnectionRepository:SetInactive:Error", "error", err, "connection_id", id)
		return err
	}
	return nil
}

func (r *connectionRepository) SetLastSyncedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE calendar_connections SET last_synced_at = $1, updated_at = NOW() WHERE id = $2`
	if err := r.db.ExecContext(ctx, query, at, id); err != nil {
		logger.Error("ConnectionRepository:SetLastSyncedAt:Error", "error", err, "connection_id", id)
		return err
	}
	return nil
}

// IncrementFailures bumps the consecutive-failure counter atomically and
// returns the new value so the circuit breaker can compare it to the
// threshold without a read-modify-write race.
func (r *connectionRepository) IncrementFailures(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	query := `
		UPDATE calendar_connections
		SET consecutive_failures = consecutive_failures + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING consecutive_failures
	`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		logger.Error("ConnectionRepository:IncrementFailures:Error", "error", err, "connection_id", id)
		return 0, err
	}
	return count, nil
}

func (r *connectionRepository) ResetFailures(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE calendar_connections SET consecutive_failures = 0, updated_at = NOW() WHERE id = $1`
	if err := r.db.ExecContext(ctx, query, id); err != nil {
		logger.Error("ConnectionRepository:ResetFailures:Error", "error", err, "connection_id", id)
		return err
	}
	return nil
}

func (r *connectionRepository) SetPaused(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE calendar_connections
		SET paused = true, pause_reason = $1, paused_at = NOW(), updated_at = NOW()
		WHERE id = $2
	`
	if err := r.db.ExecContext(ctx, query, reason, id); err != nil {
		logger.Error("ConnectionRepository:SetPaused:Error", "error", err, "connection_id", id)
		return err
	}
	return nil
}

func (r *connectionRepository) ClearPaused(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE calendar_connections
		SET paused = false, pause_reason = NULL, paused_at = NULL, consecutive_failures = 0, updated_at = NOW()
		WHERE id = $1
	`
	if err := r.db.ExecContext(ctx, query, id); err != nil {
		logger.Error("ConnectionRepository:ClearPaused:Error", "error", err, "connection_id", id)
		return err
	}
	return nil
}
