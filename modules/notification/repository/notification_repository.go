package repository

import (
	"context"

	"github.com/jonlee90/thepuppyday-sub014/core/database"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/params"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification/entity"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type NotificationRepository struct {
	db database.Database
}

func NewNotificationRepository(db database.Database) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	query := `
		INSERT INTO notifications (title, message, type, data, admin_id, is_read, created_at, updated_at)
		VALUES (:title, :message, :type, :data, :admin_id, :is_read, :created_at, :updated_at)
		RETURNING id
	`
	rows, err := r.db.NamedQueryContext(ctx, query, notification)
	if err != nil {
		logger.Error("NotificationRepository:Create:Error", "error", err)
		return err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Scan(&notification.ID)
	}
	return nil
}

func (r *NotificationRepository) GetByAdminID(ctx context.Context, adminID uuid.UUID, params params.QueryParams) (*entity.PaginatedNotificationEntity, error) {
	offset := (params.PageNumber - 1) * params.PageSize

	baseQuery := `FROM notifications WHERE admin_id = $1`

	var totalItems int
	err := r.db.GetContext(ctx, &totalItems, "SELECT COUNT(*) "+baseQuery, adminID)
	if err != nil {
		logger.Error("NotificationRepository:GetByAdminID:Count:Error", "error", err)
		return nil, err
	}

	query := `
		SELECT * ` + baseQuery + `
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var notifications []entity.Notification
	err = r.db.SelectContext(ctx, &notifications, query, adminID, params.PageSize, offset)
	if err != nil {
		logger.Error("NotificationRepository:GetByAdminID:Select:Error", "error", err)
		return nil, err
	}

	return &entity.PaginatedNotificationEntity{
		Items:      notifications,
		TotalItems: totalItems,
		PageNumber: params.PageNumber,
		PageSize:   params.PageSize,
	}, nil
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, adminID uuid.UUID, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`UPDATE notifications SET is_read = true WHERE admin_id = ? AND id IN (?)`, adminID, ids)
	if err != nil {
		return err
	}

	query = r.db.SQLx().Rebind(query)
	err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.Error("NotificationRepository:MarkAsRead:Error", "error", err)
		return err
	}
	return nil
}

func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, adminID uuid.UUID) error {
	query := `UPDATE notifications SET is_read = true WHERE admin_id = $1`
	err := r.db.ExecContext(ctx, query, adminID)
	if err != nil {
		logger.Error("NotificationRepository:MarkAllAsRead:Error", "error", err)
		return err
	}
	return nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, adminID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE admin_id = $1 AND is_read = false`
	err := r.db.GetContext(ctx, &count, query, adminID)
	if err != nil {
		logger.Error("NotificationRepository:CountUnread:Error", "error", err)
		return 0, err
	}
	return count, nil
}
