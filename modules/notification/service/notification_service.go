package service

import (
	"context"
	"time"

	coreEntity "github.com/jonlee90/thepuppyday-sub014/core/entity"
	"github.com/jonlee90/thepuppyday-sub014/core/params"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification/dto"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification/repository"

	"github.com/google/uuid"
)

type NotificationService struct {
	repo *repository.NotificationRepository
}

func NewNotificationService(repo *repository.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

func (s *NotificationService) Create(ctx context.Context, req *dto.CreateNotificationRequest) error {
	notif := &entity.Notification{
		AdminID: req.AdminID,
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
		Data:    entity.JSONB(req.Data),
		IsRead:  false,
		BaseEntity: coreEntity.BaseEntity{
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
	}
	return s.repo.Create(ctx, notif)
}

func (s *NotificationService) GetMyNotifications(ctx context.Context, adminID uuid.UUID, queryParams params.QueryParams) (*entity.PaginatedNotificationEntity, error) {
	return s.repo.GetByAdminID(ctx, adminID, queryParams)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, adminID uuid.UUID, ids []string) error {
	return s.repo.MarkAsRead(ctx, adminID, ids)
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, adminID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, adminID)
}

func (s *NotificationService) CountUnread(ctx context.Context, adminID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, adminID)
}
