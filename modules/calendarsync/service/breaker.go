package service

import (
	"context"
	"fmt"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"
	notifDto "github.com/jonlee90/thepuppyday-sub014/modules/notification/dto"
	notifEntity "github.com/jonlee90/thepuppyday-sub014/modules/notification/entity"
	notifService "github.com/jonlee90/thepuppyday-sub014/modules/notification/service"

	"github.com/google/uuid"
)

// Breaker tracks consecutive push failures per connection and pauses
// automatic sync at the threshold. Resuming is always an explicit admin
// action, never automatic.
type Breaker struct {
	connRepo  repository.ConnectionRepository
	notifSvc  *notifService.NotificationService
	threshold int
}

func NewBreaker(connRepo repository.ConnectionRepository, notifSvc *notifService.NotificationService) *Breaker {
	return &Breaker{
		connRepo:  connRepo,
		notifSvc:  notifSvc,
		threshold: constants.CircuitBreakerThreshold,
	}
}

// RecordFailure increments the connection's failure counter and trips the
// breaker at the threshold. Returns whether the breaker tripped on this call.
func (b *Breaker) RecordFailure(ctx context.Context, conn *entity.CalendarConnection, detail string) bool {
	count, err := b.connRepo.IncrementFailures(ctx, conn.ID)
	if err != nil {
		logger.Error("Breaker:RecordFailure:Increment:Error", "error", err, "connection_id", conn.ID)
		return false
	}
	if count < b.threshold || conn.Paused {
		return false
	}

	reason := fmt.Sprintf("auto-sync paused after %d consecutive failures; last error: %s", count, detail)
	if err := b.connRepo.SetPaused(ctx, conn.ID, reason); err != nil {
		logger.Error("Breaker:RecordFailure:SetPaused:Error", "error", err, "connection_id", conn.ID)
		return false
	}

	logger.Warn("Breaker:Tripped", "connection_id", conn.ID, "failures", count)
	b.notify(ctx, conn.AdminID, notifEntity.TypeSyncPaused,
		"Calendar sync paused",
		"Automatic calendar sync was paused after repeated failures. Review the sync status page and resume when ready.",
	)
	return true
}

// RecordSuccess resets the failure counter.
func (b *Breaker) RecordSuccess(ctx context.Context, conn *entity.CalendarConnection) {
	if conn.ConsecutiveFailures == 0 {
		return
	}
	if err := b.connRepo.ResetFailures(ctx, conn.ID); err != nil {
		logger.Error("Breaker:RecordSuccess:Reset:Error", "error", err, "connection_id", conn.ID)
	}
}

// Resume clears the paused flag and failure counter. Exposed to the sync
// controller; nothing inside the engine calls this.
func (b *Breaker) Resume(ctx context.Context, connectionID uuid.UUID) error {
	logger.Info("Breaker:Resume", "connection_id", connectionID)
	return b.connRepo.ClearPaused(ctx, connectionID)
}

func (b *Breaker) notify(ctx context.Context, adminID uuid.UUID, notifType, title, message string) {
	if b.notifSvc == nil {
		return
	}
	err := b.notifSvc.Create(ctx, &notifDto.CreateNotificationRequest{
		AdminID: adminID,
		Title:   title,
		Message: message,
		Type:    notifType,
	})
	if err != nil {
		logger.Error("Breaker:Notify:Error", "error", err, "admin_id", adminID)
	}
}
