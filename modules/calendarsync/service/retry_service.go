package service

import (
	"context"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"
	notifDto "github.com/jonlee90/thepuppyday-sub014/modules/notification/dto"
	notifEntity "github.com/jonlee90/thepuppyday-sub014/modules/notification/entity"
	notifService "github.com/jonlee90/thepuppyday-sub014/modules/notification/service"
)

const retrySweepBatch = 50

// RetryService drains the durable retry queue. The sweep runs on a fixed
// schedule; each due item gets exactly one push attempt per sweep.
type RetryService struct {
	retryRepo   repository.RetryRepository
	connRepo    repository.ConnectionRepository
	mappingRepo repository.MappingRepository
	syncSvc     *SyncService
	breaker     *Breaker
	notifSvc    *notifService.NotificationService
	now         func() time.Time
}

func NewRetryService(
	retryRepo repository.RetryRepository,
	connRepo repository.ConnectionRepository,
	mappingRepo repository.MappingRepository,
	syncSvc *SyncService,
	breaker *Breaker,
	notifSvc *notifService.NotificationService,
) *RetryService {
	return &RetryService{
		retryRepo:   retryRepo,
		connRepo:    connRepo,
		mappingRepo: mappingRepo,
		syncSvc:     syncSvc,
		breaker:     breaker,
		notifSvc:    notifSvc,
		now:         time.Now,
	}
}

// ProcessDue attempts every due retry once. Items on paused or inactive
// connections stay queued untouched; their next_retry_at is already in the
// past so they run on the first sweep after the connection recovers.
func (s *RetryService) ProcessDue(ctx context.Context) error {
	items, err := s.retryRepo.ListDue(ctx, s.now(), retrySweepBatch)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	logger.Info("RetryService:ProcessDue:Start", "due", len(items))

	// Connections are few; cache per sweep.
	conns := map[string]*entity.CalendarConnection{}
	for i := range items {
		item := &items[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, ok := conns[item.ConnectionID.String()]
		if !ok {
			conn, err = s.connRepo.GetByID(ctx, item.ConnectionID)
			if err != nil {
				logger.Error("RetryService:ProcessDue:LoadConnection:Error", "error", err, "connection_id", item.ConnectionID)
				continue
			}
			conns[item.ConnectionID.String()] = conn
		}
		if conn == nil {
			// Connection was disconnected; its retries are orphaned.
			if err := s.retryRepo.Delete(ctx, item.ID); err != nil {
				logger.Error("RetryService:ProcessDue:DeleteOrphan:Error", "error", err, "item_id", item.ID)
			}
			continue
		}
		if conn.Paused || !conn.IsActive {
			continue
		}

		s.attempt(ctx, conn, item)
	}
	return nil
}

func (s *RetryService) attempt(ctx context.Context, conn *entity.CalendarConnection, item *entity.RetryQueueItem) {
	err := s.syncSvc.PushSync(ctx, conn, item.AppointmentID, item.Operation)
	if err == nil {
		s.breaker.RecordSuccess(ctx, conn)
		if delErr := s.retryRepo.Delete(ctx, item.ID); delErr != nil {
			logger.Error("RetryService:attempt:Delete:Error", "error", delErr, "item_id", item.ID)
		}
		logger.Info("RetryService:attempt:Recovered", "appointment_id", item.AppointmentID, "operation", item.Operation, "retry_count", item.RetryCount+1)
		return
	}

	s.breaker.RecordFailure(ctx, conn, err.Error())

	classification := Classify(err)
	nextCount := item.RetryCount + 1
	if !classification.Retryable() || nextCount >= constants.MaxSyncRetries {
		s.giveUp(ctx, conn, item, err)
		return
	}

	// Backoff is indexed by the retry about to happen.
	delay := constants.RetryBackoffSchedule[len(constants.RetryBackoffSchedule)-1]
	if nextCount < len(constants.RetryBackoffSchedule) {
		delay = constants.RetryBackoffSchedule[nextCount]
	}
	if classification.SuggestedDelay > delay {
		delay = classification.SuggestedDelay
	}
	if reschedErr := s.retryRepo.Reschedule(ctx, item.ID, nextCount, s.now().Add(delay), err.Error()); reschedErr != nil {
		logger.Error("RetryService:attempt:Reschedule:Error", "error", reschedErr, "item_id", item.ID)
		return
	}
	logger.Warn("RetryService:attempt:Failed", "appointment_id", item.AppointmentID, "operation", item.Operation, "retry_count", nextCount, "next_in", delay)
}

// giveUp removes the item after the retry budget is spent (or the failure
// turned permanent), marks the mapping errored, and tells the admin.
func (s *RetryService) giveUp(ctx context.Context, conn *entity.CalendarConnection, item *entity.RetryQueueItem, lastErr error) {
	logger.Error("RetryService:giveUp", "appointment_id", item.AppointmentID, "operation", item.Operation, "retries", item.RetryCount, "error", lastErr)

	if err := s.retryRepo.Delete(ctx, item.ID); err != nil {
		logger.Error("RetryService:giveUp:Delete:Error", "error", err, "item_id", item.ID)
	}
	mapping, err := s.mappingRepo.GetByAppointmentID(ctx, item.AppointmentID)
	if err == nil && mapping != nil {
		if err := s.mappingRepo.SetStatus(ctx, mapping.ID, entity.SyncStatusError); err != nil {
			logger.Error("RetryService:giveUp:SetStatus:Error", "error", err, "mapping_id", mapping.ID)
		}
	}

	if s.notifSvc == nil {
		return
	}
	err = s.notifSvc.Create(ctx, &notifDto.CreateNotificationRequest{
		AdminID: conn.AdminID,
		Title:   "Appointment failed to sync",
		Message: "An appointment could not be synced to Google Calendar after repeated attempts. Use manual sync to try again.",
		Type:    notifEntity.TypeSyncFailed,
		Data: map[string]interface{}{
			"appointment_id": item.AppointmentID.String(),
			"operation":      string(item.Operation),
		},
	})
	if err != nil {
		logger.Error("RetryService:giveUp:Notify:Error", "error", err, "admin_id", conn.AdminID)
	}
}
