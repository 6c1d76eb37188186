package service

import (
	"context"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"
	apptRepo "github.com/jonlee90/thepuppyday-sub014/modules/appointment/repository"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/mapper"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"
)

// webhookLookback bounds the refetch window when a connection has never
// synced.
const webhookLookback = 24 * time.Hour

// WebhookService reconciles external calendar edits against local state.
// Local state always wins: remote edits are overwritten and remote deletes
// are recreated. The webhook only tells us *that* something changed; the
// changed events are refetched from the API.
type WebhookService struct {
	connRepo    repository.ConnectionRepository
	apptRepo    apptRepo.AppointmentRepository
	mappingRepo repository.MappingRepository
	tokenSvc    *TokenService
	client      provider.Client
	syncSvc     *SyncService
	quotaSvc    *QuotaService
	timezone    string
	now         func() time.Time
}

func NewWebhookService(
	connRepo repository.ConnectionRepository,
	appointmentRepo apptRepo.AppointmentRepository,
	mappingRepo repository.MappingRepository,
	tokenSvc *TokenService,
	client provider.Client,
	syncSvc *SyncService,
	quotaSvc *QuotaService,
	timezone string,
) *WebhookService {
	return &WebhookService{
		connRepo:    connRepo,
		apptRepo:    appointmentRepo,
		mappingRepo: mappingRepo,
		tokenSvc:    tokenSvc,
		client:      client,
		syncSvc:     syncSvc,
		quotaSvc:    quotaSvc,
		timezone:    timezone,
		now:         time.Now,
	}
}

// ValidateNotification checks a webhook's channel id and token against a
// known connection. Unknown or mismatched notifications are dropped without
// error so a forging sender learns nothing.
func (s *WebhookService) ValidateNotification(ctx context.Context, channelID, channelToken string) (*entity.CalendarConnection, bool) {
	if channelID == "" {
		return nil, false
	}
	conn, err := s.connRepo.GetByChannelID(ctx, channelID)
	if err != nil {
		logger.Error("WebhookService:Validate:Error", "error", err, "channel_id", channelID)
		return nil, false
	}
	if conn == nil || conn.ChannelToken == nil || *conn.ChannelToken != channelToken {
		logger.Warn("WebhookService:Validate:Rejected", "channel_id", channelID)
		return nil, false
	}
	return conn, true
}

// Process refetches events changed since the last sync and reconciles each
// one. Runs inside the worker pool, never in the webhook request.
func (s *WebhookService) Process(ctx context.Context, channelID string) error {
	conn, err := s.connRepo.GetByChannelID(ctx, channelID)
	if err != nil {
		return err
	}
	if conn == nil || !conn.IsActive {
		logger.Warn("WebhookService:Process:UnknownChannel", "channel_id", channelID)
		return nil
	}
	if conn.Paused {
		logger.Info("WebhookService:Process:Paused", "connection_id", conn.ID)
		return nil
	}
	if s.quotaSvc.ShouldThrottle(ctx) {
		// Refetching is deferrable work; the next notification or the
		// daily reset will pick the changes up.
		logger.Warn("WebhookService:Process:Throttled", "connection_id", conn.ID)
		return nil
	}

	accessToken, appErr := s.tokenSvc.GetValidAccessToken(ctx, conn.ID)
	if appErr != nil {
		return appErr
	}

	since := s.now().Add(-webhookLookback)
	if conn.LastSyncedAt != nil {
		since = *conn.LastSyncedAt
	}

	s.quotaSvc.RecordCall(ctx)
	events, err := s.client.ListEvents(ctx, accessToken, conn.CalendarID, since)
	if err != nil {
		return err
	}
	logger.Info("WebhookService:Process:Fetched", "connection_id", conn.ID, "events", len(events), "since", since)

	processedAt := s.now()
	reconcileFailed := false
	for i := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.reconcile(ctx, conn, &events[i]); err != nil {
			reconcileFailed = true
			logger.Error("WebhookService:reconcile:Error", "error", err, "event_id", events[i].ID)
		}
	}

	if reconcileFailed {
		// Hold the watermark so the next notification refetches this
		// window; failed pushes are also redriven by the retry queue.
		logger.Warn("WebhookService:Process:WatermarkHeld", "connection_id", conn.ID, "since", since)
		return nil
	}
	if err := s.connRepo.SetLastSyncedAt(ctx, conn.ID, processedAt); err != nil {
		logger.Error("WebhookService:Process:SetLastSynced:Error", "error", err, "connection_id", conn.ID)
	}
	return nil
}

// reconcile applies local-wins to one changed event.
func (s *WebhookService) reconcile(ctx context.Context, conn *entity.CalendarConnection, ev *provider.Event) error {
	mapping, err := s.mappingRepo.GetByGoogleEventID(ctx, conn.ID, ev.ID)
	if err != nil {
		return err
	}
	if mapping == nil {
		// Not one of ours. The import flow fetches live, so unmapped
		// events are only logged here.
		logger.Debug("WebhookService:reconcile:Unmapped", "event_id", ev.ID)
		return nil
	}

	detail, err := s.apptRepo.GetDetail(ctx, mapping.AppointmentID)
	if err != nil {
		return err
	}
	if detail == nil || detail.Status == apptEntity.StatusCancelled {
		// The local side is gone or cancelled; accept the remote state and
		// drop the mapping. A lingering remote event is cleaned up by the
		// delete push that cancelled the appointment.
		if ev.Deleted() {
			return s.mappingRepo.DeleteByAppointmentID(ctx, mapping.AppointmentID)
		}
		return nil
	}

	if ev.Deleted() {
		// Externally deleted but locally alive: recreate under a fresh
		// event id.
		logger.Info("WebhookService:reconcile:Recreate", "appointment_id", mapping.AppointmentID, "event_id", ev.ID)
		if err := s.mappingRepo.DeleteByAppointmentID(ctx, mapping.AppointmentID); err != nil {
			return err
		}
		return s.syncSvc.syncManaged(ctx, conn, mapping.AppointmentID, entity.OpCreate)
	}

	if s.matchesLocal(detail, ev) {
		// Usually the echo of our own push. Nothing to do.
		logger.Debug("WebhookService:reconcile:NoChange", "event_id", ev.ID)
		return nil
	}

	logger.Info("WebhookService:reconcile:Overwrite", "appointment_id", mapping.AppointmentID, "event_id", ev.ID)
	return s.syncSvc.syncManaged(ctx, conn, mapping.AppointmentID, entity.OpUpdate)
}

// matchesLocal reports whether the remote event already reflects the local
// appointment. Times compare as instants so offset formatting differences
// never count as edits.
func (s *WebhookService) matchesLocal(detail *apptEntity.Detail, ev *provider.Event) bool {
	draft := mapper.ToGoogleEvent(detail, s.timezone)
	if ev.Summary != draft.Summary || ev.Description != draft.Description || ev.ColorID != draft.ColorID {
		return false
	}
	return sameInstant(ev.Start.DateTime, draft.Start.DateTime) && sameInstant(ev.End.DateTime, draft.End.DateTime)
}

func sameInstant(a, b string) bool {
	ta, errA := time.Parse(time.RFC3339, a)
	tb, errB := time.Parse(time.RFC3339, b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ta.Equal(tb)
}
