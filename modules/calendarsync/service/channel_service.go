package service

import (
	"context"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/utils"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"

	"github.com/google/uuid"
)

// ChannelService owns webhook channel registration. Google caps channel
// lifetime, so channels are renewed on a schedule before they lapse.
type ChannelService struct {
	connRepo   repository.ConnectionRepository
	tokenSvc   *TokenService
	client     provider.Client
	quotaSvc   *QuotaService
	webhookURL string
	now        func() time.Time
}

func NewChannelService(connRepo repository.ConnectionRepository, tokenSvc *TokenService, client provider.Client, quotaSvc *QuotaService, webhookURL string) *ChannelService {
	return &ChannelService{
		connRepo:   connRepo,
		tokenSvc:   tokenSvc,
		client:     client,
		quotaSvc:   quotaSvc,
		webhookURL: webhookURL,
		now:        time.Now,
	}
}

// Open registers a fresh watch channel for the connection and persists its
// identifiers. The channel token is our shared secret with Google: every
// notification must echo it back.
func (s *ChannelService) Open(ctx context.Context, conn *entity.CalendarConnection) error {
	accessToken, appErr := s.tokenSvc.GetValidAccessToken(ctx, conn.ID)
	if appErr != nil {
		return appErr
	}

	channel := &provider.Channel{
		ID:    uuid.NewString(),
		Token: utils.GenerateRandomString(32),
	}
	expiry := s.now().Add(constants.WebhookChannelLifetime)

	s.quotaSvc.RecordCall(ctx)
	registered, err := s.client.Watch(ctx, accessToken, conn.CalendarID, channel, s.webhookURL, expiry)
	if err != nil {
		return err
	}

	err = s.connRepo.UpdateChannel(ctx, conn.ID,
		&registered.ID, &registered.Token, &registered.ResourceID, &registered.Expiration)
	if err != nil {
		return err
	}
	logger.Info("ChannelService:Open", "connection_id", conn.ID, "channel_id", registered.ID, "expires_at", registered.Expiration)
	return nil
}

// Close stops the connection's channel at Google and clears the stored
// identifiers. A failed stop is logged and ignored; the channel expires on
// its own.
func (s *ChannelService) Close(ctx context.Context, conn *entity.CalendarConnection) {
	if conn.ChannelID == nil {
		return
	}
	accessToken, appErr := s.tokenSvc.GetValidAccessToken(ctx, conn.ID)
	if appErr == nil && conn.ChannelResourceID != nil {
		s.quotaSvc.RecordCall(ctx)
		if err := s.client.StopChannel(ctx, accessToken, *conn.ChannelID, *conn.ChannelResourceID); err != nil {
			logger.Warn("ChannelService:Close:Stop:Error", "error", err, "channel_id", *conn.ChannelID)
		}
	}
	if err := s.connRepo.UpdateChannel(ctx, conn.ID, nil, nil, nil, nil); err != nil {
		logger.Error("ChannelService:Close:Clear:Error", "error", err, "connection_id", conn.ID)
	}
}

// RenewExpiring rolls over channels inside the renewal window. Runs from the
// scheduler; a connection with no channel at all also gets one here, which
// heals connections whose Open failed during OAuth.
func (s *ChannelService) RenewExpiring(ctx context.Context) error {
	conns, err := s.connRepo.ListActive(ctx)
	if err != nil {
		return err
	}

	deadline := s.now().Add(constants.WebhookChannelRenewalWindow)
	for i := range conns {
		conn := &conns[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if conn.ChannelID != nil && conn.ChannelExpiresAt != nil && conn.ChannelExpiresAt.After(deadline) {
			continue
		}

		logger.Info("ChannelService:RenewExpiring:Renew", "connection_id", conn.ID)
		s.Close(ctx, conn)
		if err := s.Open(ctx, conn); err != nil {
			logger.Error("ChannelService:RenewExpiring:Open:Error", "error", err, "connection_id", conn.ID)
		}
	}
	return nil
}
