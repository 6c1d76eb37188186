package service

import (
	"context"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/crypto"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"
	notifDto "github.com/jonlee90/thepuppyday-sub014/modules/notification/dto"
	notifEntity "github.com/jonlee90/thepuppyday-sub014/modules/notification/entity"
	notifService "github.com/jonlee90/thepuppyday-sub014/modules/notification/service"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// TokenService hands out currently-valid access tokens. Refreshes for one
// connection collapse into a single in-flight provider call; duplicate use
// of a refresh token can invalidate the grant.
type TokenService struct {
	connRepo repository.ConnectionRepository
	vault    *crypto.Vault
	client   provider.Client
	notifSvc *notifService.NotificationService

	refreshGroup singleflight.Group
	now          func() time.Time
}

func NewTokenService(connRepo repository.ConnectionRepository, vault *crypto.Vault, client provider.Client, notifSvc *notifService.NotificationService) *TokenService {
	return &TokenService{
		connRepo: connRepo,
		vault:    vault,
		client:   client,
		notifSvc: notifSvc,
		now:      time.Now,
	}
}

// GetValidAccessToken returns a decrypted access token for the connection,
// refreshing it first when within the safety margin of expiry.
func (s *TokenService) GetValidAccessToken(ctx context.Context, connectionID uuid.UUID) (string, *errors.AppError) {
	conn, err := s.connRepo.GetByID(ctx, connectionID)
	if err != nil {
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}
	if conn == nil {
		return "", errors.NewAppError(errors.ErrNotFound, "calendar connection not found", nil)
	}
	if !conn.IsActive {
		return "", errors.NewAppError(errors.ErrConnectionInactive, "connection expired, please reconnect", nil)
	}

	if s.now().Add(constants.TokenRefreshSafetyMargin).Before(conn.TokenExpiresAt) {
		accessToken, decErr := s.vault.Decrypt(conn.AccessToken)
		if decErr != nil {
			return "", errors.NewAppError(errors.ErrDecryptionFailed, "stored access token is unreadable", decErr)
		}
		return accessToken, nil
	}

	// Expired or about to: collapse concurrent refreshes on the connection id.
	result, err, _ := s.refreshGroup.Do(connectionID.String(), func() (any, error) {
		return s.refresh(ctx, connectionID)
	})
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			return "", appErr
		}
		return "", errors.NewAppError(errors.ErrInternalServer, "token refresh failed", err)
	}
	return result.(string), nil
}

// refresh performs the provider round trip and persists the re-encrypted
// tokens. Runs at most once per connection at a time.
func (s *TokenService) refresh(ctx context.Context, connectionID uuid.UUID) (string, error) {
	// Re-read inside the flight: a concurrent caller may have refreshed
	// between our staleness check and acquiring the flight.
	conn, err := s.connRepo.GetByID(ctx, connectionID)
	if err != nil {
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}
	if conn == nil {
		return "", errors.NewAppError(errors.ErrNotFound, "calendar connection not found", nil)
	}
	if s.now().Add(constants.TokenRefreshSafetyMargin).Before(conn.TokenExpiresAt) {
		return s.vault.Decrypt(conn.AccessToken)
	}

	refreshToken, err := s.vault.Decrypt(conn.RefreshToken)
	if err != nil {
		return "", errors.NewAppError(errors.ErrDecryptionFailed, "stored refresh token is unreadable", err)
	}

	logger.Info("TokenService:refresh:Start", "connection_id", connectionID)
	newToken, err := s.client.RefreshToken(ctx, refreshToken)
	if err != nil {
		classification := Classify(err)
		if classification.Category == CategoryPermanent && classification.Reason == ReasonAuth {
			// Revoked grant: the connection is dead until the admin
			// reconnects.
			s.deactivate(ctx, conn.ID, conn.AdminID)
			return "", errors.NewAppError(errors.ErrConnectionInactive, "connection expired, please reconnect", err)
		}
		logger.Error("TokenService:refresh:Error", "error", err, "connection_id", connectionID)
		return "", errors.NewAppError(errors.ErrProviderUnavailable, "calendar provider is unavailable, will retry", err)
	}

	encAccess, err := s.vault.Encrypt(newToken.AccessToken)
	if err != nil {
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to encrypt access token", err)
	}
	encRefresh, err := s.vault.Encrypt(newToken.RefreshToken)
	if err != nil {
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to encrypt refresh token", err)
	}

	if err := s.connRepo.UpdateTokens(ctx, conn.ID, encAccess, encRefresh, newToken.ExpiresAt); err != nil {
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to persist refreshed tokens", err)
	}

	logger.Info("TokenService:refresh:Success", "connection_id", connectionID, "expires_at", newToken.ExpiresAt)
	return newToken.AccessToken, nil
}

func (s *TokenService) deactivate(ctx context.Context, connectionID, adminID uuid.UUID) {
	logger.Warn("TokenService:deactivate", "connection_id", connectionID)
	if err := s.connRepo.SetInactive(ctx, connectionID); err != nil {
		logger.Error("TokenService:deactivate:Error", "error", err, "connection_id", connectionID)
	}
	if s.notifSvc != nil {
		err := s.notifSvc.Create(ctx, &notifDto.CreateNotificationRequest{
			AdminID: adminID,
			Title:   "Calendar reconnection required",
			Message: "Google revoked access to the connected calendar. Reconnect to resume syncing.",
			Type:    notifEntity.TypeReconnectRequired,
		})
		if err != nil {
			logger.Error("TokenService:deactivate:Notify:Error", "error", err, "admin_id", adminID)
		}
	}
}
