package service

import (
	"context"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/cache"
	"github.com/jonlee90/thepuppyday-sub014/core/crypto"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/utils"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var oauthScopes = []string{
	"https://www.googleapis.com/auth/calendar.events",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Sync settings a fresh connection starts with: upcoming confirmed work
// syncs, history does not.
var defaultSyncStatuses = []string{"scheduled", "confirmed", "checked_in"}

// OAuthService runs the connect/disconnect lifecycle. Tokens are encrypted
// before they touch the database and revoked at Google on disconnect.
type OAuthService struct {
	connRepo    repository.ConnectionRepository
	mappingRepo repository.MappingRepository
	retryRepo   repository.RetryRepository
	vault       *crypto.Vault
	client      provider.Client
	cache       cache.Cache
	channelSvc  *ChannelService

	clientID     string
	clientSecret string
	redirectURL  string
	now          func() time.Time
}

func NewOAuthService(
	connRepo repository.ConnectionRepository,
	mappingRepo repository.MappingRepository,
	retryRepo repository.RetryRepository,
	vault *crypto.Vault,
	client provider.Client,
	c cache.Cache,
	channelSvc *ChannelService,
	clientID, clientSecret, redirectURL string,
) *OAuthService {
	return &OAuthService{
		connRepo:     connRepo,
		mappingRepo:  mappingRepo,
		retryRepo:    retryRepo,
		vault:        vault,
		client:       client,
		cache:        c,
		channelSvc:   channelSvc,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		now:          time.Now,
	}
}

func (s *OAuthService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		RedirectURL:  s.redirectURL,
		Scopes:       oauthScopes,
		Endpoint:     google.Endpoint,
	}
}

// StartOAuth returns the Google consent URL for the admin. Refused while an
// active connection exists; disconnect first.
func (s *OAuthService) StartOAuth(ctx context.Context, adminID uuid.UUID) (string, *errors.AppError) {
	existing, err := s.connRepo.GetActiveByAdminID(ctx, adminID)
	if err != nil {
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to check existing connection", err)
	}
	if existing != nil {
		return "", errors.NewAppError(errors.ErrAlreadyExists, "a calendar is already connected, disconnect it first", nil)
	}

	state := utils.GenerateRandomString(32)
	if err := s.cache.SetOAuthState(ctx, state, adminID.String()); err != nil {
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to store oauth state", err)
	}

	// offline + consent forces a refresh token even on re-grants.
	url := s.oauthConfig().AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	logger.Info("OAuthService:StartOAuth", "admin_id", adminID)
	return url, nil
}

// HandleCallback finishes the flow: state check, code exchange, account
// lookup, encrypted persistence, then webhook channel registration.
func (s *OAuthService) HandleCallback(ctx context.Context, state, code string) (*entity.CalendarConnection, *errors.AppError) {
	adminIDStr, err := s.cache.GetOAuthState(ctx, state)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to read oauth state", err)
	}
	if adminIDStr == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "unknown or expired oauth state", nil)
	}
	if err := s.cache.DeleteOAuthState(ctx, state); err != nil {
		logger.Warn("OAuthService:HandleCallback:DeleteState:Error", "error", err)
	}
	adminID, err := uuid.Parse(adminIDStr)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "corrupt oauth state", err)
	}

	token, err := s.client.ExchangeCode(ctx, code, s.redirectURL)
	if err != nil {
		logger.Error("OAuthService:HandleCallback:Exchange:Error", "error", err)
		return nil, errors.NewAppError(errors.ErrProviderUnavailable, "token exchange failed", err)
	}
	if token.RefreshToken == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "google did not return a refresh token, revoke access and retry", nil)
	}

	email, err := s.client.GetUserEmail(ctx, token.AccessToken)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrProviderUnavailable, "failed to look up google account", err)
	}

	encAccess, err := s.vault.Encrypt(token.AccessToken)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to encrypt access token", err)
	}
	encRefresh, err := s.vault.Encrypt(token.RefreshToken)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to encrypt refresh token", err)
	}

	conn := &entity.CalendarConnection{
		AdminID:            adminID,
		GoogleAccountEmail: email,
		CalendarID:         "primary",
		AccessToken:        encAccess,
		RefreshToken:       encRefresh,
		TokenExpiresAt:     token.ExpiresAt,
		IsActive:           true,

		AutoSyncEnabled:      true,
		SyncStatuses:         pq.StringArray(defaultSyncStatuses),
		SyncPastAppointments: false,
		SyncCompleted:        false,
	}
	created, err := s.connRepo.Create(ctx, conn)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to save connection", err)
	}
	logger.Info("OAuthService:HandleCallback:Connected", "admin_id", adminID, "email", email)

	// Channel registration failing must not fail the connect; the renewal
	// sweep opens it later.
	if err := s.channelSvc.Open(ctx, created); err != nil {
		logger.Error("OAuthService:HandleCallback:Channel:Error", "error", err, "connection_id", created.ID)
	}
	return created, nil
}

// Disconnect revokes access at Google and removes all sync state. Calendar
// events created by the engine stay on the calendar.
func (s *OAuthService) Disconnect(ctx context.Context, adminID uuid.UUID) *errors.AppError {
	conn, err := s.connRepo.GetActiveByAdminID(ctx, adminID)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}
	if conn == nil {
		return errors.NewAppError(errors.ErrNotFound, "no calendar connection to disconnect", nil)
	}

	s.channelSvc.Close(ctx, conn)

	// Best-effort revoke; Google invalidates the pair given either token.
	if refreshToken, decErr := s.vault.Decrypt(conn.RefreshToken); decErr == nil {
		if err := s.client.RevokeToken(ctx, refreshToken); err != nil {
			logger.Warn("OAuthService:Disconnect:Revoke:Error", "error", err, "connection_id", conn.ID)
		}
	} else {
		logger.Warn("OAuthService:Disconnect:Decrypt:Error", "error", decErr, "connection_id", conn.ID)
	}

	if err := s.mappingRepo.DeleteByConnectionID(ctx, conn.ID); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to remove event mappings", err)
	}
	if err := s.retryRepo.DeleteByConnectionID(ctx, conn.ID); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to clear retry queue", err)
	}
	if err := s.connRepo.Delete(ctx, conn.ID); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to remove connection", err)
	}
	logger.Info("OAuthService:Disconnect", "admin_id", adminID, "connection_id", conn.ID)
	return nil
}
