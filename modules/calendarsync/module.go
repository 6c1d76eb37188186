package calendarsync

import (
	"github.com/jonlee90/thepuppyday-sub014/core/cache"
	"github.com/jonlee90/thepuppyday-sub014/core/config"
	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/crypto"
	"github.com/jonlee90/thepuppyday-sub014/core/database"
	"github.com/jonlee90/thepuppyday-sub014/core/middleware"
	"github.com/jonlee90/thepuppyday-sub014/core/queue"
	"github.com/jonlee90/thepuppyday-sub014/core/storage"
	apptRepo "github.com/jonlee90/thepuppyday-sub014/modules/appointment/repository"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/controller"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/router"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/service"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/tasks"
	notifService "github.com/jonlee90/thepuppyday-sub014/modules/notification/service"

	"github.com/labstack/echo/v4"
)

// Module exposes the pieces the scheduler and other modules need after
// wiring.
type Module struct {
	SyncSvc        *service.SyncService
	RetrySvc       *service.RetryService
	ChannelSvc     *service.ChannelService
	MaintenanceSvc *service.MaintenanceService
	MappingRepo    repository.MappingRepository
	ConnRepo       repository.ConnectionRepository
	Provider       provider.Client
	TokenSvc       *service.TokenService
}

func Init(
	e *echo.Group,
	db database.Database,
	mw *middleware.Middleware,
	c cache.Cache,
	q *queue.Queue,
	uploader storage.Uploader,
	notifSvc *notifService.NotificationService,
	cfg *config.Config,
) (*Module, error) {
	vault, err := crypto.NewVault(cfg.Sync.EncryptionKey)
	if err != nil {
		return nil, err
	}

	connRepo := repository.NewConnectionRepository(db)
	mappingRepo := repository.NewMappingRepository(db)
	syncLogRepo := repository.NewSyncLogRepository(db)
	retryRepo := repository.NewRetryRepository(db)
	quotaRepo := repository.NewQuotaRepository(db)
	appointmentRepo := apptRepo.NewAppointmentRepository(db)

	client := provider.NewGoogleClient(provider.OAuthConfig{
		ClientID:     cfg.GoogleAPI.ClientID,
		ClientSecret: cfg.GoogleAPI.ClientSecret,
	})

	dailyLimit := cfg.Sync.QuotaDailyLimit
	if dailyLimit <= 0 {
		dailyLimit = constants.QuotaDailyLimit
	}
	quotaSvc := service.NewQuotaService(quotaRepo, dailyLimit, constants.QuotaHighWaterPercent)
	breaker := service.NewBreaker(connRepo, notifSvc)
	tokenSvc := service.NewTokenService(connRepo, vault, client, notifSvc)

	syncSvc := service.NewSyncService(connRepo, appointmentRepo, mappingRepo, syncLogRepo, retryRepo,
		tokenSvc, client, quotaSvc, breaker, cfg.Sync.Timezone)
	retrySvc := service.NewRetryService(retryRepo, connRepo, mappingRepo, syncSvc, breaker, notifSvc)
	webhookSvc := service.NewWebhookService(connRepo, appointmentRepo, mappingRepo, tokenSvc, client,
		syncSvc, quotaSvc, cfg.Sync.Timezone)

	webhookURL := cfg.Server.BaseURL + "/api/calendar/webhook"
	channelSvc := service.NewChannelService(connRepo, tokenSvc, client, quotaSvc, webhookURL)
	oauthSvc := service.NewOAuthService(connRepo, mappingRepo, retryRepo, vault, client, c, channelSvc,
		cfg.GoogleAPI.ClientID, cfg.GoogleAPI.ClientSecret, cfg.GoogleAPI.RedirectURL)
	bulkSvc := service.NewBulkService(connRepo, appointmentRepo, syncSvc, quotaSvc, c, q)
	maintenanceSvc := service.NewMaintenanceService(syncLogRepo, quotaRepo, uploader)

	oauthCtrl := controller.NewOAuthController(oauthSvc)
	syncCtrl := controller.NewSyncController(syncSvc, bulkSvc)
	webhookCtrl := controller.NewWebhookController(webhookSvc, q)
	router.NewCalendarSyncRouter(oauthCtrl, syncCtrl, webhookCtrl).Register(e, mw)

	tasks.NewHandlers(webhookSvc, bulkSvc).Register(q)

	return &Module{
		SyncSvc:        syncSvc,
		RetrySvc:       retrySvc,
		ChannelSvc:     channelSvc,
		MaintenanceSvc: maintenanceSvc,
		MappingRepo:    mappingRepo,
		ConnRepo:       connRepo,
		Provider:       client,
		TokenSvc:       tokenSvc,
	}, nil
}
