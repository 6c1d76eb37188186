package router

import (
	"github.com/jonlee90/thepuppyday-sub014/core/middleware"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/controller"

	"github.com/labstack/echo/v4"
)

type CalendarSyncRouter struct {
	oauthCtrl   *controller.OAuthController
	syncCtrl    *controller.SyncController
	webhookCtrl *controller.WebhookController
}

func NewCalendarSyncRouter(oauthCtrl *controller.OAuthController, syncCtrl *controller.SyncController, webhookCtrl *controller.WebhookController) *CalendarSyncRouter {
	return &CalendarSyncRouter{
		oauthCtrl:   oauthCtrl,
		syncCtrl:    syncCtrl,
		webhookCtrl: webhookCtrl,
	}
}

func (r *CalendarSyncRouter) Register(e *echo.Group, mw *middleware.Middleware) {
	// OAuth callback and the webhook are called by Google, not the admin UI.
	e.GET("/calendar/oauth/callback", r.oauthCtrl.Callback)
	e.POST("/calendar/webhook", r.webhookCtrl.Receive)

	group := e.Group("/calendar", mw.AuthMiddleware())
	group.GET("/oauth/start", r.oauthCtrl.Start)
	group.DELETE("/connection", r.oauthCtrl.Disconnect)

	group.POST("/sync", r.syncCtrl.ManualSync)
	group.POST("/sync/bulk", r.syncCtrl.BulkSync)
	group.GET("/sync/bulk/:id", r.syncCtrl.BulkSyncStatus)
	group.GET("/sync/status", r.syncCtrl.Status)
	group.POST("/sync/resume", r.syncCtrl.Resume)
	group.GET("/sync/activity/:appointmentId", r.syncCtrl.Activity)
	group.PUT("/settings", r.syncCtrl.UpdateSettings)
}
