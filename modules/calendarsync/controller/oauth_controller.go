package controller

import (
	"github.com/jonlee90/thepuppyday-sub014/core/controller"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	"github.com/jonlee90/thepuppyday-sub014/core/middleware"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/dto"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type OAuthController struct {
	service *service.OAuthService
	controller.BaseController
}

func NewOAuthController(service *service.OAuthService) *OAuthController {
	return &OAuthController{
		service:        service,
		BaseController: controller.NewBaseController(),
	}
}

// Start returns the Google consent URL the admin UI redirects to.
func (c *OAuthController) Start(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	url, appErr := c.service.StartOAuth(ctx.Request().Context(), adminID)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, dto.StartOAuthResponse{AuthURL: url}, "OAuth flow started")
}

// Callback handles the Google redirect. It is unauthenticated; the state
// nonce ties it back to the admin that started the flow.
func (c *OAuthController) Callback(ctx echo.Context) error {
	state := ctx.QueryParam("state")
	code := ctx.QueryParam("code")
	if errParam := ctx.QueryParam("error"); errParam != "" {
		return c.BadRequest(errors.ErrInvalidInput, "Google authorization was denied: "+errParam)
	}
	if state == "" || code == "" {
		return c.BadRequest(errors.ErrInvalidInput, "Missing state or code")
	}

	conn, appErr := c.service.HandleCallback(ctx.Request().Context(), state, code)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, dto.ConnectionResponse{
		ID:                 conn.ID,
		GoogleAccountEmail: conn.GoogleAccountEmail,
		CalendarID:         conn.CalendarID,
		IsActive:           conn.IsActive,
		Paused:             conn.Paused,
		LastSyncedAt:       conn.LastSyncedAt,
		ConnectedAt:        conn.CreatedAt,
	}, "Calendar connected successfully")
}

// Disconnect revokes and removes the admin's connection.
func (c *OAuthController) Disconnect(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	if appErr := c.service.Disconnect(ctx.Request().Context(), adminID); appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, nil, "Calendar disconnected")
}

func adminIDFromContext(ctx echo.Context) (uuid.UUID, bool) {
	id, ok := ctx.Get(middleware.ContextKeyAdminID).(uuid.UUID)
	return id, ok
}
