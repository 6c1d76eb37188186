package controller

import (
	"github.com/jonlee90/thepuppyday-sub014/core/controller"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	"github.com/jonlee90/thepuppyday-sub014/core/middleware"
	"github.com/jonlee90/thepuppyday-sub014/core/params"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification/dto"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type NotificationController struct {
	service *service.NotificationService
	controller.BaseController
}

func NewNotificationController(service *service.NotificationService) *NotificationController {
	return &NotificationController{
		service:        service,
		BaseController: controller.NewBaseController(),
	}
}

// GetMyNotifications returns the authenticated admin's notifications.
func (c *NotificationController) GetMyNotifications(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	queryParams := params.NewQueryParams(ctx)
	result, err := c.service.GetMyNotifications(ctx.Request().Context(), adminID, *queryParams)
	if err != nil {
		return c.InternalServerError(errors.ErrInternalServer, "Failed to get notifications", err)
	}

	return c.SuccessResponse(ctx, result, "Notifications retrieved successfully")
}

func (c *NotificationController) MarkAsRead(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	req := new(dto.MarkAsReadRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}

	if err := c.service.MarkAsRead(ctx.Request().Context(), adminID, req.IDs); err != nil {
		return c.InternalServerError(errors.ErrInternalServer, "Failed to mark as read", err)
	}

	return c.SuccessResponse(ctx, nil, "Marked as read successfully")
}

func (c *NotificationController) MarkAllAsRead(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	if err := c.service.MarkAllAsRead(ctx.Request().Context(), adminID); err != nil {
		return c.InternalServerError(errors.ErrInternalServer, "Failed to mark all as read", err)
	}

	return c.SuccessResponse(ctx, nil, "Marked all as read successfully")
}

func (c *NotificationController) CountUnread(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	count, err := c.service.CountUnread(ctx.Request().Context(), adminID)
	if err != nil {
		return c.InternalServerError(errors.ErrInternalServer, "Failed to count unread", err)
	}

	return c.SuccessResponse(ctx, map[string]int{"count": count}, "Unread count retrieved")
}

func adminIDFromContext(ctx echo.Context) (uuid.UUID, bool) {
	id, ok := ctx.Get(middleware.ContextKeyAdminID).(uuid.UUID)
	return id, ok
}
