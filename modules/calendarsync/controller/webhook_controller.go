package controller

import (
	"context"
	"net/http"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/controller"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/queue"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/dto"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/service"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
)

// Google push-notification headers.
const (
	headerChannelID     = "X-Goog-Channel-ID"
	headerChannelToken  = "X-Goog-Channel-Token"
	headerResourceState = "X-Goog-Resource-State"
)

// WebhookController acknowledges Google notifications. The handler does no
// provider work itself: validated notifications are queued and the response
// goes out immediately, well inside Google's delivery timeout.
type WebhookController struct {
	webhookSvc *service.WebhookService
	queue      *queue.Queue
	controller.BaseController
}

func NewWebhookController(webhookSvc *service.WebhookService, q *queue.Queue) *WebhookController {
	return &WebhookController{
		webhookSvc:     webhookSvc,
		queue:          q,
		BaseController: controller.NewBaseController(),
	}
}

// Receive always answers 200. Invalid notifications are dropped silently so
// a forging sender learns nothing, and Google stops retrying.
func (c *WebhookController) Receive(ctx echo.Context) error {
	channelID := ctx.Request().Header.Get(headerChannelID)
	channelToken := ctx.Request().Header.Get(headerChannelToken)
	state := ctx.Request().Header.Get(headerResourceState)

	// Validation plus enqueue must finish inside the ack window or Google
	// counts the delivery as failed.
	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), constants.WebhookAckBudget)
	defer cancel()

	_, ok := c.webhookSvc.ValidateNotification(reqCtx, channelID, channelToken)
	if !ok {
		return ctx.NoContent(http.StatusOK)
	}

	// state "sync" is the registration handshake; nothing changed yet.
	if state == "sync" {
		logger.Info("WebhookController:Receive:Handshake", "channel_id", channelID)
		return ctx.NoContent(http.StatusOK)
	}

	payload := dto.WebhookPayload{ChannelID: channelID, ResourceState: state}
	if err := c.queue.Enqueue(reqCtx, queue.TypeWebhookProcess, payload, asynq.Queue(queue.QueueWebhooks)); err != nil {
		// Still 200: Google redelivers, and the next notification covers
		// this change anyway since processing refetches by time window.
		logger.Error("WebhookController:Receive:Enqueue:Error", "error", err, "channel_id", channelID)
	}
	return ctx.NoContent(http.StatusOK)
}
