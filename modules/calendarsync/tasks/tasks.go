package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/queue"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/dto"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/service"

	"github.com/hibiken/asynq"
)

// Handlers binds the calendar sync task types to their services. Tasks never
// fail-and-requeue through asynq: the durable retry queue owns redelivery,
// so handlers swallow domain errors after logging.
type Handlers struct {
	webhookSvc *service.WebhookService
	bulkSvc    *service.BulkService
}

func NewHandlers(webhookSvc *service.WebhookService, bulkSvc *service.BulkService) *Handlers {
	return &Handlers{webhookSvc: webhookSvc, bulkSvc: bulkSvc}
}

// Register attaches the handlers to the worker mux.
func (h *Handlers) Register(q *queue.Queue) {
	q.HandleFunc(queue.TypeWebhookProcess, h.HandleWebhookProcess)
	q.HandleFunc(queue.TypeBulkSync, h.HandleBulkSync)
}

func (h *Handlers) HandleWebhookProcess(ctx context.Context, t *asynq.Task) error {
	var payload dto.WebhookPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("webhook payload: %w", err)
	}
	if err := h.webhookSvc.Process(ctx, payload.ChannelID); err != nil {
		logger.Error("Tasks:WebhookProcess:Error", "error", err, "channel_id", payload.ChannelID)
	}
	return nil
}

func (h *Handlers) HandleBulkSync(ctx context.Context, t *asynq.Task) error {
	var payload service.BulkSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("bulk sync payload: %w", err)
	}
	if err := h.bulkSvc.Run(ctx, payload.JobID, payload.AdminID); err != nil {
		logger.Error("Tasks:BulkSync:Error", "error", err, "job_id", payload.JobID)
	}
	return nil
}
