package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonlee90/thepuppyday-sub014/core/logger"

	"github.com/hibiken/asynq"
)

// Task type names. Handlers are registered per-type by the owning module.
const (
	TypeWebhookProcess = "calendar:webhook:process"
	TypeBulkSync       = "calendar:sync:bulk"
)

// Queue names. Enqueue callers tag tasks with one of these so the server
// weights below actually apply; untagged tasks land in QueueDefault.
const (
	QueueWebhooks = "webhooks"
	QueueSync     = "sync"
	QueueDefault  = "default"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Queue wraps the asynq client and server so modules only deal with task
// payloads and handler funcs.
type Queue struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
}

func New(cfg RedisConfig) *Queue {
	opt := asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	return &Queue{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				QueueWebhooks: 6,
				QueueSync:     3,
				QueueDefault:  1,
			},
		}),
		mux: asynq.NewServeMux(),
	}
}

// Enqueue marshals payload to JSON and enqueues it under the given task type.
// Retries inside asynq are disabled for sync tasks: redelivery policy belongs
// to the durable retry queue, not the broker.
func (q *Queue) Enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal %s payload: %w", taskType, err)
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), opts...)
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", taskType, err)
	}
	logger.Debug("Queue:Enqueue", "type", taskType, "task_id", info.ID, "queue", info.Queue)
	return nil
}

// HandleFunc registers a handler for a task type.
func (q *Queue) HandleFunc(taskType string, handler func(ctx context.Context, t *asynq.Task) error) {
	q.mux.HandleFunc(taskType, handler)
}

// Start runs the worker pool. Blocks until Shutdown.
func (q *Queue) Start() error {
	return q.server.Run(q.mux)
}

func (q *Queue) Shutdown() {
	q.server.Shutdown()
	_ = q.client.Close()
}
