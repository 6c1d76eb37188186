package entity

import (
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/entity"

	"github.com/google/uuid"
)

// RetryQueueItem schedules redelivery of one failed push operation. One row
// per (appointment, operation); removed on success or after the retry budget
// is exhausted.
type RetryQueueItem struct {
	entity.BaseEntity
	AppointmentID uuid.UUID     `db:"appointment_id" json:"appointment_id"`
	ConnectionID  uuid.UUID     `db:"connection_id" json:"connection_id"`
	Operation     SyncOperation `db:"operation" json:"operation"`
	RetryCount    int           `db:"retry_count" json:"retry_count"`
	LastAttemptAt time.Time     `db:"last_attempt_at" json:"last_attempt_at"`
	NextRetryAt   time.Time     `db:"next_retry_at" json:"next_retry_at"`
	LastError     *string       `db:"last_error" json:"last_error,omitempty"`
}

func (RetryQueueItem) TableName() string {
	return "retry_queue_items"
}

// QuotaCounter tracks provider API calls for one calendar day.
type QuotaCounter struct {
	Day   string `db:"day" json:"day"` // YYYY-MM-DD
	Count int    `db:"count" json:"count"`
}

func (QuotaCounter) TableName() string {
	return "quota_counters"
}
