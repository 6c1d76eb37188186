package entity

import (
	"github.com/jonlee90/thepuppyday-sub014/core/entity"

	"github.com/google/uuid"
)

type SyncOperation string

const (
	OpCreate SyncOperation = "create"
	OpUpdate SyncOperation = "update"
	OpDelete SyncOperation = "delete"
)

type SyncOutcome string

const (
	OutcomeSuccess SyncOutcome = "success"
	OutcomeFailure SyncOutcome = "failure"
)

// SyncLogEntry is the append-only audit record written by every sync
// attempt. Rows are only removed by the retention archiver.
type SyncLogEntry struct {
	entity.BaseEntity
	AppointmentID uuid.UUID     `db:"appointment_id" json:"appointment_id"`
	Operation     SyncOperation `db:"operation" json:"operation"`
	Outcome       SyncOutcome   `db:"outcome" json:"outcome"`
	ErrorDetail   *string       `db:"error_detail" json:"error_detail,omitempty"`
}

func (SyncLogEntry) TableName() string {
	return "sync_log_entries"
}
