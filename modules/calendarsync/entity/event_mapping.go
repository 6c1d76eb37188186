package entity

import (
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/entity"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusError   SyncStatus = "error"
)

// EventMapping ties one local appointment to one Google Calendar event.
// At most one mapping per appointment; the event id is unique per connection.
type EventMapping struct {
	entity.BaseEntity
	AppointmentID uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	ConnectionID  uuid.UUID  `db:"connection_id" json:"connection_id"`
	GoogleEventID string     `db:"google_event_id" json:"google_event_id"`
	LastSyncedAt  time.Time  `db:"last_synced_at" json:"last_synced_at"`
	Status        SyncStatus `db:"status" json:"status"`
}

func (EventMapping) TableName() string {
	return "event_mappings"
}
