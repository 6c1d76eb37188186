package dto

import (
	"time"

	"github.com/google/uuid"
)

type StartOAuthResponse struct {
	AuthURL string `json:"auth_url"`
}

type ConnectionResponse struct {
	ID                 uuid.UUID  `json:"id"`
	GoogleAccountEmail string     `json:"google_account_email"`
	CalendarID         string     `json:"calendar_id"`
	IsActive           bool       `json:"is_active"`
	Paused             bool       `json:"paused"`
	LastSyncedAt       *time.Time `json:"last_synced_at,omitempty"`
	ConnectedAt        time.Time  `json:"connected_at"`
}

type UpdateSettingsRequest struct {
	AutoSyncEnabled      bool     `json:"auto_sync_enabled"`
	SyncStatuses         []string `json:"sync_statuses" validate:"required,min=1"`
	SyncPastAppointments bool     `json:"sync_past_appointments"`
	SyncCompleted        bool     `json:"sync_completed"`
}

type ManualSyncRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" validate:"required"`
	Operation     string    `json:"operation" validate:"omitempty,oneof=create update delete"`
	Force         bool      `json:"force"`
}

// WebhookPayload carries the Google push-notification headers into the
// worker pool.
type WebhookPayload struct {
	ChannelID     string `json:"channel_id"`
	ResourceState string `json:"resource_state"`
}
