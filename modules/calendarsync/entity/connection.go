package entity

import (
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CalendarConnection is one admin's authorized link to a Google Calendar
// account. Token columns hold vault ciphertext, never plaintext.
// At most one active connection exists per admin.
type CalendarConnection struct {
	entity.BaseEntity
	AdminID            uuid.UUID  `db:"admin_id" json:"admin_id"`
	GoogleAccountEmail string     `db:"google_account_email" json:"google_account_email"`
	CalendarID         string     `db:"calendar_id" json:"calendar_id"`
	AccessToken        string     `db:"access_token" json:"-"`
	RefreshToken       string     `db:"refresh_token" json:"-"`
	TokenExpiresAt     time.Time  `db:"token_expires_at" json:"token_expires_at"`
	IsActive           bool       `db:"is_active" json:"is_active"`

	// Circuit breaker state
	ConsecutiveFailures int        `db:"consecutive_failures" json:"consecutive_failures"`
	Paused              bool       `db:"paused" json:"paused"`
	PauseReason         *string    `db:"pause_reason" json:"pause_reason,omitempty"`
	PausedAt            *time.Time `db:"paused_at" json:"paused_at,omitempty"`

	// Webhook channel
	ChannelID         *string    `db:"channel_id" json:"channel_id,omitempty"`
	ChannelToken      *string    `db:"channel_token" json:"-"`
	ChannelResourceID *string    `db:"channel_resource_id" json:"-"`
	ChannelExpiresAt  *time.Time `db:"channel_expires_at" json:"channel_expires_at,omitempty"`

	LastSyncedAt *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`

	// Sync settings, owned by the admin UI but read by the eligibility
	// checker on every push.
	AutoSyncEnabled      bool           `db:"auto_sync_enabled" json:"auto_sync_enabled"`
	SyncStatuses         pq.StringArray `db:"sync_statuses" json:"sync_statuses"`
	SyncPastAppointments bool           `db:"sync_past_appointments" json:"sync_past_appointments"`
	SyncCompleted        bool           `db:"sync_completed" json:"sync_completed"`
}

func (CalendarConnection) TableName() string {
	return "calendar_connections"
}

// Settings is the pure-value view the eligibility checker consumes.
type Settings struct {
	AutoSyncEnabled      bool
	SyncStatuses         []string
	SyncPastAppointments bool
	SyncCompleted        bool
	Paused               bool
}

// SettingsView projects the connection's settings columns.
func (c *CalendarConnection) SettingsView() Settings {
	return Settings{
		AutoSyncEnabled:      c.AutoSyncEnabled,
		SyncStatuses:         []string(c.SyncStatuses),
		SyncPastAppointments: c.SyncPastAppointments,
		SyncCompleted:        c.SyncCompleted,
		Paused:               c.Paused,
	}
}
