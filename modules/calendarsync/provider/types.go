package provider

import "time"

// EventDateTime mirrors the Google Calendar API representation of an event
// boundary.
type EventDateTime struct {
	DateTime string `json:"dateTime,omitempty"` // RFC3339
	Date     string `json:"date,omitempty"`     // all-day events
	TimeZone string `json:"timeZone,omitempty"`
}

// EventDraft is the outbound body for insert/update calls.
type EventDraft struct {
	Summary     string        `json:"summary"`
	Description string        `json:"description,omitempty"`
	Start       EventDateTime `json:"start"`
	End         EventDateTime `json:"end"`
	ColorID     string        `json:"colorId,omitempty"`
}

// Event is an event as returned by the API. Optional fields stay pointers or
// zero values; the mapper's parser decides what is required.
type Event struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"` // "confirmed", "tentative", "cancelled"
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	Start       EventDateTime `json:"start"`
	End         EventDateTime `json:"end"`
	ColorID     string        `json:"colorId"`
	Updated     string        `json:"updated"`
}

// Deleted reports whether the provider marked this event cancelled.
func (e *Event) Deleted() bool {
	return e.Status == "cancelled"
}

// Channel is a push-notification channel registered with events.watch.
type Channel struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resourceId"`
	Token      string    `json:"token"`
	Expiration time.Time `json:"-"`
}

// Token is the result of a refresh or exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
