package entity

import (
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/entity"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCheckedIn AppointmentStatus = "checked_in"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Appointment is a grooming appointment row. Sync-related state lives in the
// calendarsync module; this table is mutated by the booking flows.
type Appointment struct {
	entity.BaseEntity
	CustomerID    uuid.UUID         `db:"customer_id" json:"customer_id"`
	PetID         uuid.UUID         `db:"pet_id" json:"pet_id"`
	ServiceID     uuid.UUID         `db:"service_id" json:"service_id"`
	StartTime     time.Time         `db:"start_time" json:"start_time"`
	Status        AppointmentStatus `db:"status" json:"status"`
	Notes         string            `db:"notes" json:"notes"`
	ImportBatchID *string           `db:"import_batch_id" json:"import_batch_id,omitempty"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// AddOnSnapshot is an add-on attached to one appointment, denormalized for
// the event mapper.
type AddOnSnapshot struct {
	Name            string `db:"name" json:"name"`
	DurationMinutes int    `db:"duration_minutes" json:"duration_minutes"`
}

// Detail is the joined snapshot of an appointment the sync engine works
// with: customer, pet and service names are denormalized so the event mapper
// stays pure.
type Detail struct {
	Appointment
	CustomerName           string          `db:"customer_name" json:"customer_name"`
	CustomerEmail          string          `db:"customer_email" json:"customer_email"`
	CustomerPhone          string          `db:"customer_phone" json:"customer_phone"`
	PetName                string          `db:"pet_name" json:"pet_name"`
	ServiceName            string          `db:"service_name" json:"service_name"`
	ServiceDurationMinutes int             `db:"service_duration_minutes" json:"service_duration_minutes"`
	AddOns                 []AddOnSnapshot `db:"-" json:"add_ons"`
}

// Duration returns the full appointment duration including add-ons.
func (d *Detail) Duration() time.Duration {
	minutes := d.ServiceDurationMinutes
	for _, a := range d.AddOns {
		minutes += a.DurationMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// EndTime is StartTime plus the full duration.
func (d *Detail) EndTime() time.Time {
	return d.StartTime.Add(d.Duration())
}
