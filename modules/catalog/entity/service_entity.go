package entity

import (
	"github.com/jonlee90/thepuppyday-sub014/core/entity"
)

// GroomService is a bookable grooming service.
type GroomService struct {
	entity.BaseEntity
	Name            string `db:"name" json:"name"`
	DurationMinutes int    `db:"duration_minutes" json:"duration_minutes"`
	PriceCents      int    `db:"price_cents" json:"price_cents"`
	IsActive        bool   `db:"is_active" json:"is_active"`
}

func (GroomService) TableName() string {
	return "services"
}

// AddOn is an optional extra that extends the appointment duration.
type AddOn struct {
	entity.BaseEntity
	Name            string `db:"name" json:"name"`
	DurationMinutes int    `db:"duration_minutes" json:"duration_minutes"`
	PriceCents      int    `db:"price_cents" json:"price_cents"`
	IsActive        bool   `db:"is_active" json:"is_active"`
}

func (AddOn) TableName() string {
	return "addons"
}
