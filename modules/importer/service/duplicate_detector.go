package service

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"
	apptRepo "github.com/jonlee90/thepuppyday-sub014/modules/appointment/repository"

	"github.com/google/uuid"
)

type MatchConfidence string

const (
	ConfidenceHigh   MatchConfidence = "high"
	ConfidenceMedium MatchConfidence = "medium"
)

// CandidateRow is one incoming appointment from a calendar import or an
// uploaded file, before any database writes.
type CandidateRow struct {
	RowNumber     int                          `json:"row_number"`
	GoogleEventID string                       `json:"google_event_id,omitempty"`
	CustomerName  string                       `json:"customer_name"`
	CustomerEmail string                       `json:"customer_email"`
	CustomerPhone string                       `json:"customer_phone"`
	PetName       string                       `json:"pet_name"`
	ServiceName   string                       `json:"service_name"`
	AddOnNames    []string                     `json:"add_on_names,omitempty"`
	StartTime     time.Time                    `json:"start_time"`
	Status        apptEntity.AppointmentStatus `json:"status"`
	Notes         string                       `json:"notes,omitempty"`
}

// DuplicateMatch points a candidate row at an existing appointment it
// probably duplicates.
type DuplicateMatch struct {
	RowNumber         int             `json:"row_number"`
	AppointmentID     uuid.UUID       `json:"appointment_id"`
	ExistingStartTime time.Time       `json:"existing_start_time"`
	Confidence        MatchConfidence `json:"confidence"`
}

// DuplicateDetector flags candidate rows that look like appointments we
// already have. Read-only; what to do with a match is the admin's call in
// the preview UI.
type DuplicateDetector struct {
	apptRepo apptRepo.AppointmentRepository
	window   time.Duration
}

// NewDuplicateDetector builds a detector with the given same-time window.
// The window is deliberately loose (same hour by default): customers rebook
// the same slot more often than two different pets share an email, a date
// and an hour.
func NewDuplicateDetector(repo apptRepo.AppointmentRepository, windowMinutes int) *DuplicateDetector {
	if windowMinutes <= 0 {
		windowMinutes = 60
	}
	return &DuplicateDetector{
		apptRepo: repo,
		window:   time.Duration(windowMinutes) * time.Minute,
	}
}

// FindDuplicates classifies every row against the appointment store. A match
// needs the same customer email (case-insensitive), the same pet name, the
// same calendar date, and a start time inside the window. Confidence drops
// to medium when the pet names only agree after normalization.
func (d *DuplicateDetector) FindDuplicates(ctx context.Context, rows []CandidateRow) ([]DuplicateMatch, error) {
	var matches []DuplicateMatch
	for i := range rows {
		row := &rows[i]
		if row.CustomerEmail == "" || row.PetName == "" {
			continue
		}

		dayStart := time.Date(row.StartTime.Year(), row.StartTime.Month(), row.StartTime.Day(), 0, 0, 0, 0, row.StartTime.Location())
		existing, err := d.apptRepo.FindByCustomerEmailAndDay(ctx, row.CustomerEmail, dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}

		for j := range existing {
			appt := &existing[j]
			confidence, ok := d.compare(row, appt)
			if !ok {
				continue
			}
			matches = append(matches, DuplicateMatch{
				RowNumber:         row.RowNumber,
				AppointmentID:     appt.ID,
				ExistingStartTime: appt.StartTime,
				Confidence:        confidence,
			})
		}
	}
	if len(matches) > 0 {
		logger.Info("DuplicateDetector:FindDuplicates", "rows", len(rows), "matches", len(matches))
	}
	return matches, nil
}

func (d *DuplicateDetector) compare(row *CandidateRow, appt *apptEntity.Detail) (MatchConfidence, bool) {
	diff := row.StartTime.Sub(appt.StartTime)
	if diff < 0 {
		diff = -diff
	}
	if diff > d.window {
		return "", false
	}

	if strings.EqualFold(strings.TrimSpace(row.PetName), strings.TrimSpace(appt.PetName)) {
		return ConfidenceHigh, true
	}
	if normalizeName(row.PetName) == normalizeName(appt.PetName) {
		return ConfidenceMedium, true
	}
	return "", false
}

// normalizeName lowercases and strips everything that is not a letter or
// digit, so "Max Jr." and "max jr" compare equal.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
