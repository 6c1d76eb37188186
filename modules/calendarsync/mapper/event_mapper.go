package mapper

import (
	"fmt"
	"strings"
	"time"

	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"
)

// Google Calendar colorId per appointment status. The pairing is stable in
// both directions so color round-trips through the provider.
var statusToColor = map[apptEntity.AppointmentStatus]string{
	apptEntity.StatusScheduled: "7",  // peacock
	apptEntity.StatusConfirmed: "10", // basil
	apptEntity.StatusCheckedIn: "5",  // banana
	apptEntity.StatusCompleted: "8",  // graphite
	apptEntity.StatusCancelled: "11", // tomato
	apptEntity.StatusNoShow:    "6",  // tangerine
}

var colorToStatus = func() map[string]apptEntity.AppointmentStatus {
	m := make(map[string]apptEntity.AppointmentStatus, len(statusToColor))
	for status, color := range statusToColor {
		m[color] = status
	}
	return m
}()

// Description line keys. The description is the parseable contract between
// both sync directions; payment fields never appear here.
const (
	keyCustomer = "Customer"
	keyPhone    = "Phone"
	keyEmail    = "Email"
	keyPet      = "Pet"
	keyService  = "Service"
	keyAddOns   = "Add-ons"
	keyNotes    = "Notes"
)

// ToGoogleEvent builds the outbound event draft for one appointment
// snapshot. Pure: no I/O, no clock.
func ToGoogleEvent(detail *apptEntity.Detail, timezone string) *provider.EventDraft {
	var desc strings.Builder
	fmt.Fprintf(&desc, "%s: %s\n", keyCustomer, detail.CustomerName)
	fmt.Fprintf(&desc, "%s: %s\n", keyPhone, detail.CustomerPhone)
	fmt.Fprintf(&desc, "%s: %s\n", keyEmail, detail.CustomerEmail)
	fmt.Fprintf(&desc, "%s: %s\n", keyPet, detail.PetName)
	fmt.Fprintf(&desc, "%s: %s\n", keyService, detail.ServiceName)
	if len(detail.AddOns) > 0 {
		names := make([]string, len(detail.AddOns))
		for i, a := range detail.AddOns {
			names[i] = a.Name
		}
		fmt.Fprintf(&desc, "%s: %s\n", keyAddOns, strings.Join(names, ", "))
	}
	if detail.Notes != "" {
		fmt.Fprintf(&desc, "%s: %s\n", keyNotes, detail.Notes)
	}

	return &provider.EventDraft{
		Summary:     fmt.Sprintf("%s - %s (%s)", detail.PetName, detail.ServiceName, detail.CustomerName),
		Description: desc.String(),
		Start: provider.EventDateTime{
			DateTime: detail.StartTime.Format(time.RFC3339),
			TimeZone: timezone,
		},
		End: provider.EventDateTime{
			DateTime: detail.EndTime().Format(time.RFC3339),
			TimeZone: timezone,
		},
		ColorID: statusToColor[detail.Status],
	}
}

// ImportedEvent is the partial appointment draft recovered from an external
// event during import or webhook reconciliation.
type ImportedEvent struct {
	GoogleEventID string
	Title         string
	StartTime     time.Time
	EndTime       time.Time
	Status        apptEntity.AppointmentStatus
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	PetName       string
	ServiceName   string
	AddOnNames    []string
	Notes         string
}

// ParseError reports a malformed external event. The parser fails closed:
// events it cannot understand are surfaced, never guessed at.
type ParseError struct {
	EventID string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("event %s: %s", e.EventID, e.Reason)
}

// FromGoogleEvent inverts ToGoogleEvent. Customer, pet and service lines are
// required; phone, email, add-ons and notes are optional.
func FromGoogleEvent(ev *provider.Event, loc *time.Location) (*ImportedEvent, error) {
	start, err := parseEventTime(ev.Start, loc)
	if err != nil {
		return nil, &ParseError{EventID: ev.ID, Reason: fmt.Sprintf("bad start time: %v", err)}
	}
	end, err := parseEventTime(ev.End, loc)
	if err != nil {
		return nil, &ParseError{EventID: ev.ID, Reason: fmt.Sprintf("bad end time: %v", err)}
	}

	fields, err := parseDescription(ev.Description)
	if err != nil {
		return nil, &ParseError{EventID: ev.ID, Reason: err.Error()}
	}
	for _, required := range []string{keyCustomer, keyPet, keyService} {
		if fields[required] == "" {
			return nil, &ParseError{EventID: ev.ID, Reason: fmt.Sprintf("missing %q line", required)}
		}
	}

	status, ok := colorToStatus[ev.ColorID]
	if !ok {
		status = apptEntity.StatusScheduled
	}

	imported := &ImportedEvent{
		GoogleEventID: ev.ID,
		Title:         ev.Summary,
		StartTime:     start,
		EndTime:       end,
		Status:        status,
		CustomerName:  fields[keyCustomer],
		CustomerEmail: fields[keyEmail],
		CustomerPhone: fields[keyPhone],
		PetName:       fields[keyPet],
		ServiceName:   fields[keyService],
		Notes:         fields[keyNotes],
	}
	if addOns := fields[keyAddOns]; addOns != "" {
		for _, name := range strings.Split(addOns, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				imported.AddOnNames = append(imported.AddOnNames, trimmed)
			}
		}
	}
	return imported, nil
}

func parseEventTime(edt provider.EventDateTime, loc *time.Location) (time.Time, error) {
	if edt.DateTime != "" {
		return time.Parse(time.RFC3339, edt.DateTime)
	}
	if edt.Date != "" {
		return time.ParseInLocation("2006-01-02", edt.Date, loc)
	}
	return time.Time{}, fmt.Errorf("neither dateTime nor date set")
}

// parseDescription splits "Key: value" lines. Unknown keys are tolerated;
// lines without a separator that aren't blank make the whole description
// malformed.
func parseDescription(description string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("malformed description line %q", line)
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return fields, nil
}
