package service

import (
	"time"

	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
)

// IsEligible decides whether an appointment should sync automatically under
// the connection's settings. Pure function of its inputs, no I/O; now is a
// parameter so tests control the clock.
//
// A paused connection refuses all automatic sync regardless of the other
// settings. Manual sync bypasses this check entirely via force.
func IsEligible(appt *apptEntity.Appointment, settings entity.Settings, now time.Time) bool {
	if settings.Paused {
		return false
	}
	if !settings.AutoSyncEnabled {
		return false
	}

	statusAllowed := false
	for _, s := range settings.SyncStatuses {
		if s == string(appt.Status) {
			statusAllowed = true
			break
		}
	}
	if !statusAllowed {
		return false
	}

	if appt.StartTime.Before(now) && !settings.SyncPastAppointments {
		return false
	}
	if appt.Status == apptEntity.StatusCompleted && !settings.SyncCompleted {
		return false
	}
	return true
}
