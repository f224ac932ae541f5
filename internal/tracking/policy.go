package tracking

import (
	"time"

	"github.com/railtail/station-tracker/internal/geofence"
)

// HeartbeatWindow is the sampling cadence for routine INSIDE observations:
// a station that stays compliant gets at most one history row per window.
const HeartbeatWindow = 10 * time.Minute

// admissionState is the running log-admission state for one station. It is
// seeded from the most recent persisted log entry before a batch begins and
// advanced in memory as observations within the batch are admitted; the
// database is never re-read mid-batch.
type admissionState struct {
	hasPrior bool
	status   geofence.Status
	loggedAt time.Time
}

// seedAdmissionState builds the pre-batch state from the last persisted
// entry, or the empty state when the station has never logged.
func seedAdmissionState(last *LocationLogEntry) admissionState {
	if last == nil {
		return admissionState{}
	}
	return admissionState{
		hasPrior: true,
		status:   last.Status,
		loggedAt: last.RecordedAt,
	}
}

// shouldAdmit decides whether an observation with the given computed status
// is persisted to history. First match wins:
//
//	OUTSIDE                      -> admit (violations are never dropped)
//	INSIDE, no prior entry       -> admit
//	INSIDE, prior was OUTSIDE    -> admit (recovery transition)
//	INSIDE, window elapsed       -> admit (heartbeat refresh)
//	INSIDE otherwise             -> suppress
func (s admissionState) shouldAdmit(computed geofence.Status, now time.Time) bool {
	if computed == geofence.StatusOutside {
		return true
	}
	if !s.hasPrior {
		return true
	}
	if s.status == geofence.StatusOutside {
		return true
	}
	return now.Sub(s.loggedAt) > HeartbeatWindow
}

// recordAdmission advances the running state after an observation is
// admitted.
func (s *admissionState) recordAdmission(status geofence.Status, at time.Time) {
	s.hasPrior = true
	s.status = status
	s.loggedAt = at
}
