package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/railtail/station-tracker/internal/geofence"
)

// fakeClock hands out strictly increasing timestamps one step apart,
// standing in for the per-observation wall clock inside a batch.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

var testStation = Station{
	StationID:           "85003",
	AssignedLatitude:    0,
	AssignedLongitude:   0,
	AllowedRadiusMeters: 300,
	Status:              geofence.StatusOffline,
}

// Offsets along the equator: 1 degree of longitude is ~111.19 km, so
// 0.0045 deg ~ 500m (outside a 300m fence) and 0.0004 deg ~ 44m (inside).
var (
	obsOutside = Observation{Latitude: 0, Longitude: 0.0045}
	obsInside  = Observation{Latitude: 0, Longitude: 0.0004}
	obsInvalid = Observation{Latitude: 91, Longitude: 0}
)

func TestPlanBatch_ViolationAlwaysAdmitted(t *testing.T) {
	clock := &fakeClock{t: t0, step: time.Second}

	plan := planBatch(testStation, seedAdmissionState(nil), []Observation{obsOutside}, clock.now)

	if len(plan.entries) != 1 {
		t.Fatalf("admitted %d entries, want 1", len(plan.entries))
	}
	if plan.entries[0].Status != geofence.StatusOutside {
		t.Errorf("entry status = %s, want OUTSIDE", plan.entries[0].Status)
	}
	if plan.final.Status != geofence.StatusOutside {
		t.Errorf("final status = %s, want OUTSIDE", plan.final.Status)
	}
	if plan.final.DistanceMeters < 400 || plan.final.DistanceMeters > 600 {
		t.Errorf("distance %v, want ~500m", plan.final.DistanceMeters)
	}
}

func TestPlanBatch_FirstInsideAdmitted(t *testing.T) {
	clock := &fakeClock{t: t0, step: time.Second}

	plan := planBatch(testStation, seedAdmissionState(nil), []Observation{obsInside}, clock.now)

	if len(plan.entries) != 1 {
		t.Fatalf("admitted %d entries, want 1 (no-prior-log rule)", len(plan.entries))
	}
	if plan.entries[0].Status != geofence.StatusInside {
		t.Errorf("entry status = %s, want INSIDE", plan.entries[0].Status)
	}
}

// Batch [OUTSIDE, INSIDE, INSIDE] with no prior log: the violation and the
// recovery transition are admitted; the trailing INSIDE is suppressed
// because the batch runs in seconds, far inside the heartbeat window.
func TestPlanBatch_TransitionSequence(t *testing.T) {
	clock := &fakeClock{t: t0, step: time.Second}

	plan := planBatch(testStation, seedAdmissionState(nil),
		[]Observation{obsOutside, obsInside, obsInside}, clock.now)

	if len(plan.entries) != 2 {
		t.Fatalf("admitted %d entries, want 2", len(plan.entries))
	}
	if plan.entries[0].Status != geofence.StatusOutside || plan.entries[1].Status != geofence.StatusInside {
		t.Errorf("admitted statuses = [%s, %s], want [OUTSIDE, INSIDE]",
			plan.entries[0].Status, plan.entries[1].Status)
	}
	if plan.validCount != 3 {
		t.Errorf("validCount = %d, want 3", plan.validCount)
	}
}

// Every OUTSIDE observation in a batch is admitted, no matter how many.
func TestPlanBatch_NoViolationEverDropped(t *testing.T) {
	clock := &fakeClock{t: t0, step: time.Second}

	obs := make([]Observation, 0, 20)
	for i := 0; i < 20; i++ {
		obs = append(obs, obsOutside)
	}

	plan := planBatch(testStation, seedAdmissionState(nil), obs, clock.now)
	if len(plan.entries) != 20 {
		t.Errorf("admitted %d entries, want all 20 violations", len(plan.entries))
	}
}

// Consecutive INSIDE observations produce at most one entry per rolling
// heartbeat window.
func TestPlanBatch_InsideSampledPerWindow(t *testing.T) {
	// 31 observations 1 minute apart spanning 30 minutes.
	clock := &fakeClock{t: t0, step: time.Minute}

	obs := make([]Observation, 0, 31)
	for i := 0; i < 31; i++ {
		obs = append(obs, obsInside)
	}

	plan := planBatch(testStation, seedAdmissionState(nil), obs, clock.now)

	// First at t+1m, then heartbeat refreshes at ~t+12m and ~t+23m.
	if len(plan.entries) != 3 {
		t.Errorf("admitted %d entries over 30min, want 3 (one per 10min window + seed)", len(plan.entries))
	}
	for i := 1; i < len(plan.entries); i++ {
		gap := plan.entries[i].RecordedAt.Sub(plan.entries[i-1].RecordedAt)
		if gap <= HeartbeatWindow {
			t.Errorf("entries %d and %d only %v apart, want > %v", i-1, i, gap, HeartbeatWindow)
		}
	}
}

// The last valid observation drives the final state even when it was not
// admitted to history, and invalid samples in between are skipped.
func TestPlanBatch_LastValidObservationWins(t *testing.T) {
	clock := &fakeClock{t: t0, step: time.Second}

	plan := planBatch(testStation, seedAdmissionState(nil),
		[]Observation{obsOutside, obsInside, obsInvalid, obsInside}, clock.now)

	if plan.validCount != 3 {
		t.Errorf("validCount = %d, want 3 (invalid skipped)", plan.validCount)
	}
	if plan.final.Status != geofence.StatusInside {
		t.Errorf("final status = %s, want INSIDE from last valid observation", plan.final.Status)
	}
	if plan.finalPoint != (geofence.Point{Latitude: obsInside.Latitude, Longitude: obsInside.Longitude}) {
		t.Errorf("final point = %+v, want last valid observation", plan.finalPoint)
	}
	// 2 admitted: violation + recovery; the trailing INSIDE is suppressed.
	if len(plan.entries) != 2 {
		t.Errorf("admitted %d entries, want 2", len(plan.entries))
	}
}

// A seed from a persisted INSIDE entry suppresses re-logging a fresh
// INSIDE at the head of the next batch: the policy state survives across
// requests because it is seeded from the database, not process memory.
func TestPlanBatch_SeededFromPersistedEntry(t *testing.T) {
	clock := &fakeClock{t: t0, step: time.Second}
	seed := seedAdmissionState(&LocationLogEntry{
		Status:     geofence.StatusInside,
		RecordedAt: t0.Add(-time.Minute),
	})

	plan := planBatch(testStation, seed, []Observation{obsInside}, clock.now)
	if len(plan.entries) != 0 {
		t.Errorf("admitted %d entries, want 0 (fresh INSIDE already logged)", len(plan.entries))
	}
	if plan.validCount != 1 {
		t.Errorf("validCount = %d, want 1", plan.validCount)
	}
}

// Malformed records inside an otherwise good batch are skipped, never
// processed as a fix at the origin and never fatal to the request: an
// empty record, a null coordinate, and a non-numeric one all decode to
// invalid samples while the valid record still drives the outcome.
func TestPlanBatch_MalformedRecordsSkipped(t *testing.T) {
	clock := &fakeClock{t: t0, step: time.Second}

	body := `{"records": [
		{},
		{"latitude": null, "longitude": 0.0045},
		{"latitude": "abc", "longitude": 0.0045},
		{"latitude": 0, "longitude": 0.0045}
	]}`
	var req batchRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode batch request: %v", err)
	}
	if len(req.Records) != 4 {
		t.Fatalf("decoded %d records, want 4", len(req.Records))
	}

	plan := planBatch(testStation, seedAdmissionState(nil), req.Records, clock.now)

	if plan.validCount != 1 {
		t.Errorf("validCount = %d, want 1 (malformed records skipped)", plan.validCount)
	}
	if len(plan.entries) != 1 {
		t.Fatalf("admitted %d entries, want 1", len(plan.entries))
	}
	if plan.entries[0].Latitude != 0 || plan.entries[0].Longitude != 0.0045 {
		t.Errorf("admitted entry at (%v, %v), want the valid record (0, 0.0045)",
			plan.entries[0].Latitude, plan.entries[0].Longitude)
	}
	if plan.finalPoint != (geofence.Point{Latitude: 0, Longitude: 0.0045}) {
		t.Errorf("final point = %+v, want the valid record", plan.finalPoint)
	}
}

// A batch of only malformed records is rejected outright rather than
// committing anything, same as an all-out-of-range batch.
func TestPlanBatch_AllMalformedRecordsYieldNoValid(t *testing.T) {
	clock := &fakeClock{t: t0, step: time.Second}

	var req batchRequest
	if err := json.Unmarshal([]byte(`{"records": [{}, {"latitude": "abc"}]}`), &req); err != nil {
		t.Fatalf("decode batch request: %v", err)
	}

	plan := planBatch(testStation, seedAdmissionState(nil), req.Records, clock.now)
	if plan.validCount != 0 {
		t.Errorf("validCount = %d, want 0", plan.validCount)
	}
	if len(plan.entries) != 0 {
		t.Errorf("admitted %d entries, want 0", len(plan.entries))
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Request-level validation happens before any database access: a
// coordinator with no database at all must still reject these.
func TestApplyBatch_ValidationBeforeIO(t *testing.T) {
	c := NewCoordinator(nil, nil, discardLogger())

	if _, err := c.ApplyBatch(context.Background(), "85003", nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("empty batch: got %v, want ErrEmptyBatch", err)
	}

	big := make([]Observation, MaxBatchSize+1)
	if _, err := c.ApplyBatch(context.Background(), "85003", big); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("oversized batch: got %v, want ErrBatchTooLarge", err)
	}
}
