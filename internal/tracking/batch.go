package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/railtail/station-tracker/internal/geofence"
	"github.com/railtail/station-tracker/internal/live"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxBatchSize caps one sync request; devices buffer offline and flush in
// chunks, so anything larger indicates a misbehaving client.
const MaxBatchSize = 100

var (
	ErrEmptyBatch        = errors.New("empty batch")
	ErrBatchTooLarge     = errors.New("batch too large")
	ErrStationNotFound   = errors.New("station not found")
	ErrTransactionFailed = errors.New("transaction failed")
)

// Observation is one raw coordinate sample as reported by a device.
type Observation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UnmarshalJSON decodes one batch record without letting a malformed one
// fail the whole request. A missing, null, or non-numeric coordinate
// becomes NaN, which the evaluator rejects, so the record is skipped the
// same way an out-of-range one is.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	o.Latitude, o.Longitude = math.NaN(), math.NaN()
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if raw.Latitude != nil {
		o.Latitude = *raw.Latitude
	}
	if raw.Longitude != nil {
		o.Longitude = *raw.Longitude
	}
	return nil
}

// BatchResult summarizes an applied batch: how many observations were
// admitted to history, and the final (last valid) observation's evaluation.
type BatchResult struct {
	AdmittedCount       int             `json:"admitted_count"`
	FinalStatus         geofence.Status `json:"final_status"`
	FinalDistanceMeters float64         `json:"final_distance_meters"`
	FinalLatitude       float64         `json:"final_latitude"`
	FinalLongitude      float64         `json:"final_longitude"`
}

// Notifier receives one live event per committed batch. Satisfied by
// *live.Hub; delivery is best-effort and never affects the transaction.
type Notifier interface {
	Broadcast(event string, data any)
}

// Coordinator applies observation batches: evaluate each sample, decide
// history admission, and commit all derived writes in one transaction.
// The single-update path is the same code with a one-element batch.
type Coordinator struct {
	db  *gorm.DB
	hub Notifier
	log *slog.Logger
	now func() time.Time
}

func NewCoordinator(db *gorm.DB, hub Notifier, log *slog.Logger) *Coordinator {
	return &Coordinator{db: db, hub: hub, log: log, now: time.Now}
}

// batchPlan is the staged outcome of iterating a batch: the history rows to
// insert and the final evaluation to propagate. Computed before the
// transaction begins; the transaction only executes it.
type batchPlan struct {
	entries    []LocationLogEntry
	final      geofence.Evaluation
	finalPoint geofence.Point
	validCount int
}

// planBatch iterates observations in submitted order, evaluating each one
// and applying the admission policy with in-memory running state. Invalid
// observations are skipped. Pure with respect to the database.
func planBatch(station Station, seed admissionState, observations []Observation, now func() time.Time) batchPlan {
	reference := geofence.Point{
		Latitude:  station.AssignedLatitude,
		Longitude: station.AssignedLongitude,
	}

	state := seed
	var plan batchPlan

	for _, obs := range observations {
		point := geofence.Point{Latitude: obs.Latitude, Longitude: obs.Longitude}

		eval, err := geofence.Evaluate(reference, station.AllowedRadiusMeters, point)
		if err != nil {
			// Bad sample, not a bad batch.
			continue
		}

		ts := now()
		if state.shouldAdmit(eval.Status, ts) {
			plan.entries = append(plan.entries, LocationLogEntry{
				ID:             uuid.NewString(),
				StationID:      station.StationID,
				Latitude:       point.Latitude,
				Longitude:      point.Longitude,
				DistanceMeters: eval.DistanceMeters,
				Status:         eval.Status,
				RecordedAt:     ts,
			})
			state.recordAdmission(eval.Status, ts)
		}

		// Last valid observation wins for live state, admitted or not.
		plan.final = eval
		plan.finalPoint = point
		plan.validCount++
	}

	return plan
}

// ApplyBatch validates and applies an ordered sequence of observations for
// one station. All staged history inserts, the current-location upsert, and
// the station status update commit atomically; on any failure the whole
// batch rolls back and the caller must retry it in full.
func (c *Coordinator) ApplyBatch(ctx context.Context, stationID string, observations []Observation) (BatchResult, error) {
	if len(observations) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	if len(observations) > MaxBatchSize {
		return BatchResult{}, fmt.Errorf("%w: %d observations (max %d)", ErrBatchTooLarge, len(observations), MaxBatchSize)
	}

	var station Station
	if err := c.db.WithContext(ctx).First(&station, "station_id = ?", stationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return BatchResult{}, ErrStationNotFound
		}
		return BatchResult{}, fmt.Errorf("%w: load station: %v", ErrTransactionFailed, err)
	}

	// Seed the admission policy from the last persisted entry, once. The
	// in-batch state then lives purely in memory.
	seed, err := c.loadSeedState(ctx, stationID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("%w: load last log entry: %v", ErrTransactionFailed, err)
	}

	plan := planBatch(station, seed, observations, c.now)
	if plan.validCount == 0 {
		// Nothing valid means there is no "last valid observation" to
		// propagate; reject like the single-update path would.
		return BatchResult{}, geofence.ErrInvalidCoordinate
	}

	txErr := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(plan.entries) > 0 {
			if err := tx.Create(&plan.entries).Error; err != nil {
				return fmt.Errorf("insert log entries: %w", err)
			}
		}

		now := c.now()
		loc := CurrentLocation{
			StationID:      station.StationID,
			Latitude:       plan.finalPoint.Latitude,
			Longitude:      plan.finalPoint.Longitude,
			DistanceMeters: plan.final.DistanceMeters,
			Status:         plan.final.Status,
			UpdatedAt:      now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "station_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"latitude", "longitude", "distance_meters", "status", "updated_at",
			}),
		}).Create(&loc).Error; err != nil {
			return fmt.Errorf("upsert current location: %w", err)
		}

		// Only INSIDE/OUTSIDE flow through here; OFFLINE belongs to the
		// reconciler.
		if err := tx.Model(&Station{}).
			Where("station_id = ?", station.StationID).
			Updates(map[string]any{
				"status":     plan.final.Status,
				"updated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("update station status: %w", err)
		}

		return nil
	})
	if txErr != nil {
		c.log.Error("tracking: batch transaction rolled back",
			"station_id", stationID, "observations", len(observations), "err", txErr)
		return BatchResult{}, fmt.Errorf("%w: %v", ErrTransactionFailed, txErr)
	}

	result := BatchResult{
		AdmittedCount:       len(plan.entries),
		FinalStatus:         plan.final.Status,
		FinalDistanceMeters: plan.final.DistanceMeters,
		FinalLatitude:       plan.finalPoint.Latitude,
		FinalLongitude:      plan.finalPoint.Longitude,
	}

	c.notify(station, result)

	return result, nil
}

// loadSeedState reads the last persisted entry before the write
// transaction opens. Devices send their own batches serially, so two
// concurrent batches for one station are not expected; if they do race,
// both may seed from the same entry and each admit a heartbeat row.
func (c *Coordinator) loadSeedState(ctx context.Context, stationID string) (admissionState, error) {
	var last LocationLogEntry
	err := c.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("recorded_at DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return seedAdmissionState(nil), nil
	}
	if err != nil {
		return admissionState{}, err
	}
	return seedAdmissionState(&last), nil
}

// notify emits one live event per batch, after commit. Fire-and-forget.
func (c *Coordinator) notify(station Station, result BatchResult) {
	if c.hub == nil {
		return
	}
	c.hub.Broadcast("locationUpdate", live.LocationUpdate{
		StationID:           station.StationID,
		Latitude:            result.FinalLatitude,
		Longitude:           result.FinalLongitude,
		DistanceMeters:      result.FinalDistanceMeters,
		Status:              string(result.FinalStatus),
		AssignedLatitude:    station.AssignedLatitude,
		AssignedLongitude:   station.AssignedLongitude,
		AllowedRadiusMeters: station.AllowedRadiusMeters,
	})
}
