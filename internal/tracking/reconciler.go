package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/railtail/station-tracker/internal/live"
	"gorm.io/gorm"
)

// LivenessWindow is the maximum reporting silence before a station is
// considered OFFLINE.
const LivenessWindow = 2 * time.Minute

// ReconcileInterval is how often the offline sweep runs.
const ReconcileInterval = time.Minute

// Reconciler periodically demotes silent stations to OFFLINE. It is the
// only writer of the OFFLINE status; the evaluation path writes only
// INSIDE/OUTSIDE. That write partition is a convention, not a lock -
// the two paths touch disjoint status values so a slow-but-live update
// is never clobbered by a stale offline marker.
type Reconciler struct {
	db  *gorm.DB
	hub Notifier
	log *slog.Logger
	now func() time.Time
}

func NewReconciler(db *gorm.DB, hub Notifier, log *slog.Logger) *Reconciler {
	return &Reconciler{db: db, hub: hub, log: log, now: time.Now}
}

// Run sweeps once per interval until ctx is cancelled. Sweep failures are
// logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.Error("tracking: offline sweep failed", "err", err)
			}
		}
	}
}

// Sweep demotes every station whose latest location report is older than
// the liveness window, skipping stations already OFFLINE so no redundant
// writes or events are produced. One status event per demoted station.
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := r.now().Add(-LivenessWindow)

	var demoted []string
	err := r.db.WithContext(ctx).Raw(`
		UPDATE tracking.stations s
		SET status = 'OFFLINE', updated_at = NOW()
		FROM tracking.current_location cl
		WHERE cl.station_id = s.station_id
		  AND cl.updated_at < ?
		  AND s.status != 'OFFLINE'
		RETURNING s.station_id
	`, cutoff).Scan(&demoted).Error
	if err != nil {
		return err
	}

	for _, stationID := range demoted {
		r.log.Info("tracking: station marked OFFLINE", "station_id", stationID)
		if r.hub != nil {
			r.hub.Broadcast("statusUpdate", live.StatusUpdate{
				StationID: stationID,
				Status:    "OFFLINE",
			})
		}
	}

	return nil
}
