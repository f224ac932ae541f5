package analytics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/railtail/station-tracker/internal/db"
	"github.com/railtail/station-tracker/internal/tracking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusDistributionHandler counts stations per live compliance status.
func StatusDistributionHandler(w http.ResponseWriter, r *http.Request) {
	var rows []struct {
		Status string
		Count  int
	}
	err := db.DB.WithContext(r.Context()).Raw(`
		SELECT status, COUNT(*)::int AS count
		FROM tracking.current_location
		GROUP BY status
	`).Scan(&rows).Error
	if err != nil {
		http.Error(w, "Failed to fetch status analytics", http.StatusInternalServerError)
		return
	}

	dist := map[string]int{"INSIDE": 0, "OUTSIDE": 0, "OFFLINE": 0}
	for _, row := range rows {
		dist[row.Status] = row.Count
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": dist})
}

// DailyViolationsHandler returns the per-day count of OUTSIDE log entries
// over the trailing N days (default 7, max 90).
func DailyViolationsHandler(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days < 1 {
		days = 7
	}
	if days > 90 {
		days = 90
	}

	var rows []struct {
		Day   time.Time `json:"day"`
		Count int       `json:"count"`
	}
	err := db.DB.WithContext(r.Context()).Raw(`
		SELECT DATE(recorded_at) AS day, COUNT(*)::int AS count
		FROM tracking.location_logs
		WHERE status = 'OUTSIDE'
		  AND recorded_at >= NOW() - make_interval(days => ?)
		GROUP BY day
		ORDER BY day ASC
	`, days).Scan(&rows).Error
	if err != nil {
		http.Error(w, "Failed to fetch daily analytics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"days": days, "data": rows})
}

// TopViolatorsHandler ranks stations by recorded violation count.
func TopViolatorsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 5
	}
	if limit > 20 {
		limit = 20
	}

	var rows []struct {
		StationID  string `json:"station_id"`
		Violations int    `json:"violations"`
	}
	err := db.DB.WithContext(r.Context()).Raw(`
		SELECT station_id, COUNT(*)::int AS violations
		FROM tracking.location_logs
		WHERE status = 'OUTSIDE'
		GROUP BY station_id
		ORDER BY violations DESC
		LIMIT ?
	`, limit).Scan(&rows).Error
	if err != nil {
		http.Error(w, "Failed to fetch top violators", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

// ExportHandler streams a station's admitted history as CSV, optionally
// filtered to a set of statuses (?status=OUTSIDE&status=INSIDE).
func ExportHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	stationID := q.Get("stationId")
	if stationID == "" {
		http.Error(w, "stationId required", http.StatusBadRequest)
		return
	}

	query := `
		SELECT station_id, latitude, longitude, distance_meters, status, recorded_at
		FROM tracking.location_logs
		WHERE station_id = ?
	`
	args := []any{stationID}

	if statuses := q["status"]; len(statuses) > 0 {
		query += ` AND status = ANY(?)`
		args = append(args, pq.Array(statuses))
	}
	query += ` ORDER BY recorded_at ASC`

	var entries []tracking.LocationLogEntry
	if err := db.DB.WithContext(r.Context()).Raw(query, args...).Scan(&entries).Error; err != nil {
		http.Error(w, "Failed to export logs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="station-%s-logs.csv"`, stationID))

	cw := csv.NewWriter(w)
	cw.Write([]string{"station_id", "latitude", "longitude", "distance_meters", "status", "recorded_at"})
	for _, e := range entries {
		cw.Write([]string{
			e.StationID,
			strconv.FormatFloat(e.Latitude, 'f', -1, 64),
			strconv.FormatFloat(e.Longitude, 'f', -1, 64),
			strconv.FormatFloat(e.DistanceMeters, 'f', 2, 64),
			string(e.Status),
			e.RecordedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
}
