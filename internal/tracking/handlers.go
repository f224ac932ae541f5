package tracking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/railtail/station-tracker/internal/db"
	"github.com/railtail/station-tracker/internal/geofence"
	"github.com/railtail/station-tracker/internal/utils"
)

type updateRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type batchRequest struct {
	Records []Observation `json:"records"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeApplyError maps coordinator errors onto HTTP statuses. Validation
// failures carry their reason; internal failures stay generic.
func writeApplyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyBatch):
		http.Error(w, "Records array required", http.StatusBadRequest)
	case errors.Is(err, ErrBatchTooLarge):
		http.Error(w, "Batch size too large", http.StatusBadRequest)
	case errors.Is(err, geofence.ErrInvalidCoordinate):
		http.Error(w, "Latitude and Longitude must be valid coordinates", http.StatusBadRequest)
	case errors.Is(err, ErrStationNotFound):
		http.Error(w, "Station not found", http.StatusNotFound)
	default:
		http.Error(w, "Server error", http.StatusInternalServerError)
	}
}

// UpdateLocationHandler applies a single observation. It runs through the
// same coordinator as the batch path with a one-element sequence, so the
// admission policy cannot drift between the two entry points.
func UpdateLocationHandler(w http.ResponseWriter, r *http.Request) {
	stationID, ok := utils.GetStationIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		http.Error(w, "Latitude and Longitude required", http.StatusBadRequest)
		return
	}

	// Single updates reject invalid coordinates up front instead of
	// skipping them the way the batch path does.
	point := geofence.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := geofence.ValidatePoint(point); err != nil {
		http.Error(w, "Latitude and Longitude must be valid coordinates", http.StatusBadRequest)
		return
	}

	result, err := Coord.ApplyBatch(r.Context(), stationID, []Observation{
		{Latitude: point.Latitude, Longitude: point.Longitude},
	})
	if err != nil {
		writeApplyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Location updated successfully",
		"status":   result.FinalStatus,
		"distance": result.FinalDistanceMeters,
	})
}

// BatchUpdateHandler applies an ordered batch of buffered observations in
// one transaction.
func BatchUpdateHandler(w http.ResponseWriter, r *http.Request) {
	stationID, ok := utils.GetStationIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	result, err := Coord.ApplyBatch(r.Context(), stationID, req.Records)
	if err != nil {
		writeApplyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Batch sync successful",
		"admitted": result.AdmittedCount,
		"status":   result.FinalStatus,
		"distance": result.FinalDistanceMeters,
	})
}

// HeartbeatHandler refreshes a station's liveness timestamps without
// touching its compliance status. Status stays owned by the evaluation
// path (INSIDE/OUTSIDE) and the reconciler (OFFLINE).
func HeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	stationID, ok := utils.GetStationIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var station Station
	if err := db.DB.WithContext(r.Context()).First(&station, "station_id = ?", stationID).Error; err != nil {
		http.Error(w, "Station not found", http.StatusNotFound)
		return
	}

	now := time.Now()
	if err := db.DB.WithContext(r.Context()).Model(&Station{}).
		Where("station_id = ?", stationID).
		Update("updated_at", now).Error; err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	// Keep the reconciler's staleness source fresh too. A station that has
	// never reported a location has no current_location row; that is fine,
	// it stays OFFLINE until its first fix.
	db.DB.WithContext(r.Context()).Model(&CurrentLocation{}).
		Where("station_id = ?", stationID).
		Update("updated_at", now)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Heartbeat received",
		"status":  station.Status,
	})
}

// LogsHandler queries the admitted history for one station, newest first,
// with optional time-range, status, and cursor filters.
func LogsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	stationID := q.Get("stationId")
	if stationID == "" {
		http.Error(w, "stationId required", http.StatusBadRequest)
		return
	}

	limit := 20
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	query := db.DB.WithContext(r.Context()).
		Where("station_id = ?", stationID).
		Order("recorded_at DESC").
		Limit(limit)

	if from := q.Get("from"); from != "" {
		query = query.Where("recorded_at >= ?", from)
	}
	if to := q.Get("to"); to != "" {
		query = query.Where("recorded_at <= ?", to)
	}
	if status := q.Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	// Cursor for infinite scroll: fetch strictly older than the last row
	// the client has.
	if lastTime := q.Get("lastTime"); lastTime != "" {
		query = query.Where("recorded_at < ?", lastTime)
	}

	var entries []LocationLogEntry
	if err := query.Find(&entries).Error; err != nil {
		http.Error(w, "Failed to fetch logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":    entries,
		"hasMore": len(entries) == limit,
	})
}

type clientLogRequest struct {
	StationID string `json:"stationId"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ClientLogHandler forwards device-side log lines into the server log
// stream, the fleet's only debugging channel for remote units.
func ClientLogHandler(w http.ResponseWriter, r *http.Request) {
	var req clientLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if req.StationID == "" || req.Level == "" || req.Message == "" {
		http.Error(w, "stationId, level and message required", http.StatusBadRequest)
		return
	}

	switch req.Level {
	case "error", "ERROR":
		Logger.Error("client log", "station_id", req.StationID, "msg", req.Message)
	case "warn", "WARN", "warning":
		Logger.Warn("client log", "station_id", req.StationID, "msg", req.Message)
	default:
		Logger.Info("client log", "station_id", req.StationID, "level", req.Level, "msg", req.Message)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
