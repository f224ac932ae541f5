package stations

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/railtail/station-tracker/internal/db"
	"github.com/railtail/station-tracker/internal/geofence"
	"github.com/railtail/station-tracker/internal/tracking"
	"gorm.io/gorm"
)

// Station IDs are two district digits followed by three unit digits,
// e.g. 85003.
var stationIDPattern = regexp.MustCompile(`^\d{5}$`)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ListHandler returns registry rows with partial station-ID search, a
// district prefix filter, and offset pagination.
func ListHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := db.DB.WithContext(r.Context()).Model(&tracking.Station{}).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit)

	if search := q.Get("search"); search != "" {
		query = query.Where("station_id ILIKE ?", "%"+search+"%")
	}
	if district := q.Get("district"); district != "" {
		query = query.Where("LEFT(station_id, 2) = ?", district)
	}

	var rows []tracking.Station
	if err := query.Find(&rows).Error; err != nil {
		http.Error(w, "Failed to fetch stations", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"page":  page,
		"limit": limit,
		"count": len(rows),
		"data":  rows,
	})
}

// stationWithLocation joins the registry row with the latest known fix for
// the live map view.
type stationWithLocation struct {
	StationID           string    `json:"station_id"`
	AssignedLatitude    float64   `json:"assigned_latitude"`
	AssignedLongitude   float64   `json:"assigned_longitude"`
	AllowedRadiusMeters float64   `json:"allowed_radius_meters"`
	Status              string    `json:"status"`
	UpdatedAt           time.Time `json:"updated_at"`
	Latitude            *float64  `json:"latitude"`
	Longitude           *float64  `json:"longitude"`
	DistanceMeters      *float64  `json:"distance_meters"`
}

// ListWithLocationsHandler returns every station joined with its current
// location, for the dashboard map.
func ListWithLocationsHandler(w http.ResponseWriter, r *http.Request) {
	var rows []stationWithLocation
	err := db.DB.WithContext(r.Context()).Raw(`
		SELECT s.station_id, s.assigned_latitude, s.assigned_longitude,
		       s.allowed_radius_meters, s.status, s.updated_at,
		       cl.latitude, cl.longitude, cl.distance_meters
		FROM tracking.stations s
		LEFT JOIN tracking.current_location cl ON cl.station_id = s.station_id
		ORDER BY s.station_id
	`).Scan(&rows).Error
	if err != nil {
		http.Error(w, "Failed to fetch stations", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

type createRequest struct {
	StationID           string   `json:"station_id"`
	AssignedLatitude    *float64 `json:"assigned_latitude"`
	AssignedLongitude   *float64 `json:"assigned_longitude"`
	AllowedRadiusMeters float64  `json:"allowed_radius_meters"`
}

// CreateHandler registers a station from the admin console. Admin-created
// stations have no device credentials until the unit provisions itself via
// auto-login.
func CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if req.StationID == "" || req.AssignedLatitude == nil || req.AssignedLongitude == nil {
		http.Error(w, "station_id, latitude and longitude are required", http.StatusBadRequest)
		return
	}
	if !stationIDPattern.MatchString(req.StationID) {
		http.Error(w, "Station ID must be 5 digits (e.g. 85003)", http.StatusBadRequest)
		return
	}

	ref := geofence.Point{Latitude: *req.AssignedLatitude, Longitude: *req.AssignedLongitude}
	if err := geofence.ValidatePoint(ref); err != nil {
		http.Error(w, "Latitude and Longitude must be valid coordinates", http.StatusBadRequest)
		return
	}

	radius := req.AllowedRadiusMeters
	if radius <= 0 {
		radius = 300
	}

	var existing tracking.Station
	if err := db.DB.First(&existing, "station_id = ?", req.StationID).Error; err == nil {
		http.Error(w, "Station ID already exists", http.StatusConflict)
		return
	}

	station := tracking.Station{
		StationID:           req.StationID,
		AssignedLatitude:    ref.Latitude,
		AssignedLongitude:   ref.Longitude,
		AllowedRadiusMeters: radius,
		Status:              geofence.StatusOffline,
	}
	if err := db.DB.Create(&station).Error; err != nil {
		http.Error(w, "Failed to create station", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Station created successfully",
		"data":    station,
	})
}

type updateRequest struct {
	AssignedLatitude    *float64 `json:"assigned_latitude"`
	AssignedLongitude   *float64 `json:"assigned_longitude"`
	AllowedRadiusMeters *float64 `json:"allowed_radius_meters"`
	Status              *string  `json:"status"`
}

// UpdateHandler mutates a station's geofence config and, optionally, its
// status. Manual status writes exist for operator correction only.
func UpdateHandler(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "id")
	if stationID == "" {
		http.Error(w, "Station ID required", http.StatusBadRequest)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	updates := map[string]any{}

	if req.AssignedLatitude != nil || req.AssignedLongitude != nil {
		if req.AssignedLatitude == nil || req.AssignedLongitude == nil {
			http.Error(w, "Latitude and longitude must be updated together", http.StatusBadRequest)
			return
		}
		ref := geofence.Point{Latitude: *req.AssignedLatitude, Longitude: *req.AssignedLongitude}
		if err := geofence.ValidatePoint(ref); err != nil {
			http.Error(w, "Latitude and Longitude must be valid coordinates", http.StatusBadRequest)
			return
		}
		updates["assigned_latitude"] = ref.Latitude
		updates["assigned_longitude"] = ref.Longitude
	}

	if req.AllowedRadiusMeters != nil {
		if *req.AllowedRadiusMeters <= 0 {
			http.Error(w, "allowed_radius_meters must be positive", http.StatusBadRequest)
			return
		}
		updates["allowed_radius_meters"] = *req.AllowedRadiusMeters
	}

	if req.Status != nil {
		switch geofence.Status(*req.Status) {
		case geofence.StatusInside, geofence.StatusOutside, geofence.StatusOffline:
			updates["status"] = *req.Status
		default:
			http.Error(w, "Invalid status value", http.StatusBadRequest)
			return
		}
	}

	if len(updates) == 0 {
		http.Error(w, "No fields to update", http.StatusBadRequest)
		return
	}

	result := db.DB.WithContext(r.Context()).Model(&tracking.Station{}).
		Where("station_id = ?", stationID).
		Updates(updates)
	if result.Error != nil {
		http.Error(w, "Failed to update station", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Station not found", http.StatusNotFound)
		return
	}

	var station tracking.Station
	if err := db.DB.First(&station, "station_id = ?", stationID).Error; err != nil {
		http.Error(w, "Failed to reload station", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Station updated successfully",
		"data":    station,
	})
}

// DeleteHandler removes a station and all of its derived rows. The only
// path that ever deletes registry or history data.
func DeleteHandler(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "id")
	if stationID == "" {
		http.Error(w, "Station ID required", http.StatusBadRequest)
		return
	}

	err := db.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("station_id = ?", stationID).Delete(&tracking.LocationLogEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("station_id = ?", stationID).Delete(&tracking.CurrentLocation{}).Error; err != nil {
			return err
		}
		result := tx.Where("station_id = ?", stationID).Delete(&tracking.Station{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Station not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to delete station", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Station deleted"})
}
