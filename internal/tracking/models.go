package tracking

import (
	"time"

	"github.com/railtail/station-tracker/internal/geofence"
)

// Station is the registry row for one field device: its identity,
// credentials, assigned geofence, and last known status. Status carries
// two orthogonal concerns with one owner each: INSIDE/OUTSIDE is written
// only by the evaluation path, OFFLINE only by the reconciler.
type Station struct {
	StationID           string          `gorm:"primaryKey" json:"station_id"`
	HashedPassword      string          `json:"-"`
	AssignedLatitude    float64         `json:"assigned_latitude"`
	AssignedLongitude   float64         `json:"assigned_longitude"`
	AllowedRadiusMeters float64         `gorm:"default:300" json:"allowed_radius_meters"`
	Status              geofence.Status `gorm:"default:'OFFLINE'" json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// CurrentLocation holds the latest known truth for a station, one row per
// station, overwritten on every accepted observation whether or not that
// observation was admitted to history.
type CurrentLocation struct {
	StationID      string          `gorm:"primaryKey" json:"station_id"`
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	DistanceMeters float64         `json:"distance_meters"`
	Status         geofence.Status `json:"status"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LocationLogEntry is one admitted observation in the append-only history.
// Rows are never updated or deleted by the application.
type LocationLogEntry struct {
	ID             string          `gorm:"primaryKey" json:"id"`
	StationID      string          `gorm:"index:idx_location_logs_station_time,priority:1" json:"station_id"`
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	DistanceMeters float64         `json:"distance_meters"`
	Status         geofence.Status `json:"status"`
	RecordedAt     time.Time       `gorm:"index:idx_location_logs_station_time,priority:2" json:"recorded_at"`
}

func (Station) TableName() string          { return "tracking.stations" }
func (CurrentLocation) TableName() string  { return "tracking.current_location" }
func (LocationLogEntry) TableName() string { return "tracking.location_logs" }
