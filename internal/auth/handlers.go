package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/railtail/station-tracker/internal/db"
	"github.com/railtail/station-tracker/internal/geofence"
	"github.com/railtail/station-tracker/internal/tracking"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const stationTokenTTL = 7 * 24 * time.Hour
const adminTokenTTL = 8 * time.Hour

type registerRequest struct {
	StationID    string   `json:"stationId"`
	Password     string   `json:"password"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	RadiusMeters float64  `json:"allowedRadiusMeters"`
}

type loginRequest struct {
	StationID string `json:"stationId"`
	Password  string `json:"password"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func signStationToken(stationID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"station_id": stationID,
		"exp":        time.Now().Add(stationTokenTTL).Unix(),
	})
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}

// RegisterStationHandler creates a station with its assigned reference
// point. New stations start OFFLINE until their first location report.
func RegisterStationHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if req.StationID == "" || req.Password == "" || req.Latitude == nil || req.Longitude == nil {
		http.Error(w, "Station ID, Password and Location required", http.StatusBadRequest)
		return
	}

	ref := geofence.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := geofence.ValidatePoint(ref); err != nil {
		http.Error(w, "Latitude and Longitude must be valid coordinates", http.StatusBadRequest)
		return
	}

	radius := req.RadiusMeters
	if radius <= 0 {
		radius = 300
	}

	var existing tracking.Station
	if err := db.DB.First(&existing, "station_id = ?", req.StationID).Error; err == nil {
		http.Error(w, "Station already exists", http.StatusConflict)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	station := tracking.Station{
		StationID:           req.StationID,
		HashedPassword:      string(hashed),
		AssignedLatitude:    ref.Latitude,
		AssignedLongitude:   ref.Longitude,
		AllowedRadiusMeters: radius,
		Status:              geofence.StatusOffline,
	}
	if err := db.DB.Create(&station).Error; err != nil {
		http.Error(w, "Failed to register station", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":   "Station registered successfully",
		"stationId": station.StationID,
	})
}

// LoginStationHandler exchanges station credentials for a bearer token.
func LoginStationHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if req.StationID == "" || req.Password == "" {
		http.Error(w, "Station ID and Password are required", http.StatusBadRequest)
		return
	}

	var station tracking.Station
	if err := db.DB.First(&station, "station_id = ?", req.StationID).Error; err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(station.HashedPassword), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := signStationToken(station.StationID)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":     token,
		"stationId": station.StationID,
	})
}

type autoLoginRequest struct {
	StationID    string   `json:"stationId"`
	Password     string   `json:"password"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	RadiusMeters float64  `json:"allowedRadiusMeters"`
}

// AutoLoginHandler is the device provisioning path: register the station
// if it does not exist yet, then log it in. Lets field units bootstrap
// without a manual registration step.
func AutoLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req autoLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if req.StationID == "" || req.Password == "" {
		http.Error(w, "Station ID and Password are required", http.StatusBadRequest)
		return
	}

	var station tracking.Station
	err := db.DB.First(&station, "station_id = ?", req.StationID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if req.Latitude == nil || req.Longitude == nil {
			http.Error(w, "Location required for first-time provisioning", http.StatusBadRequest)
			return
		}
		ref := geofence.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if err := geofence.ValidatePoint(ref); err != nil {
			http.Error(w, "Latitude and Longitude must be valid coordinates", http.StatusBadRequest)
			return
		}
		radius := req.RadiusMeters
		if radius <= 0 {
			radius = 300
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			http.Error(w, "Server error", http.StatusInternalServerError)
			return
		}
		station = tracking.Station{
			StationID:           req.StationID,
			HashedPassword:      string(hashed),
			AssignedLatitude:    ref.Latitude,
			AssignedLongitude:   ref.Longitude,
			AllowedRadiusMeters: radius,
			Status:              geofence.StatusOffline,
		}
		if err := db.DB.Create(&station).Error; err != nil {
			http.Error(w, "Failed to provision station", http.StatusInternalServerError)
			return
		}
	case err != nil:
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	default:
		if err := bcrypt.CompareHashAndPassword([]byte(station.HashedPassword), []byte(req.Password)); err != nil {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
	}

	token, err := signStationToken(station.StationID)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":     token,
		"stationId": station.StationID,
	})
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AdminLoginHandler authenticates a dashboard user and issues a role-bearing
// token.
func AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password required", http.StatusBadRequest)
		return
	}

	var user User
	if err := db.DB.First(&user, "email = ? AND is_active = true", req.Email).Error; err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.UserID,
		"email":   user.Email,
		"role":    user.Role,
		"exp":     time.Now().Add(adminTokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"token":   signed,
	})
}
