package geofence

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean spherical radius used for great-circle
// distances. The spherical approximation is within ~0.5% of the ellipsoid,
// which is far below the precision any geofence radius is configured at.
const EarthRadiusMeters = 6371000.0

// ErrInvalidCoordinate marks an observation whose latitude or longitude is
// non-finite or outside the valid range. Callers skip these inside a batch
// and reject single updates outright.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

type Status string

const (
	StatusInside  Status = "INSIDE"
	StatusOutside Status = "OUTSIDE"
	StatusOffline Status = "OFFLINE"
)

type Point struct {
	Latitude  float64
	Longitude float64
}

type Evaluation struct {
	DistanceMeters float64
	Status         Status
}

// ValidatePoint reports whether p is a usable coordinate pair.
func ValidatePoint(p Point) error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) ||
		math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return fmt.Errorf("%w: non-finite lat/lng", ErrInvalidCoordinate)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of [-90,90]", ErrInvalidCoordinate, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of [-180,180]", ErrInvalidCoordinate, p.Longitude)
	}
	return nil
}

// Distance returns the great-circle distance between two points in meters.
func Distance(a, b Point) float64 {
	p1 := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	p2 := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Evaluate computes the distance from the assigned reference point to the
// observed point and classifies the observation against the allowed radius.
// A point exactly on the boundary counts as INSIDE. Pure function: same
// inputs always produce the same outputs.
func Evaluate(reference Point, radiusMeters float64, observed Point) (Evaluation, error) {
	if err := ValidatePoint(observed); err != nil {
		return Evaluation{}, err
	}

	d := Distance(reference, observed)

	status := StatusInside
	if d > radiusMeters {
		status = StatusOutside
	}

	return Evaluation{DistanceMeters: d, Status: status}, nil
}
