// Package geo provides geocoding and distance/ETA ranking against an
// external maps provider, with straight-line fallback math for
// degraded operation.
package geo

import (
	"context"
	"errors"
	"math"
)

// ErrNoResults means the provider answered but produced no usable rows.
var ErrNoResults = errors.New("geo: no results")

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Zero reports whether the point is the zero value. (0,0) is in the
// Atlantic and never a real pickup location.
func (p Point) Zero() bool { return p.Lat == 0 && p.Lng == 0 }

// Waypoint is a candidate destination identified by an opaque key.
type Waypoint struct {
	ID string
	Point
}

// Leg is the provider's distance/ETA answer for one waypoint.
type Leg struct {
	ID              string  `json:"id"`
	DistanceMiles   float64 `json:"distance_miles"`
	DurationMinutes int     `json:"duration_minutes"`
}

// Geocoded is a resolved address.
type Geocoded struct {
	Point
	FormattedAddress string `json:"formatted_address"`
}

// Geocoder resolves a textual address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Geocoded, error)
}

// Ranker computes distance/duration from one origin to many
// destinations. Results come back sorted by duration ascending;
// waypoints the provider could not route are omitted.
type Ranker interface {
	DistanceMatrix(ctx context.Context, origin Point, dests []Waypoint) ([]Leg, error)
}

const earthRadiusMiles = 3958.8

// Haversine returns the straight-line distance between two points in
// miles. Used as a degraded-mode hint when the ranking provider is
// unavailable, and for check-in proximity verification.
func Haversine(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func metersToMiles(m float64) float64 {
	return math.Round(m/1609.344*10) / 10
}

func secondsToMinutes(s float64) int {
	return int(math.Round(s / 60))
}
