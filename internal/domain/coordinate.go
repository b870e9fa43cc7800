package domain

import (
	"math"
	"time"
)

// MaxFixAge is the freshness threshold for sensor fixes. Fixes older than
// this are sanitized but flagged invalid so the tracking session drops them.
const MaxFixAge = 60 * time.Second

// Coordinate is a sanitized latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// SanitizeFix validates and clamps a raw sensor fix.
//
// The returned coordinate is always finite and within [-90,90]/[-180,180];
// non-finite inputs map to 0. The second result is false when any input was
// out of range or non-finite, when accuracy (if given) is negative or
// non-finite, or when the fix age (if given) exceeds MaxFixAge.
//
// SanitizeFix has no side effects and never panics.
func SanitizeFix(lat, lon float64, accuracy *float64, age *time.Duration) (Coordinate, bool) {
	clat, latOK := clampAxis(lat, 90)
	clon, lonOK := clampAxis(lon, 180)
	valid := latOK && lonOK

	if accuracy != nil {
		a := *accuracy
		if math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
			valid = false
		}
	}
	if age != nil && *age > MaxFixAge {
		valid = false
	}

	return Coordinate{Latitude: clat, Longitude: clon}, valid
}

func clampAxis(v, limit float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v < -limit {
		return -limit, false
	}
	if v > limit {
		return limit, false
	}
	return v, true
}
