package tracking

import (
	"math"
	"time"

	"github.com/fernweh-app/journal-core/internal/domain"
	"github.com/fernweh-app/journal-core/internal/ports/out/power"
	"github.com/fernweh-app/journal-core/internal/ports/out/sensor"
)

// Tier is the user-selectable accuracy tier. The effective tier actually
// driving the sensor may be lower when running on battery; the selection
// itself is never modified by the override.
type Tier string

const (
	TierCoarse     Tier = "COARSE"
	TierBalanced   Tier = "BALANCED"
	TierFine       Tier = "FINE"
	TierNavigation Tier = "NAVIGATION"
)

var tierRank = map[Tier]int{
	TierCoarse:     0,
	TierBalanced:   1,
	TierFine:       2,
	TierNavigation: 3,
}

// ValidTier reports whether t names one of the four tiers.
func ValidTier(t Tier) bool {
	_, ok := tierRank[t]
	return ok
}

// Policy holds the tunables of the tracking session: the tier-to-profile
// table, the automatic waypoint gate, the pause timeout and the battery
// override thresholds.
type Policy struct {
	Profiles map[Tier]sensor.Profile

	// WaypointMinMeters and WaypointMaxInterval gate automatic waypoints:
	// one is created when displacement since the last waypoint reaches
	// WaypointMinMeters or when WaypointMaxInterval has elapsed.
	WaypointMinMeters   float64
	WaypointMaxInterval time.Duration

	// PauseTimeout is how long the session tolerates no qualifying fix
	// while Tracking before entering Paused.
	PauseTimeout time.Duration

	// Battery override thresholds, compared against power.State.Level while
	// not charging.
	BatteryCoarseBelow   float64
	BatteryBalancedBelow float64
}

func DefaultPolicy() Policy {
	return Policy{
		Profiles: map[Tier]sensor.Profile{
			TierCoarse:     {Precision: sensor.PrecisionCoarse, MinDisplacementMeters: 500},
			TierBalanced:   {Precision: sensor.PrecisionBalanced, MinDisplacementMeters: 100},
			TierFine:       {Precision: sensor.PrecisionFine, MinDisplacementMeters: 10},
			TierNavigation: {Precision: sensor.PrecisionNavigation, MinDisplacementMeters: 5},
		},
		WaypointMinMeters:    5,
		WaypointMaxInterval:  5 * time.Minute,
		PauseTimeout:         5 * time.Minute,
		BatteryCoarseBelow:   0.20,
		BatteryBalancedBelow: 0.50,
	}
}

// EffectiveTier applies the battery override to the selected tier. Charging
// (or an unknown level) leaves the selection alone; on battery the tier is
// capped at coarse below BatteryCoarseBelow and at balanced below
// BatteryBalancedBelow.
func (p Policy) EffectiveTier(selected Tier, ps power.State) Tier {
	if !ValidTier(selected) {
		selected = TierBalanced
	}
	if ps.Charging || ps.Level < 0 {
		return selected
	}
	if ps.Level < p.BatteryCoarseBelow {
		return TierCoarse
	}
	if ps.Level < p.BatteryBalancedBelow {
		return lowerTier(selected, TierBalanced)
	}
	return selected
}

// ProfileFor returns the sensor profile for a tier, falling back to the
// balanced defaults for anything unmapped.
func (p Policy) ProfileFor(t Tier) sensor.Profile {
	if prof, ok := p.Profiles[t]; ok {
		return prof
	}
	return sensor.Profile{Precision: sensor.PrecisionBalanced, MinDisplacementMeters: 100}
}

func lowerTier(a, b Tier) Tier {
	if tierRank[a] < tierRank[b] {
		return a
	}
	return b
}

const earthRadiusMeters = 6371000

// displacementMeters is the haversine great-circle distance between two
// sanitized coordinates.
func displacementMeters(a, b domain.Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
