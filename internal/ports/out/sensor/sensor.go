package sensor

import "time"

// Precision selects how aggressively the sensor resolves position.
type Precision string

const (
	// PrecisionCoarse is kilometer-scale positioning, cheapest on battery.
	PrecisionCoarse Precision = "COARSE"
	// PrecisionBalanced is roughly hundred-meter positioning.
	PrecisionBalanced Precision = "BALANCED"
	// PrecisionFine is the best available positioning.
	PrecisionFine Precision = "FINE"
	// PrecisionNavigation is best positioning at the highest delivery rate.
	PrecisionNavigation Precision = "NAVIGATION"
)

// Profile pairs a precision with the minimum displacement between fix
// deliveries. The tracking session derives one from the effective accuracy
// tier.
type Profile struct {
	Precision             Precision
	MinDisplacementMeters float64
}

// Fix is a raw position report as delivered by the sensor. It has not been
// through the sanitizer.
type Fix struct {
	Latitude  float64
	Longitude float64

	// AccuracyMeters is nil when the sensor does not report accuracy.
	AccuracyMeters *float64

	Time time.Time
}

// AuthorizationStatus reports whether the app may use the sensor.
type AuthorizationStatus string

const (
	AuthorizationGranted AuthorizationStatus = "GRANTED"
	AuthorizationDenied  AuthorizationStatus = "DENIED"
)

// Handler receives sensor callbacks. Calls arrive on the adapter's delivery
// goroutine; implementations must not block in them.
type Handler interface {
	HandleFix(f Fix)
	HandleSensorError(err error)
	HandleAuthorizationChange(s AuthorizationStatus)
}

// Source is a location sensor subscription. Subscribe registers the delivery
// target and must be called before either Start method. StartUpdates and
// StartSignificantChanges replace any previous mode; Stop ends delivery.
type Source interface {
	Subscribe(h Handler)

	StartUpdates(p Profile)

	// StartSignificantChanges switches to the coarse "significant change"
	// mode used while the session is paused.
	StartSignificantChanges()

	Stop()
}
