package power

// State is a battery snapshot.
type State struct {
	// Level is the charge fraction in [0,1]; negative means unknown.
	Level float64

	Charging bool
}

// Listener receives battery change notifications.
type Listener interface {
	HandlePowerChange(s State)
}

// Monitor exposes the device battery to the tracking session.
type Monitor interface {
	State() State
	Subscribe(l Listener)
}
