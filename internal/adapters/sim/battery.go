package sim

import (
	"sync"

	"github.com/fernweh-app/journal-core/internal/ports/out/power"
)

// Battery is a scripted implementation of power.Monitor.
type Battery struct {
	mu        sync.Mutex
	state     power.State
	listeners []power.Listener
}

// NewBattery starts fully charged and charging, the state that never
// triggers the accuracy override.
func NewBattery() *Battery {
	return &Battery{state: power.State{Level: 1.0, Charging: true}}
}

func (b *Battery) State() power.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Battery) Subscribe(l power.Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// SetState updates the battery snapshot and notifies listeners. The lock is
// released before the callbacks run.
func (b *Battery) SetState(s power.State) {
	b.mu.Lock()
	b.state = s
	ls := append([]power.Listener(nil), b.listeners...)
	b.mu.Unlock()
	for _, l := range ls {
		l.HandlePowerChange(s)
	}
}
