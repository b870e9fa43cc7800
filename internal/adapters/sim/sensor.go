// Package sim provides scripted sensor and battery adapters. They back the
// demo binary, where no device hardware exists, and the tracking session
// tests, where fix delivery must be deterministic.
package sim

import (
	"sync"

	"github.com/fernweh-app/journal-core/internal/ports/out/sensor"
)

// SensorMode reports which subscription mode the session last requested.
type SensorMode string

const (
	SensorStopped            SensorMode = "STOPPED"
	SensorUpdates            SensorMode = "UPDATES"
	SensorSignificantChanges SensorMode = "SIGNIFICANT_CHANGES"
)

// Sensor is a scripted implementation of sensor.Source. Fixes are pushed in
// with Deliver; mode changes are recorded so tests can assert on them.
type Sensor struct {
	mu      sync.Mutex
	handler sensor.Handler
	mode    SensorMode
	profile sensor.Profile
	starts  int
}

func NewSensor() *Sensor {
	return &Sensor{mode: SensorStopped}
}

func (s *Sensor) Subscribe(h sensor.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *Sensor) StartUpdates(p sensor.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = SensorUpdates
	s.profile = p
	s.starts++
}

func (s *Sensor) StartSignificantChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = SensorSignificantChanges
}

func (s *Sensor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = SensorStopped
}

// Mode returns the current subscription mode.
func (s *Sensor) Mode() SensorMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Profile returns the profile of the last StartUpdates call.
func (s *Sensor) Profile() sensor.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// StartCount returns how many times StartUpdates has been called.
func (s *Sensor) StartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Deliver hands a fix to the subscribed handler. The sensor lock is not
// held across the callback, matching how a real delivery goroutine behaves.
func (s *Sensor) Deliver(f sensor.Fix) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h.HandleFix(f)
	}
}

// DeliverError hands a sensor error to the handler.
func (s *Sensor) DeliverError(err error) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h.HandleSensorError(err)
	}
}

// ChangeAuthorization notifies the handler of an authorization change.
func (s *Sensor) ChangeAuthorization(st sensor.AuthorizationStatus) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h.HandleAuthorizationChange(st)
	}
}
