package clock

import "time"

// Clock provides time to the application.
// Using an interface enables deterministic tests via a controllable
// implementation; the pause timer in particular is driven through AfterFunc.
type Clock interface {
	Now() time.Time

	// AfterFunc schedules fn to run after d. The returned Timer can be
	// stopped or reset like time.Timer.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancelable, resettable scheduled callback.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}
