package clock

import (
	"time"

	clockport "github.com/fernweh-app/journal-core/internal/ports/out/clock"
)

// SystemClock returns the current wall-clock time and schedules timers on
// the Go runtime.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }

func (SystemClock) AfterFunc(d time.Duration, fn func()) clockport.Timer {
	return systemTimer{t: time.AfterFunc(d, fn)}
}

type systemTimer struct {
	t *time.Timer
}

func (s systemTimer) Stop() bool                  { return s.t.Stop() }
func (s systemTimer) Reset(d time.Duration) bool  { return s.t.Reset(d) }
