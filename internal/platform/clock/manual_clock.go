package clock

import (
	"sort"
	"sync"
	"time"

	clockport "github.com/fernweh-app/journal-core/internal/ports/out/clock"
)

// ManualClock is a controllable Clock for deterministic tests: time moves
// only through Advance, which fires any timers whose deadline is reached.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, fn func()) clockport.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{
		clock:    c,
		fn:       fn,
		deadline: c.now.Add(d),
		active:   true,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires due timers in deadline order.
// Callbacks run without the clock lock held, so they may read Now or reset
// timers.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	var due []*manualTimer
	for _, t := range c.timers {
		if t.active && !t.deadline.After(target) {
			t.active = false
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

type manualTimer struct {
	clock    *ManualClock
	fn       func()
	deadline time.Time
	active   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

func (t *manualTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.deadline = t.clock.now.Add(d)
	t.active = true
	return was
}
