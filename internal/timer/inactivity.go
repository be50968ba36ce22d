// Package timer implements the resettable inactivity countdown that decides
// when the device may go back to sleep.
package timer

import (
	"sync"
	"time"

	"github.com/sweeney/intercom-listener/internal/events"
)

// State of the inactivity timer.
type State string

const (
	Stopped State = "STOPPED"
	Armed   State = "ARMED"
	Expired State = "EXPIRED"
)

// Stopper is the handle returned by an AfterFunc.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f once after d. time.AfterFunc satisfies it through
// RealAfterFunc; tests substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Stopper

// RealAfterFunc wraps time.AfterFunc.
func RealAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Inactivity is a one-shot countdown. On expiry it raises events.TimerAlarm
// once and stays Expired until it is explicitly re-armed; it never free-runs.
type Inactivity struct {
	sig   events.Setter
	after AfterFunc

	mu       sync.Mutex
	pending  Stopper
	gen      uint64
	state    State
	interval time.Duration
}

// New creates a stopped timer that signals expiry into sig.
// A nil after uses RealAfterFunc.
func New(sig events.Setter, after AfterFunc) *Inactivity {
	if after == nil {
		after = RealAfterFunc
	}
	return &Inactivity{sig: sig, after: after, state: Stopped}
}

// Arm (re)starts the countdown with the given interval.
func (t *Inactivity) Arm(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Stop()
	}
	t.gen++
	gen := t.gen
	t.state = Armed
	t.interval = interval
	t.pending = t.after(interval, func() { t.fire(gen) })
}

// Reset rearms unconditionally, restoring the full wait time.
func (t *Inactivity) Reset(interval time.Duration) {
	t.Arm(interval)
}

// Stop cancels a running countdown.
func (t *Inactivity) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.gen++
	t.state = Stopped
}

// State returns the current timer state.
func (t *Inactivity) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Interval returns the interval of the last Arm.
func (t *Inactivity) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *Inactivity) fire(gen uint64) {
	t.mu.Lock()
	// A stale callback from a countdown that was re-armed or stopped.
	if gen != t.gen || t.state != Armed {
		t.mu.Unlock()
		return
	}
	t.state = Expired
	t.pending = nil
	t.mu.Unlock()

	t.sig.Set(events.TimerAlarm)
}
