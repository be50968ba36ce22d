package gpio

import (
	"errors"
	"sync"

	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/logic"
)

// FakeWatcher is a test double with scripted line levels. Edge drives a level
// change and raises the same signal bits the real edge handler would.
type FakeWatcher struct {
	mu     sync.Mutex
	levels map[logic.Channel]bool
	sig    events.Setter

	// ReadError, if set, will be returned by Level().
	ReadError error

	// Reads counts Level() calls per channel.
	Reads map[logic.Channel]int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeWatcher creates a FakeWatcher with every line inactive.
// sig may be nil if the test never calls Edge.
func NewFakeWatcher(sig events.Setter) *FakeWatcher {
	return &FakeWatcher{
		levels: make(map[logic.Channel]bool),
		Reads:  make(map[logic.Channel]int),
		sig:    sig,
	}
}

// SetLevel changes a line level without raising an edge, like a stuck sensor
// or a level present before edge delivery started.
func (f *FakeWatcher) SetLevel(ch logic.Channel, active bool) {
	f.mu.Lock()
	f.levels[ch] = active
	f.mu.Unlock()
}

// Edge sets the level and raises the matching start/end bit.
func (f *FakeWatcher) Edge(ch logic.Channel, active bool) {
	f.SetLevel(ch, active)
	if f.sig == nil {
		return
	}
	if b := edgeBits(ch, active); b != 0 {
		f.sig.Set(b)
	}
}

// Level returns the scripted level of ch.
func (f *FakeWatcher) Level(ch logic.Channel) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads[ch]++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if ch == logic.ChannelBoot {
		return false, errors.New("gpio: boot is not a sensor channel")
	}
	return f.levels[ch], nil
}

// Close marks the watcher as closed.
func (f *FakeWatcher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeOutput records values written to an output line.
type FakeOutput struct {
	mu     sync.Mutex
	Values []int
	Closed bool
}

// SetValue records v.
func (f *FakeOutput) SetValue(v int) error {
	f.mu.Lock()
	f.Values = append(f.Values, v)
	f.mu.Unlock()
	return nil
}

// Written returns a copy of the recorded values.
func (f *FakeOutput) Written() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.Values...)
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
