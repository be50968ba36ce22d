package power

import (
	"sync"
	"time"

	"github.com/sweeney/intercom-listener/internal/logic"
)

// FakeController records EnterLowPower calls instead of sleeping.
type FakeController struct {
	mu sync.Mutex

	// Calls holds the arguments of each EnterLowPower call.
	Calls []FakeCall
}

// FakeCall is one recorded EnterLowPower call.
type FakeCall struct {
	WakeSources []logic.Channel
	Timer       *time.Duration
}

// EnterLowPower records the call and returns.
func (f *FakeController) EnterLowPower(wakeSources []logic.Channel, timer *time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{
		WakeSources: append([]logic.Channel(nil), wakeSources...),
		Timer:       timer,
	})
}

// Count returns the number of EnterLowPower calls.
func (f *FakeController) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
