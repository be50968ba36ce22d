// Package indicator renders abstract status codes as LED blink patterns on its
// own goroutine. The control loop only ever calls SetCode.
package indicator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/intercom-listener/internal/gpio"
	"github.com/sweeney/intercom-listener/internal/logic"
)

// Color selects an LED.
type Color int

const (
	None Color = iota
	Green
	Red
)

// Step drives one LED to a level and holds for D. Color None only waits.
type Step struct {
	Color Color
	On    bool
	D     time.Duration
}

func on(c Color, ms int) Step  { return Step{Color: c, On: true, D: time.Duration(ms) * time.Millisecond} }
func off(c Color, ms int) Step { return Step{Color: c, D: time.Duration(ms) * time.Millisecond} }
func pause(ms int) Step        { return Step{D: time.Duration(ms) * time.Millisecond} }

func blinks(c Color, n int) []Step {
	var s []Step
	for i := 0; i < n; i++ {
		s = append(s, on(c, 100), off(c, 100))
	}
	return s
}

// Pattern returns the blink sequence for code.
func Pattern(code logic.StatusCode) []Step {
	switch code {
	case logic.StatusIdle:
		return []Step{on(Green, 50), off(Green, 50), on(Green, 50), off(Green, 0), pause(850)}
	case logic.StatusWakeup:
		return []Step{on(Green, 2000), off(Green, 0)}
	case logic.StatusConnectivityError:
		return append(append([]Step{on(Red, 500), off(Red, 100)}, blinks(Red, 2)...), pause(1000))
	case logic.StatusTransportError:
		return append(append([]Step{on(Red, 500), off(Red, 100)}, blinks(Red, 4)...), pause(1000))
	case logic.StatusUnknownError:
		return []Step{on(Red, 2000), off(Red, 0), pause(1000)}
	}
	return []Step{pause(1000)}
}

// SleepFunc waits for d or until ctx is done; it reports false if ctx ended.
type SleepFunc func(ctx context.Context, d time.Duration) bool

func realSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Indicator owns the LEDs. The only shared state is the pending code:
// SetCode overwrites it, and each pattern run takes it and resets it to Idle.
type Indicator struct {
	green  gpio.Output
	red    gpio.Output
	sleep  SleepFunc
	logger zerolog.Logger

	pending atomic.Int32
	current atomic.Int32
}

// New creates an Indicator. Either LED may be nil; its steps then only wait.
// A nil sleep uses real timers.
func New(green, red gpio.Output, sleep SleepFunc, logger zerolog.Logger) *Indicator {
	if sleep == nil {
		sleep = realSleep
	}
	return &Indicator{green: green, red: red, sleep: sleep, logger: logger}
}

// SetCode sets the desired code. It never blocks; last write wins.
func (i *Indicator) SetCode(code logic.StatusCode) {
	i.pending.Store(int32(code))
	i.logger.Debug().Str("code", code.String()).Msg("set_code")
}

// Current returns the code of the pattern being rendered.
func (i *Indicator) Current() logic.StatusCode {
	return logic.StatusCode(i.current.Load())
}

// Run renders patterns until ctx is done, then turns both LEDs off.
func (i *Indicator) Run(ctx context.Context) {
	defer i.allOff()
	for ctx.Err() == nil {
		if !i.Tick(ctx) {
			return
		}
	}
}

// Tick takes the pending code and renders its pattern once.
// It reports false if ctx ended mid-pattern.
func (i *Indicator) Tick(ctx context.Context) bool {
	code := logic.StatusCode(i.pending.Swap(int32(logic.StatusIdle)))
	i.current.Store(int32(code))
	if code != logic.StatusIdle {
		i.logger.Debug().Str("code", code.String()).Msg("rendering")
	}

	for _, s := range Pattern(code) {
		i.drive(s)
		if !i.sleep(ctx, s.D) {
			return false
		}
	}
	return true
}

func (i *Indicator) drive(s Step) {
	var out gpio.Output
	switch s.Color {
	case Green:
		out = i.green
	case Red:
		out = i.red
	}
	if out == nil {
		return
	}
	v := 0
	if s.On {
		v = 1
	}
	if err := out.SetValue(v); err != nil {
		i.logger.Warn().Err(err).Msg("led write failed")
	}
}

func (i *Indicator) allOff() {
	for _, out := range []gpio.Output{i.green, i.red} {
		if out != nil {
			_ = out.SetValue(0)
		}
	}
}
