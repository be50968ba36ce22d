// Package gpio provides sensor line inputs and LED outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"

	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/logic"
)

// ErrUnsupported is returned where the GPIO character device is unavailable.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Reader samples the current logical level of a sensor line.
type Reader interface {
	// Level reports whether ch is electrically active right now.
	// Active is already in logical form: the active-low inversion is applied.
	Level(ch logic.Channel) (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Output drives a single output line, e.g. an LED.
type Output interface {
	SetValue(v int) error
	Close() error
}

// Pull selects the input bias.
type Pull string

const (
	PullNone Pull = "none"
	PullDown Pull = "down"
	PullUp   Pull = "up"
)

// Config describes the sensor lines.
type Config struct {
	Chip      string
	Pins      map[logic.Channel]int
	ActiveLow bool
	Pull      Pull
}

// Default pin assignment (BCM numbering).
const (
	DefaultChip    = "gpiochip0"
	DefaultPinRing = 26
	DefaultPinDoor = 16
)

// edgeBits maps an edge on ch to the signal bit it raises.
func edgeBits(ch logic.Channel, active bool) events.Bits {
	if active {
		return events.StartBit(ch)
	}
	return events.EndBit(ch)
}
