// Package events provides the shared signal word between edge handlers,
// connectivity callbacks, the inactivity timer and the control loop.
//
// Producers only ever set bits. The single consumer waits for any bit in a mask
// and atomically takes (clears) what it got. Only presence matters, so a bit set
// twice before the consumer wakes is seen once.
package events

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sweeney/intercom-listener/internal/logic"
)

// Bits is a set of signal bits.
type Bits uint32

const (
	TimerAlarm Bits = 1 << iota
	RingStart
	RingEnd
	Connected
	Disconnected
	ConnectFailed
	DoorStart
	DoorEnd
)

// All is every defined bit.
const All = TimerAlarm | RingStart | RingEnd | Connected | Disconnected | ConnectFailed | DoorStart | DoorEnd

var bitNames = []struct {
	bit  Bits
	name string
}{
	{TimerAlarm, "TIMER_ALARM"},
	{RingStart, "RING_START"},
	{RingEnd, "RING_END"},
	{Connected, "CONNECTED"},
	{Disconnected, "DISCONNECTED"},
	{ConnectFailed, "CONNECT_FAILED"},
	{DoorStart, "DOOR_START"},
	{DoorEnd, "DOOR_END"},
}

func (b Bits) String() string {
	if b == 0 {
		return "NONE"
	}
	var names []string
	for _, n := range bitNames {
		if b&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Has reports whether every bit of x is set in b.
func (b Bits) Has(x Bits) bool {
	return x != 0 && b&x == x
}

// StartBit returns the sensor-start bit of ch, or 0 for non-sensor channels.
func StartBit(ch logic.Channel) Bits {
	switch ch {
	case logic.ChannelRing:
		return RingStart
	case logic.ChannelDoor:
		return DoorStart
	}
	return 0
}

// EndBit returns the sensor-end bit of ch, or 0 for non-sensor channels.
func EndBit(ch logic.Channel) Bits {
	switch ch {
	case logic.ChannelRing:
		return RingEnd
	case logic.ChannelDoor:
		return DoorEnd
	}
	return 0
}

// Setter is the producer side of a Word.
type Setter interface {
	Set(b Bits)
}

// Word is an atomic bitset with a blocking wait for a single consumer.
type Word struct {
	bits   atomic.Uint32
	notify chan struct{}
}

// NewWord creates an empty Word.
func NewWord() *Word {
	return &Word{notify: make(chan struct{}, 1)}
}

// Set ORs b into the word and wakes the consumer. It never blocks and is
// safe to call from any goroutine.
func (w *Word) Set(b Bits) {
	w.bits.Or(uint32(b))
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Peek returns the currently set bits without clearing them.
func (w *Word) Peek() Bits {
	return Bits(w.bits.Load())
}

// Wait blocks until any bit in mask is set, the timeout elapses or ctx is done.
// The returned bits are cleared from the word; bits outside mask stay set.
// A timeout returns 0 and a nil error.
func (w *Word) Wait(ctx context.Context, mask Bits, timeout time.Duration) (Bits, error) {
	if got := w.take(mask); got != 0 {
		return got, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return w.take(mask), nil
		case <-w.notify:
			if got := w.take(mask); got != 0 {
				return got, nil
			}
		}
	}
}

func (w *Word) take(mask Bits) Bits {
	for {
		old := w.bits.Load()
		got := Bits(old) & mask
		if got == 0 {
			return 0
		}
		if w.bits.CompareAndSwap(old, old&^uint32(mask)) {
			return got
		}
	}
}
