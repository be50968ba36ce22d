package logic

import (
	"context"
	"time"
)

// Sender delivers one notification. It returns the transport status code
// (200 on success). A non-nil error is treated like a non-success code.
type Sender interface {
	Send(ctx context.Context, n Notification) (int, error)
}

// StatusSetter receives abstract status codes. Last write wins.
type StatusSetter interface {
	SetCode(code StatusCode)
}

// StatusSetters fans a code out to several setters.
type StatusSetters []StatusSetter

// SetCode forwards code to every non-nil setter.
func (s StatusSetters) SetCode(code StatusCode) {
	for _, set := range s {
		if set != nil {
			set.SetCode(code)
		}
	}
}

// StatusOK is the only transport status code treated as success.
const StatusOK = 200

// Dispatcher turns a pending flag into at most one send attempt per
// notification cooldown. It never retries and never queues.
type Dispatcher struct {
	cooldown  time.Duration
	sender    Sender
	indicator StatusSetter
	lastSent  map[Channel]time.Time
}

// NewDispatcher creates a Dispatcher. indicator may be nil.
func NewDispatcher(cooldown time.Duration, sender Sender, indicator StatusSetter) *Dispatcher {
	return &Dispatcher{
		cooldown:  cooldown,
		sender:    sender,
		indicator: indicator,
		lastSent:  make(map[Channel]time.Time),
	}
}

// TryDispatch attempts to send the pending notification of ch.
//
// It returns DispatchSkipped, leaving ch untouched, when not connected, when
// nothing is pending, or while the notification cooldown is running. Otherwise
// it calls the sender exactly once, stamps the send time and clears Pending
// whatever the outcome (at-most-once). A failed send shows a transport error.
func (d *Dispatcher) TryDispatch(ctx context.Context, ch *SensorChannel, now time.Time, connected bool) DispatchResult {
	if !connected || !ch.Pending {
		return DispatchSkipped
	}
	if last, ok := d.lastSent[ch.Channel]; ok && now.Sub(last) <= d.cooldown {
		return DispatchSkipped
	}

	d.lastSent[ch.Channel] = now
	ch.Pending = false

	code, err := d.sender.Send(ctx, Notification{
		Timestamp: now,
		Channel:   ch.Channel,
		Text:      ch.Channel.Message(),
	})
	if err != nil || code != StatusOK {
		if d.indicator != nil {
			d.indicator.SetCode(StatusTransportError)
		}
		return DispatchFailed
	}
	return DispatchSent
}

// LastSent returns the last attempted send time for ch.
func (d *Dispatcher) LastSent(ch Channel) (t time.Time, ok bool) {
	t, ok = d.lastSent[ch]
	return t, ok
}
