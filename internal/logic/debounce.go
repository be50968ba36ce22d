package logic

import "time"

// Debouncer stores the last accepted edge time per channel and suppresses
// chatter within the detection cooldown.
type Debouncer struct {
	cooldown time.Duration
	last     map[Channel]time.Time
}

// NewDebouncer creates a Debouncer with the given detection cooldown.
func NewDebouncer(cooldown time.Duration) *Debouncer {
	return &Debouncer{
		cooldown: cooldown,
		last:     make(map[Channel]time.Time),
	}
}

// RecordEdge reports whether an edge on ch at now is accepted. An edge is
// accepted when the channel has never accepted one, or when strictly more than
// the cooldown has elapsed since the last accepted edge. Only accepted edges
// move the stored timestamp, so a burst inside one window yields one acceptance.
func (d *Debouncer) RecordEdge(ch Channel, now time.Time) bool {
	last, seen := d.last[ch]
	if seen && now.Sub(last) <= d.cooldown {
		return false
	}
	d.last[ch] = now
	return true
}

// LastAccepted returns the last accepted edge time for ch.
// ok is false if no edge has been accepted yet.
func (d *Debouncer) LastAccepted(ch Channel) (t time.Time, ok bool) {
	t, ok = d.last[ch]
	return t, ok
}
