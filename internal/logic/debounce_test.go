package logic

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestRecordEdgeFirstEdgeAccepted(t *testing.T) {
	d := NewDebouncer(ms(200))

	if _, ok := d.LastAccepted(ChannelRing); ok {
		t.Fatal("new debouncer should have no accepted edge")
	}
	if !d.RecordEdge(ChannelRing, t0) {
		t.Fatal("first edge should be accepted")
	}
	last, ok := d.LastAccepted(ChannelRing)
	if !ok || !last.Equal(t0) {
		t.Errorf("LastAccepted: got (%v, %v), want (%v, true)", last, ok, t0)
	}
}

func TestRecordEdgeScenario(t *testing.T) {
	// edges at 0, 50, 100, 300ms with a 200ms cooldown: accepted at 0 and 300 only
	d := NewDebouncer(ms(200))

	tests := []struct {
		at   int
		want bool
	}{
		{0, true},
		{50, false},
		{100, false},
		{300, true},
	}

	for _, tt := range tests {
		got := d.RecordEdge(ChannelRing, t0.Add(ms(tt.at)))
		if got != tt.want {
			t.Errorf("edge at %dms: got %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestRecordEdgeBurstYieldsOneAcceptance(t *testing.T) {
	d := NewDebouncer(ms(200))

	accepted := 0
	for i := 0; i < 50; i++ {
		if d.RecordEdge(ChannelRing, t0.Add(ms(i*4))) {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("expected exactly 1 acceptance for a burst within one window, got %d", accepted)
	}
}

func TestRecordEdgeBoundaryIsExclusive(t *testing.T) {
	d := NewDebouncer(ms(200))
	d.RecordEdge(ChannelRing, t0)

	if d.RecordEdge(ChannelRing, t0.Add(ms(200))) {
		t.Error("edge exactly one cooldown later should be rejected")
	}
	if !d.RecordEdge(ChannelRing, t0.Add(ms(201))) {
		t.Error("edge just past the cooldown should be accepted")
	}
}

func TestRecordEdgeChannelsIndependent(t *testing.T) {
	d := NewDebouncer(ms(200))

	if !d.RecordEdge(ChannelRing, t0) {
		t.Fatal("ring edge should be accepted")
	}
	if !d.RecordEdge(ChannelDoor, t0.Add(ms(10))) {
		t.Error("door edge should not be suppressed by ring cooldown")
	}
}

func TestRecordEdgeRejectedEdgeDoesNotExtendWindow(t *testing.T) {
	d := NewDebouncer(ms(200))
	d.RecordEdge(ChannelRing, t0)
	d.RecordEdge(ChannelRing, t0.Add(ms(150))) // rejected

	if !d.RecordEdge(ChannelRing, t0.Add(ms(250))) {
		t.Error("window is measured from the last accepted edge, not the last seen one")
	}
}
