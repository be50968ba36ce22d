package gpio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/logic"
)

func TestFakeWatcherLevel(t *testing.T) {
	f := NewFakeWatcher(nil)

	active, err := f.Level(logic.ChannelRing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active {
		t.Error("lines should start inactive")
	}

	f.SetLevel(logic.ChannelRing, true)
	active, err = f.Level(logic.ChannelRing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !active {
		t.Error("expected ring active after SetLevel")
	}

	if f.Reads[logic.ChannelRing] != 2 {
		t.Errorf("reads: got %d, want 2", f.Reads[logic.ChannelRing])
	}
}

func TestFakeWatcherEdgeRaisesBits(t *testing.T) {
	tests := []struct {
		ch     logic.Channel
		active bool
		want   events.Bits
	}{
		{logic.ChannelRing, true, events.RingStart},
		{logic.ChannelRing, false, events.RingEnd},
		{logic.ChannelDoor, true, events.DoorStart},
		{logic.ChannelDoor, false, events.DoorEnd},
	}

	for _, tt := range tests {
		w := events.NewWord()
		f := NewFakeWatcher(w)

		f.Edge(tt.ch, tt.active)

		got, err := w.Wait(context.Background(), events.All, time.Second)
		if err != nil {
			t.Fatalf("%s/%v: wait: %v", tt.ch, tt.active, err)
		}
		if got != tt.want {
			t.Errorf("%s/%v: got %s, want %s", tt.ch, tt.active, got, tt.want)
		}
		if level, _ := f.Level(tt.ch); level != tt.active {
			t.Errorf("%s/%v: level not updated", tt.ch, tt.active)
		}
	}
}

func TestFakeWatcherError(t *testing.T) {
	f := NewFakeWatcher(nil)
	f.ReadError = errors.New("simulated error")

	_, err := f.Level(logic.ChannelRing)
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeWatcherClose(t *testing.T) {
	f := NewFakeWatcher(nil)

	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakeOutput(t *testing.T) {
	o := &FakeOutput{}
	o.SetValue(1)
	o.SetValue(0)

	got := o.Written()
	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("written: got %v, want [1 0]", got)
	}
}

func TestEdgeBits(t *testing.T) {
	if got := edgeBits(logic.ChannelBoot, true); got != 0 {
		t.Errorf("boot channel should not map to a bit, got %s", got)
	}
}
