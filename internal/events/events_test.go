package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/intercom-listener/internal/logic"
)

func TestWaitReturnsBitsAlreadySet(t *testing.T) {
	w := NewWord()
	w.Set(RingStart | Connected)

	got, err := w.Wait(context.Background(), All, time.Second)
	require.NoError(t, err)
	assert.Equal(t, RingStart|Connected, got)
	assert.Equal(t, Bits(0), w.Peek(), "returned bits should be cleared")
}

func TestWaitLeavesBitsOutsideMask(t *testing.T) {
	w := NewWord()
	w.Set(RingStart | TimerAlarm)

	got, err := w.Wait(context.Background(), RingStart, time.Second)
	require.NoError(t, err)
	assert.Equal(t, RingStart, got)
	assert.Equal(t, TimerAlarm, w.Peek())
}

func TestWaitTimeout(t *testing.T) {
	w := NewWord()

	start := time.Now()
	got, err := w.Wait(context.Background(), All, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Bits(0), got)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitContextCancelled(t *testing.T) {
	w := NewWord()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Wait(ctx, All, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitWokenBySet(t *testing.T) {
	w := NewWord()

	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Set(Disconnected)
	}()

	got, err := w.Wait(context.Background(), All, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Disconnected, got)
}

func TestSetCoalescesRepeatedBits(t *testing.T) {
	w := NewWord()
	for i := 0; i < 10; i++ {
		w.Set(RingStart)
	}

	got, err := w.Wait(context.Background(), All, time.Second)
	require.NoError(t, err)
	assert.Equal(t, RingStart, got)

	got, err = w.Wait(context.Background(), All, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Bits(0), got, "a repeated bit is delivered once")
}

func TestConcurrentSettersLoseNothing(t *testing.T) {
	w := NewWord()
	bits := []Bits{TimerAlarm, RingStart, RingEnd, Connected, Disconnected, ConnectFailed, DoorStart, DoorEnd}

	var wg sync.WaitGroup
	for _, b := range bits {
		wg.Add(1)
		go func(b Bits) {
			defer wg.Done()
			w.Set(b)
		}(b)
	}
	wg.Wait()

	got, err := w.Wait(context.Background(), All, time.Second)
	require.NoError(t, err)
	assert.Equal(t, All, got)
}

func TestChannelBits(t *testing.T) {
	assert.Equal(t, RingStart, StartBit(logic.ChannelRing))
	assert.Equal(t, RingEnd, EndBit(logic.ChannelRing))
	assert.Equal(t, DoorStart, StartBit(logic.ChannelDoor))
	assert.Equal(t, DoorEnd, EndBit(logic.ChannelDoor))
	assert.Equal(t, Bits(0), StartBit(logic.ChannelBoot))
}

func TestBitsString(t *testing.T) {
	assert.Equal(t, "NONE", Bits(0).String())
	assert.Equal(t, "TIMER_ALARM|RING_START", (RingStart | TimerAlarm).String())
}

func TestBitsHas(t *testing.T) {
	b := RingStart | Connected
	assert.True(t, b.Has(RingStart))
	assert.True(t, b.Has(RingStart|Connected))
	assert.False(t, b.Has(RingStart|DoorStart))
	assert.False(t, b.Has(0))
}
