package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-crypto-trader/internal/types"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(16)
	sub := bus.Subscribe()

	for i := 0; i < 10; i++ {
		bus.Emit(types.EventProgress, i)
	}
	for i := 0; i < 10; i++ {
		ev := <-sub.C()
		assert.Equal(t, i, ev.Content)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBusFiltersByType(t *testing.T) {
	bus := NewBus(4)
	trades := bus.Subscribe(types.EventTrade)

	bus.Emit(types.EventProgress, "tick")
	bus.Emit(types.EventTrade, "filled")

	ev := <-trades.C()
	assert.Equal(t, types.EventTrade, ev.Type)
	assert.Equal(t, "filled", ev.Content)
	assert.Empty(t, trades.C())
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus(2)
	sub := bus.Subscribe()

	for i := 0; i < 5; i++ {
		bus.Emit(types.EventStatus, i)
	}
	assert.Equal(t, 0, (<-sub.C()).Content)
	assert.Equal(t, 1, (<-sub.C()).Content)
	assert.Empty(t, sub.C())
}

func TestHandleAndClose(t *testing.T) {
	bus := NewBus(8)
	got := make(chan types.Event, 8)
	bus.Handle(context.Background(), func(ev types.Event) { got <- ev }, types.EventError)

	bus.Emit(types.EventError, "boom")
	select {
	case ev := <-got:
		assert.Equal(t, "boom", ev.Content)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	sub := bus.Subscribe()
	bus.Close()
	_, ok := <-sub.C()
	require.False(t, ok)

	// publishing after close is a no-op
	bus.Emit(types.EventError, "late")
	_, ok = <-bus.Subscribe().C()
	assert.False(t, ok)
}
