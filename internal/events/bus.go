package events

import (
	"context"
	"sync"
	"time"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

const DefaultBuffer = 256

// Subscription delivers events in publish order. A subscriber that falls
// more than its buffer behind loses events instead of blocking the engine.
type Subscription struct {
	bus     *Bus
	id      uint64
	types   map[types.EventType]bool
	ch      chan types.Event
	dropped int
	once    sync.Once
}

// C is closed when the subscription is cancelled or the bus is closed.
func (s *Subscription) C() <-chan types.Event {
	return s.ch
}

func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.id)
}

func (s *Subscription) wants(t types.EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Bus fans engine events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
}

var _ interfaces.EventSink = (*Bus)(nil)

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers for the given event types, or all events when none are given.
func (b *Bus) Subscribe(eventTypes ...types.EventType) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{
		bus:   b,
		id:    b.nextID,
		types: make(map[types.EventType]bool, len(eventTypes)),
		ch:    make(chan types.Event, b.buffer),
	}
	for _, t := range eventTypes {
		s.types[t] = true
	}
	if b.closed {
		s.close()
		return s
	}
	b.subs[s.id] = s
	return s
}

// Handle runs fn for each matching event on its own goroutine, one event at a
// time, until ctx is done or the bus closes.
func (b *Bus) Handle(ctx context.Context, fn func(types.Event), eventTypes ...types.EventType) {
	sub := b.Subscribe(eventTypes...)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C():
				if !ok {
					return
				}
				fn(ev)
			}
		}
	}()
}

// Publish sends an event to every matching subscriber without blocking.
func (b *Bus) Publish(ev types.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.dropped++
			if s.dropped == 1 || s.dropped%100 == 0 {
				logger.Warn(context.Background(), "Event subscriber is lagging, dropping events",
					"subscription", s.id, "dropped", s.dropped, "type", ev.Type)
			}
		}
	}
}

// Emit publishes an event stamped now.
func (b *Bus) Emit(t types.EventType, content any) {
	b.Publish(types.Event{Type: t, Content: content, Timestamp: time.Now()})
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		delete(b.subs, id)
		s.close()
	}
}

// Close ends every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.close()
	}
}
