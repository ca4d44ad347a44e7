package events

import (
	"sync"
	"sync/atomic"
)

// Bus fans events out to subscribers over buffered channels. Publishing
// never blocks: a subscriber that falls behind loses events, counted in
// Dropped. After Close, Publish is a no-op and subscriber channels are
// closed.
type Bus struct {
	mu      sync.Mutex
	subs    []chan Event
	buffer  int
	closed  bool
	dropped int64
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{buffer: buffer}
}

// Subscribe registers a new subscriber. The channel is closed by Close.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers ev to every subscriber, dropping on full buffers.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			atomic.AddInt64(&b.dropped, 1)
		}
	}
}

// Dropped reports how many events were lost to slow subscribers.
func (b *Bus) Dropped() int64 {
	return atomic.LoadInt64(&b.dropped)
}

// Close closes all subscriber channels. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
