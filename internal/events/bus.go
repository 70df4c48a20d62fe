package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Bus fans motion events out to subscriber channels. Publish never
// blocks; a subscriber whose buffer is full loses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan MotionEvent]struct{}
	log  zerolog.Logger
}

func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[chan MotionEvent]struct{}),
		log:  log,
	}
}

// Subscribe registers a new subscriber with the given buffer size.
// The returned channel is closed by Unsubscribe.
func (b *Bus) Subscribe(buffer int) chan MotionEvent {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan MotionEvent, buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan MotionEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber that can take it
// without blocking.
func (b *Bus) Publish(ev MotionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Debug().Str("state", ev.State).Msg("motion event dropped for slow subscriber")
		}
	}
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
