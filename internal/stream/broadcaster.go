// Package stream turns camera frames into shared MJPEG feeds. A
// broadcaster runs one producer goroutine per feed and fans the most
// recent encoded frame out to any number of HTTP subscribers.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sbussiso/OpenSentry/internal/metrics"
)

// ErrStopped is returned by Subscription.Next once the broadcaster
// has shut down.
var ErrStopped = errors.New("stream: broadcaster stopped")

// subWait bounds how long a subscriber parks before rechecking its
// context. Keepalive granularity, not a frame deadline.
const subWait = time.Second

// A Broadcaster paces a produce function at the configured frame rate
// and hands each fresh frame to all subscribers. Only the latest
// frame is retained; slow subscribers skip ahead rather than queue.
type Broadcaster struct {
	name    string
	produce func() []byte
	fps     func() int
	log     zerolog.Logger
	met     *metrics.Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	latest  []byte
	seq     uint64
	running bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewBroadcaster builds a feed. produce returns the next encoded
// frame or nil when none is available; fps is read every cycle so
// settings changes take effect immediately.
func NewBroadcaster(name string, produce func() []byte, fps func() int, log zerolog.Logger, met *metrics.Metrics) *Broadcaster {
	b := &Broadcaster{
		name:    name,
		produce: produce,
		fps:     fps,
		log:     log.With().Str("stream", name).Logger(),
		met:     met,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Broadcaster) Name() string { return b.name }

// Start launches the producer loop. Calling Start on a running
// broadcaster is a no-op.
func (b *Broadcaster) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.quit = make(chan struct{})
	b.wg.Add(1)
	go b.run(b.quit)
	b.log.Info().Msg("stream started")
}

// Stop halts production and wakes every parked subscriber. Idempotent.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.quit)
	b.mu.Unlock()

	b.cond.Broadcast()
	b.wg.Wait()
	b.log.Info().Msg("stream stopped")
}

func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Latest returns the most recent frame, or nil before the first one.
func (b *Broadcaster) Latest() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

func (b *Broadcaster) run(quit chan struct{}) {
	defer b.wg.Done()

	next := time.Now()
	for {
		fps := b.fps()
		if fps < 1 {
			fps = 1
		} else if fps > 60 {
			fps = 60
		}
		next = next.Add(time.Second / time.Duration(fps))

		if frame := b.produce(); frame != nil {
			b.mu.Lock()
			b.latest = frame
			b.seq++
			b.mu.Unlock()
			b.cond.Broadcast()
			b.met.FramePublished(b.name)
		}

		// Drift correction: sleep toward the schedule, but when a
		// produce call overran it, restart the schedule from now
		// instead of bursting to catch up.
		delay := time.Until(next)
		if delay < 0 {
			next = time.Now()
			delay = 0
		}
		select {
		case <-quit:
			return
		case <-time.After(delay):
		}
	}
}

// Subscribe attaches a new consumer positioned after the current
// frame. Callers must Close the subscription when done.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	last := b.seq
	b.mu.Unlock()

	b.met.SubscriberAdded(b.name)
	return &Subscription{b: b, last: last}
}

// A Subscription reads frames from its broadcaster in publish order,
// always observing the newest frame rather than every frame.
type Subscription struct {
	b      *Broadcaster
	last   uint64
	closed bool
}

// Next blocks until a frame newer than the last returned one is
// available. It returns ErrStopped once the broadcaster shuts down
// and the context error once ctx is done.
func (s *Subscription) Next(ctx context.Context) ([]byte, error) {
	for {
		frame, seq, ok := s.b.await(s.last)
		if !ok {
			return nil, ErrStopped
		}
		if frame != nil {
			s.last = seq
			return frame, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Close releases the subscriber's gauge slot. Safe to call twice.
func (s *Subscription) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.b.met.SubscriberGone(s.b.name)
}

// await parks for up to subWait waiting for seq to pass last. It
// returns (nil, _, true) on timeout so the caller can recheck its
// context, and ok=false once the broadcaster stopped.
func (b *Broadcaster) await(last uint64) ([]byte, uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deadline := time.Now().Add(subWait)
	for b.running && b.seq <= last {
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, 0, true
		}
		wake := time.AfterFunc(remain, b.cond.Broadcast)
		b.cond.Wait()
		wake.Stop()
	}

	if !b.running {
		return nil, 0, false
	}
	return b.latest, b.seq, true
}
