package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Conn is the slice of a NATS connection the publisher needs.
// *nats.Conn satisfies it.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards motion events to a NATS subject with bounded
// retries. Publish failures are reported, not fatal; the service
// keeps running without a broker.
type Publisher struct {
	conn       Conn
	subject    string
	maxRetries int
	log        zerolog.Logger
}

func NewPublisher(conn Conn, deviceID string, log zerolog.Logger) *Publisher {
	return &Publisher{
		conn:       conn,
		subject:    MotionSubject(deviceID),
		maxRetries: 3,
		log:        log,
	}
}

func (p *Publisher) Subject() string { return p.subject }

func (p *Publisher) Publish(ev MotionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, data)
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}

// Run consumes events until the channel closes or ctx is done.
func (p *Publisher) Run(ctx context.Context, events <-chan MotionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ev); err != nil {
				p.log.Warn().Err(err).Str("subject", p.subject).Msg("motion event publish failed")
			}
		}
	}
}
