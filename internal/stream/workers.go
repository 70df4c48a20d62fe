package stream

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sbussiso/OpenSentry/internal/camera"
	"github.com/Sbussiso/OpenSentry/internal/config"
	"github.com/Sbussiso/OpenSentry/internal/encode"
	"github.com/Sbussiso/OpenSentry/internal/events"
	"github.com/Sbussiso/OpenSentry/internal/metrics"
	"github.com/Sbussiso/OpenSentry/internal/render"
	"github.com/Sbussiso/OpenSentry/internal/vision"
)

// RawProducer encodes plain camera frames for the live feed, scaled
// and compressed per the stream settings.
type RawProducer struct {
	src camera.Source
	cfg *config.Store
	met *metrics.Metrics
}

func NewRawProducer(src camera.Source, cfg *config.Store, met *metrics.Metrics) *RawProducer {
	return &RawProducer{src: src, cfg: cfg, met: met}
}

// Produce returns the next encoded frame, or nil when the camera has
// none yet.
func (p *RawProducer) Produce() []byte {
	frame := p.src.Frame()
	if frame == nil {
		return nil
	}
	st := p.cfg.Stream()

	img := render.Downscale(frame.Image, st.MaxWidth)
	t0 := time.Now()
	data := encode.JPEG(img, st.Quality)
	p.met.ObserveEncode(time.Since(t0))
	return data
}

// MotionProducer runs the motion analyzer over camera frames and
// encodes an annotated feed: a status label plus, during motion, a
// box around the detected area. State transitions are published as
// events.
type MotionProducer struct {
	src camera.Source
	cfg *config.Store
	bus *events.Bus
	log zerolog.Logger
	met *metrics.Metrics

	mu         sync.Mutex
	analyzer   vision.Analyzer
	algorithm  string
	active     bool
	lastActive time.Time
	latest     []byte
}

func NewMotionProducer(src camera.Source, cfg *config.Store, bus *events.Bus, log zerolog.Logger, met *metrics.Metrics) *MotionProducer {
	return &MotionProducer{src: src, cfg: cfg, bus: bus, log: log, met: met}
}

func (p *MotionProducer) Produce() []byte {
	frame := p.src.Frame()
	if frame == nil {
		return nil
	}
	m := p.cfg.Motion()
	st := p.cfg.Stream()

	p.mu.Lock()
	if p.analyzer == nil || p.algorithm != m.Algorithm {
		p.analyzer = vision.New(m.Algorithm)
		p.algorithm = m.Algorithm
	}
	res := p.analyzer.Analyze(frame.Image, vision.Params{
		Threshold:    m.Threshold,
		MinArea:      m.MinArea,
		Kernel:       m.Kernel,
		Iterations:   m.Iterations,
		Pad:          m.Pad,
		History:      m.History,
		VarThreshold: m.VarThreshold,
	})
	emit := p.transition(res, frame.At)
	p.mu.Unlock()

	for _, ev := range emit {
		if ev.State == events.StateStarted {
			p.met.MotionEvent()
			p.log.Debug().Int("area_px", ev.AreaPx).Msg("motion started")
		}
		if p.bus != nil {
			p.bus.Publish(ev)
		}
	}

	img := frame.Image
	if res.Motion {
		render.Box(img, res.Bounds, render.Green, 2)
		render.Label(img, 10, 10, "Motion", render.Green)
	} else {
		render.Label(img, 10, 10, "No motion", render.Gray)
	}

	out := render.Downscale(img, st.MaxWidth)
	t0 := time.Now()
	data := encode.JPEG(out, st.Quality)
	p.met.ObserveEncode(time.Since(t0))

	p.mu.Lock()
	p.latest = data
	p.mu.Unlock()
	return data
}

// Latest returns the most recent annotated frame for single-shot
// capture endpoints, or nil before the first analyzed frame.
func (p *MotionProducer) Latest() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Active reports whether motion is currently in progress.
func (p *MotionProducer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// transition updates the motion state machine and returns the events
// to publish: started and ended on edges, active at most once per
// second while motion persists. Callers hold p.mu.
func (p *MotionProducer) transition(res vision.Result, at time.Time) []events.MotionEvent {
	event := func(state string) events.MotionEvent {
		return events.MotionEvent{
			DeviceID: p.cfg.DeviceID(),
			At:       at,
			State:    state,
			AreaPx:   res.TotalAreaPx,
			Boxes:    events.BoxesFromRects(res.Boxes),
		}
	}

	switch {
	case res.Motion && !p.active:
		p.active = true
		p.lastActive = at
		return []events.MotionEvent{event(events.StateStarted)}
	case res.Motion:
		if at.Sub(p.lastActive) >= time.Second {
			p.lastActive = at
			return []events.MotionEvent{event(events.StateActive)}
		}
	case p.active:
		p.active = false
		return []events.MotionEvent{event(events.StateEnded)}
	}
	return nil
}
