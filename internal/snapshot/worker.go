package snapshot

import (
	"context"
	"fmt"
	"image"
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

const (
	minInterval = 5
	maxInterval = 60
)

// Worker samples the camera on an interval independent of the HTTP
// streams and optionally saves extra stills when motion events cross
// the configured area threshold.
type Worker struct {
	src   camera.Source
	cfg   *config.Store
	store *Store
	log   zerolog.Logger
	met   *metrics.Metrics

	mu          sync.Mutex
	started     bool
	quit        chan struct{}
	wg          sync.WaitGroup
	analyzer    *vision.DiffAnalyzer
	dedup       *events.Dedup
	lastTrigger time.Time
}

func NewWorker(src camera.Source, cfg *config.Store, store *Store, log zerolog.Logger, met *metrics.Metrics) *Worker {
	return &Worker{
		src:      src,
		cfg:      cfg,
		store:    store,
		log:      log,
		met:      met,
		analyzer: vision.NewDiff(),
		dedup:    events.NewDedup(64, time.Second),
	}
}

// Start launches the interval loop. Idempotent.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.quit = make(chan struct{})
	w.wg.Add(1)
	go w.run(w.quit)
	w.log.Info().Msg("snapshot worker started")
}

// Stop halts the interval loop. Idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	close(w.quit)
	w.mu.Unlock()
	w.wg.Wait()
	w.log.Info().Msg("snapshot worker stopped")
}

func (w *Worker) run(quit chan struct{}) {
	defer w.wg.Done()

	iter := 0
	for {
		sn := w.cfg.Snapshots()
		interval := sn.IntervalSec
		if interval < minInterval {
			interval = minInterval
		} else if interval > maxInterval {
			interval = maxInterval
		}

		select {
		case <-quit:
			return
		case <-time.After(time.Duration(interval) * time.Second):
		}

		iter++
		w.capture(sn, iter)
	}
}

// capture performs one interval iteration: sample, optionally overlay
// motion against the previous saved frame, stamp, store, prune.
func (w *Worker) capture(sn config.Snapshots, iter int) {
	frame := w.src.Frame()
	if frame == nil {
		return
	}

	img := frame.Image
	suffix := "snapshot"
	if sn.MotionOverlay {
		m := w.cfg.Motion()
		w.mu.Lock()
		res := w.analyzer.Analyze(img, vision.Params{
			Threshold:    m.Threshold,
			MinArea:      m.MinArea,
			Kernel:       m.Kernel,
			Iterations:   m.Iterations,
			Pad:          m.Pad,
			History:      m.History,
			VarThreshold: m.VarThreshold,
		})
		w.mu.Unlock()
		if res.Motion {
			render.Box(img, res.Bounds, render.Green, 2)
			render.Label(img, 10, 10, "Motion", render.Green)
			suffix = fmt.Sprintf("motion_%dpx", res.TotalAreaPx)
		}
	}
	render.Timestamp(img, frame.At)

	data := encode.JPEG(img, w.cfg.Stream().Quality)
	w.store.SetLatest(data)

	name := frame.At.Format("2006-01-02_15-04-05") + "_" + suffix + ".jpg"
	if err := w.store.Write(name, data); err != nil {
		w.log.Warn().Err(err).Str("file", name).Msg("snapshot save failed")
		return
	}
	w.met.SnapshotSaved()
	w.log.Debug().Str("file", name).Msg("snapshot saved")

	if sn.PruneEvery > 0 && iter%sn.PruneEvery == 0 {
		w.store.Prune(sn.RetentionCount, sn.RetentionDays)
	}
}

// HandleEvent saves a still for motion events whose area crosses the
// configured threshold, subject to the cooldown and a one-second
// dedup window for bursts.
func (w *Worker) HandleEvent(ev events.MotionEvent) {
	sn := w.cfg.Snapshots()
	if !sn.MotionTrigger || ev.State == events.StateEnded {
		return
	}
	if ev.AreaPx < sn.MotionThreshold {
		return
	}

	w.mu.Lock()
	cooldown := time.Duration(sn.CooldownSec) * time.Second
	if !w.lastTrigger.IsZero() && time.Since(w.lastTrigger) < cooldown {
		w.mu.Unlock()
		return
	}
	if w.dedup.IsDuplicate(events.BuildKey(ev.DeviceID, "trigger", ev.At)) {
		w.mu.Unlock()
		return
	}
	w.lastTrigger = time.Now()
	w.mu.Unlock()

	frame := w.src.Frame()
	if frame == nil {
		return
	}

	img := frame.Image
	for _, b := range ev.Boxes {
		render.Box(img, image.Rect(b[0], b[1], b[0]+b[2], b[1]+b[3]), render.Green, 2)
	}
	render.Label(img, 10, 10, "Motion", render.Green)
	render.Timestamp(img, frame.At)

	data := encode.JPEG(img, w.cfg.Stream().Quality)
	w.store.SetLatest(data)

	name := frame.At.Format("2006-01-02_15-04-05") + fmt.Sprintf("_motion_%dpx.jpg", ev.AreaPx)
	if err := w.store.Write(name, data); err != nil {
		w.log.Warn().Err(err).Str("file", name).Msg("triggered snapshot save failed")
		return
	}
	w.met.SnapshotSaved()
	w.log.Info().Int("area_px", ev.AreaPx).Str("file", name).Msg("motion snapshot saved")
}

// RunTrigger consumes motion events until the channel closes or ctx
// is done.
func (w *Worker) RunTrigger(ctx context.Context, ch <-chan events.MotionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			w.HandleEvent(ev)
		}
	}
}
