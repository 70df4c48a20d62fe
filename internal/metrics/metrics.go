// Package metrics exposes Prometheus instrumentation for the capture
// pipeline and the HTTP surface on a dedicated registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector. A nil *Metrics is valid and turns
// all recording methods into no-ops, which keeps tests light.
type Metrics struct {
	registry *prometheus.Registry

	framesCaptured  prometheus.Counter
	captureReopens  prometheus.Counter
	encodeSeconds   prometheus.Histogram
	framesPublished *prometheus.CounterVec
	subscribers     *prometheus.GaugeVec
	motionEvents    prometheus.Counter
	snapshotsSaved  prometheus.Counter
	snapshotsPruned prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.framesCaptured = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opensentry_frames_captured_total",
		Help: "Frames decoded from the capture device",
	})
	reg.MustRegister(m.framesCaptured)

	m.captureReopens = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opensentry_capture_reopens_total",
		Help: "Times the capture device was reopened after failures",
	})
	reg.MustRegister(m.captureReopens)

	m.encodeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "opensentry_encode_duration_seconds",
		Help:    "JPEG encode latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})
	reg.MustRegister(m.encodeSeconds)

	m.framesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opensentry_stream_frames_published_total",
		Help: "Frames published into a broadcast slot",
	}, []string{"stream"})
	reg.MustRegister(m.framesPublished)

	m.subscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opensentry_stream_subscribers",
		Help: "Connected multipart stream clients",
	}, []string{"stream"})
	reg.MustRegister(m.subscribers)

	m.motionEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opensentry_motion_events_total",
		Help: "Motion events published on the internal bus",
	})
	reg.MustRegister(m.motionEvents)

	m.snapshotsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opensentry_snapshots_saved_total",
		Help: "Snapshot files written",
	})
	reg.MustRegister(m.snapshotsSaved)

	m.snapshotsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opensentry_snapshots_pruned_total",
		Help: "Snapshot files removed by retention",
	})
	reg.MustRegister(m.snapshotsPruned)

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opensentry_http_requests_total",
		Help: "HTTP requests by method, route, and status",
	}, []string{"method", "route", "status"})
	reg.MustRegister(m.httpRequests)

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opensentry_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	reg.MustRegister(m.httpDuration)

	return m
}

// Handler serves the exposition endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameCaptured() {
	if m == nil {
		return
	}
	m.framesCaptured.Inc()
}

func (m *Metrics) CaptureReopened() {
	if m == nil {
		return
	}
	m.captureReopens.Inc()
}

func (m *Metrics) ObserveEncode(d time.Duration) {
	if m == nil {
		return
	}
	m.encodeSeconds.Observe(d.Seconds())
}

func (m *Metrics) FramePublished(stream string) {
	if m == nil {
		return
	}
	m.framesPublished.WithLabelValues(stream).Inc()
}

func (m *Metrics) SubscriberAdded(stream string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(stream).Inc()
}

func (m *Metrics) SubscriberGone(stream string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(stream).Dec()
}

func (m *Metrics) MotionEvent() {
	if m == nil {
		return
	}
	m.motionEvents.Inc()
}

func (m *Metrics) SnapshotSaved() {
	if m == nil {
		return
	}
	m.snapshotsSaved.Inc()
}

func (m *Metrics) SnapshotsPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.snapshotsPruned.Add(float64(n))
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
