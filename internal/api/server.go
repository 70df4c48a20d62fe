// Package api is the HTTP surface: router, middleware, and handlers
// for the pages, streams, snapshot APIs, auth flows, and the status
// endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/Sbussiso/OpenSentry/internal/auth"
	"github.com/Sbussiso/OpenSentry/internal/camera"
	"github.com/Sbussiso/OpenSentry/internal/config"
	"github.com/Sbussiso/OpenSentry/internal/events"
	"github.com/Sbussiso/OpenSentry/internal/logbuf"
	"github.com/Sbussiso/OpenSentry/internal/metrics"
	"github.com/Sbussiso/OpenSentry/internal/snapshot"
	"github.com/Sbussiso/OpenSentry/internal/stream"
)

// loginRateLimit bounds credential guessing per client IP.
const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// Deps carries everything the handlers touch. All fields are required
// except Hub and LogRing, which may be nil in tests.
type Deps struct {
	Bootstrap *config.Service
	Settings  *config.Store
	Sessions  *auth.Sessions
	Prober    *auth.Prober
	Camera    camera.Source
	Raw       *stream.Broadcaster
	Motion    *stream.Broadcaster
	MotionSrc *stream.MotionProducer
	Snapshots *snapshot.Store
	Hub       *events.Hub
	LogRing   *logbuf.Ring
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

// Server owns the router and handler state.
type Server struct {
	cfg      *config.Service
	store    *config.Store
	sessions *auth.Sessions
	gate     *auth.Gate
	prober   *auth.Prober
	cam      camera.Source
	raw      *stream.Broadcaster
	motion   *stream.Broadcaster
	motionW  *stream.MotionProducer
	snaps    *snapshot.Store
	hub      *events.Hub
	ring     *logbuf.Ring
	met      *metrics.Metrics
	log      zerolog.Logger
}

func New(d Deps) *Server {
	return &Server{
		cfg:      d.Bootstrap,
		store:    d.Settings,
		sessions: d.Sessions,
		gate:     auth.NewGate(d.Sessions, d.Settings),
		prober:   d.Prober,
		cam:      d.Camera,
		raw:      d.Raw,
		motion:   d.Motion,
		motionW:  d.MotionSrc,
		snaps:    d.Snapshots,
		hub:      d.Hub,
		ring:     d.LogRing,
		met:      d.Metrics,
		log:      d.Log,
	}
}

// Router assembles the full route tree. Open routes (auth flows,
// health, status, metrics) sit outside the session gate; everything
// else requires a logged-in session.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(s.deviceHeaders)
	r.Use(s.countRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/favicon.ico", s.handleFavicon)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", s.met.Handler())

	r.Get("/login", s.handleLoginPage)
	r.With(httprate.LimitByIP(loginRateLimit, loginRateWindow)).
		Post("/login", s.handleLoginSubmit)
	r.Get("/logout", s.handleLogout)
	r.Get("/oauth2/login", s.handleOAuth2Login)
	r.Get("/oauth2/callback", s.handleOAuth2Callback)
	r.Get("/oauth2/fallback", s.handleOAuth2Fallback)
	r.Get("/api/oauth2/test", s.handleOAuth2Test)

	r.Group(func(p chi.Router) {
		p.Use(s.gate.RequireSession)

		p.Get("/", s.handleIndex)
		p.Get("/gallery", s.handleGallery)
		p.Get("/settings", s.handleSettingsPage)
		p.Post("/settings", s.handleSettingsSubmit)
		p.Get("/logs/download", s.handleLogsDownload)

		p.Get("/video_feed", s.handleStream(s.raw))
		p.Get("/video_feed_motion", s.handleStream(s.motion))

		p.Get("/api/snapshot", s.handleSnapshotNow)
		p.Get("/api/snapshots/latest", s.handleSnapshotLatest)
		p.Get("/api/snapshots/list", s.handleSnapshotList)
		p.Get("/api/snapshots/image/{name}", s.handleSnapshotImage)
		p.Post("/api/snapshots/delete/{name}", s.handleSnapshotDelete)
		p.Delete("/api/snapshots/delete/{name}", s.handleSnapshotDelete)

		if s.hub != nil {
			p.Get("/ws/events", s.hub.ServeWS)
		}
	})

	return r
}
