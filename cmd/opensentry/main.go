package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sbussiso/OpenSentry/internal/api"
	"github.com/Sbussiso/OpenSentry/internal/auth"
	"github.com/Sbussiso/OpenSentry/internal/camera"
	"github.com/Sbussiso/OpenSentry/internal/config"
	"github.com/Sbussiso/OpenSentry/internal/events"
	"github.com/Sbussiso/OpenSentry/internal/logbuf"
	"github.com/Sbussiso/OpenSentry/internal/mdns"
	"github.com/Sbussiso/OpenSentry/internal/metrics"
	"github.com/Sbussiso/OpenSentry/internal/snapshot"
	"github.com/Sbussiso/OpenSentry/internal/stream"
)

const (
	shutdownTimeout = 5 * time.Second

	// portAttempts mirrors the port scan on startup: when the preferred
	// port is taken, the next few are tried before giving up.
	portAttempts = 10
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "opensentry:", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Bootstrap config
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	// 2. Logger: console plus the in-memory ring served by /logs/download
	ring := logbuf.New(cfg.LogBuffer)
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log := zerolog.New(zerolog.MultiLevelWriter(console, ring)).
		Level(level).
		With().Timestamp().Logger()

	log.Info().Str("version", cfg.Version).Str("name", cfg.DeviceName).Msg("opensentry starting")
	if cfg.DefaultSecretInUse() {
		log.Warn().Msg("OPENSENTRY_SECRET is the shipped default, sessions are forgeable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Settings store
	store, err := config.Load(cfg.ConfigPath, log.With().Str("component", "config").Logger())
	if err != nil {
		return err
	}
	store.StartWatcher(ctx)

	met := metrics.New()

	// 4. Capture source
	var src camera.Source
	if cfg.Placeholder {
		src = camera.NewSynthetic(640, 480, 15)
		log.Info().Msg("placeholder camera enabled")
	} else {
		src = camera.NewFFmpeg(camera.Options{
			Device: cfg.CameraDevice,
			Index:  cfg.CameraIndex,
			Buffer: cfg.CameraBuffer,
			Prefs:  capturePrefs(cfg, store),
		}, log.With().Str("component", "camera").Logger(), met)
	}
	if err := src.Start(); err != nil {
		return fmt.Errorf("start camera: %w", err)
	}
	defer src.Stop()

	// 5. Event plumbing
	bus := events.NewBus(log.With().Str("component", "events").Logger())
	hub := events.NewHub(log.With().Str("component", "ws").Logger())

	// 6. Stream pipeline
	rawProd := stream.NewRawProducer(src, store, met)
	motionProd := stream.NewMotionProducer(src, store, bus,
		log.With().Str("component", "motion").Logger(), met)
	fps := func() int { return store.Stream().FPS }
	raw := stream.NewBroadcaster("raw", rawProd.Produce, fps,
		log.With().Str("component", "stream").Logger(), met)
	motion := stream.NewBroadcaster("motion", motionProd.Produce, fps,
		log.With().Str("component", "stream").Logger(), met)
	raw.Start()
	motion.Start()
	defer raw.Stop()
	defer motion.Stop()

	// 7. Snapshots
	snapStore, err := snapshot.NewStore(cfg.SnapshotDir,
		log.With().Str("component", "snapshot").Logger(), met)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}
	snapWorker := snapshot.NewWorker(src, store, snapStore,
		log.With().Str("component", "snapshot").Logger(), met)
	snapWorker.Start()
	defer snapWorker.Stop()

	g, ctx := errgroup.WithContext(ctx)

	trigCh := bus.Subscribe(8)
	g.Go(func() error {
		defer bus.Unsubscribe(trigCh)
		snapWorker.RunTrigger(ctx, trigCh)
		return nil
	})

	wsCh := bus.Subscribe(8)
	g.Go(func() error {
		defer bus.Unsubscribe(wsCh)
		hub.Run(ctx, wsCh)
		hub.CloseAll()
		return nil
	})

	// 8. Optional NATS bridge
	if cfg.NATSUrl != "" {
		nc, err := nats.Connect(cfg.NATSUrl, nats.Name("opensentry"))
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATSUrl).Msg("NATS connect failed, event publishing disabled")
		} else {
			defer nc.Close()
			pub := events.NewPublisher(nc, store.DeviceID(),
				log.With().Str("component", "nats").Logger())
			natsCh := bus.Subscribe(16)
			g.Go(func() error {
				defer bus.Unsubscribe(natsCh)
				pub.Run(ctx, natsCh)
				return nil
			})
			log.Info().Str("subject", pub.Subject()).Msg("NATS event publishing enabled")
		}
	}

	// 9. HTTP server
	srv := api.New(api.Deps{
		Bootstrap: cfg,
		Settings:  store,
		Sessions:  auth.NewSessions(cfg.Secret),
		Prober:    auth.NewProber(),
		Camera:    src,
		Raw:       raw,
		Motion:    motion,
		MotionSrc: motionProd,
		Snapshots: snapStore,
		Hub:       hub,
		LogRing:   ring,
		Metrics:   met,
		Log:       log.With().Str("component", "http").Logger(),
	})

	ln, err := listen(cfg, log)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})

	// 10. mDNS advertisement, once the listener is up
	if !cfg.DisableMDNS {
		adv := mdns.New(log.With().Str("component", "mdns").Logger())
		adv.Start(mdns.Info{
			DeviceID: store.DeviceID(),
			Name:     cfg.DeviceName,
			Version:  cfg.Version,
			Port:     cfg.Port,
			AuthMode: advertisedAuthMode(cfg, store),
		})
		defer adv.Shutdown()
	}

	err = g.Wait()
	log.Info().Msg("opensentry stopped")
	return err
}

// capturePrefs merges runtime video settings with the bootstrap hints.
// The settings store wins; zero values fall back to the environment.
func capturePrefs(cfg *config.Service, store *config.Store) func() camera.Prefs {
	return func() camera.Prefs {
		v := store.Video()
		p := camera.Prefs{Width: v.Width, Height: v.Height, FPS: v.FPS, MJPEG: v.MJPEG}
		if p.Width == 0 {
			p.Width = cfg.CameraWidth
		}
		if p.Height == 0 {
			p.Height = cfg.CameraHeight
		}
		if p.FPS == 0 {
			p.FPS = cfg.CameraFPS
		}
		return p
	}
}

func advertisedAuthMode(cfg *config.Service, store *config.Store) string {
	if cfg.APIToken != "" {
		return "token"
	}
	return store.Auth().Mode
}

// listen binds the preferred port, walking forward a few ports when it
// is taken. cfg.Port is updated so /status and mDNS report the port
// actually bound.
func listen(cfg *config.Service, log zerolog.Logger) (net.Listener, error) {
	var lastErr error
	for i := 0; i < portAttempts; i++ {
		port := cfg.Port + i
		ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			continue
		}
		if i > 0 {
			log.Warn().Int("preferred", cfg.Port).Int("port", port).Msg("preferred port busy, using fallback")
		}
		cfg.Port = port
		return ln, nil
	}
	return nil, fmt.Errorf("no free port in %d..%d: %w", cfg.Port, cfg.Port+portAttempts-1, lastErr)
}
