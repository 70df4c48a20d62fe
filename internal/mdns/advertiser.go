// Package mdns advertises the device on the local network as an
// _opensentry._tcp service so collectors can find it without
// configuration.
package mdns

import (
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

const (
	serviceType = "_opensentry._tcp"
	domain      = "local."
)

// Info describes the advertised device. AuthMode mirrors the status
// endpoint: "token" when a bearer token is configured, otherwise the
// settings auth mode.
type Info struct {
	DeviceID string
	Name     string
	Version  string
	Port     int
	AuthMode string
}

// TXT builds the service TXT records for an advertisement.
func TXT(info Info) []string {
	return []string{
		"id=" + info.DeviceID,
		"name=" + info.Name,
		"ver=" + info.Version,
		"caps=stream,motion,snapshots",
		"auth=" + info.AuthMode,
		"api=v1",
		"path=/status",
		"proto=http",
	}
}

// Advertiser registers and withdraws the mDNS service. Registration
// failures are logged and otherwise ignored; discovery is best-effort
// and must never hold up request servicing.
type Advertiser struct {
	log zerolog.Logger

	mu     sync.Mutex
	server *zeroconf.Server
}

func New(log zerolog.Logger) *Advertiser {
	return &Advertiser{log: log}
}

// Start registers the service. Idempotent; safe to call whether or
// not a previous registration succeeded.
func (a *Advertiser) Start(info Info) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return
	}

	instance := "OpenSentry-" + info.DeviceID
	server, err := zeroconf.Register(instance, serviceType, domain, info.Port, TXT(info), nil)
	if err != nil {
		a.log.Warn().Err(err).Msg("mdns advertise failed")
		return
	}
	a.server = server
	a.log.Info().Str("instance", instance).Int("port", info.Port).Msg("mdns service advertised")
}

// Shutdown withdraws the advertisement. Idempotent.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.log.Debug().Msg("mdns service withdrawn")
}
