package mdns

import (
	"context"
	"net"
	"strings"

	"github.com/grandcat/zeroconf"
)

// Found is one device seen while browsing the local network.
type Found struct {
	Instance string
	Host     string
	Port     int
	Addrs    []net.IP
	TXT      map[string]string
}

// Browse watches for advertised devices until ctx expires, calling fn
// for each announcement received. fn runs on the resolver goroutine
// and must not block.
func Browse(ctx context.Context, fn func(Found)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			fn(fromEntry(entry))
		}
	}()

	if err := resolver.Browse(ctx, serviceType, domain, entries); err != nil {
		return err
	}
	<-ctx.Done()
	<-done
	return nil
}

func fromEntry(e *zeroconf.ServiceEntry) Found {
	f := Found{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		TXT:      parseTXT(e.Text),
	}
	f.Addrs = append(f.Addrs, e.AddrIPv4...)
	f.Addrs = append(f.Addrs, e.AddrIPv6...)
	return f
}

func parseTXT(records []string) map[string]string {
	m := make(map[string]string, len(records))
	for _, rec := range records {
		k, v, ok := strings.Cut(rec, "=")
		if !ok {
			continue
		}
		m[k] = v
	}
	return m
}
