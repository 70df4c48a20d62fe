package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrMetadata = errors.New("auth: provider metadata unavailable")

const (
	probeTimeout = 3 * time.Second
	metadataTTL  = 5 * time.Minute
)

// wellKnown paths probed in order: OIDC discovery first, then the
// RFC 8414 authorization-server document.
var wellKnown = []string{
	"/.well-known/openid-configuration",
	"/.well-known/oauth-authorization-server",
}

// Metadata is the subset of provider discovery data the login flow
// needs. All three fields are required.
type Metadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

// Prober fetches and caches OAuth2 provider metadata. Successful
// probes are reused for up to five minutes per base URL.
type Prober struct {
	client *http.Client
	cache  *expirable.LRU[string, Metadata]
}

func NewProber() *Prober {
	return &Prober{
		client: &http.Client{Timeout: probeTimeout},
		cache:  expirable.NewLRU[string, Metadata](16, nil, metadataTTL),
	}
}

// Probe discovers the provider endpoints for baseURL, trying the
// OIDC document first and falling back to RFC 8414.
func (p *Prober) Probe(ctx context.Context, baseURL string) (Metadata, error) {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return Metadata{}, fmt.Errorf("%w: empty base URL", ErrMetadata)
	}

	if md, ok := p.cache.Get(base); ok {
		return md, nil
	}

	var lastErr error
	for _, path := range wellKnown {
		md, err := p.fetch(ctx, base+path)
		if err != nil {
			lastErr = err
			continue
		}
		p.cache.Add(base, md)
		return md, nil
	}
	return Metadata{}, fmt.Errorf("%w: %v", ErrMetadata, lastErr)
}

func (p *Prober) fetch(ctx context.Context, url string) (Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("metadata endpoint returned %d", resp.StatusCode)
	}

	var md Metadata
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return Metadata{}, err
	}
	if md.Issuer == "" || md.AuthorizationEndpoint == "" || md.TokenEndpoint == "" {
		return Metadata{}, errors.New("metadata document missing required fields")
	}
	return md, nil
}
