package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Sbussiso/OpenSentry/internal/config"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := CheckPassword("correct-horse-battery-staple", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = CheckPassword("wrong-password", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckPasswordRejectsGarbage(t *testing.T) {
	for _, h := range []string{"", "plaintext", "$argon2i$v=19$m=1,t=1,p=1$x$y", "$argon2id$v=19$bad"} {
		_, err := CheckPassword("pw", h)
		require.ErrorIs(t, err, ErrInvalidHash, h)
	}
}

func sessionRequest(t *testing.T, rec *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestSessionRoundTrip(t *testing.T) {
	s := NewSessions("test-secret")

	rec := httptest.NewRecorder()
	require.NoError(t, s.Write(rec, Session{
		LoggedIn: true,
		User:     "admin",
		Next:     "/settings",
	}))

	got := s.Read(sessionRequest(t, rec))
	require.True(t, got.LoggedIn)
	require.Equal(t, "admin", got.User)
	require.Equal(t, "/settings", got.Next)
}

func TestSessionRejectsTampering(t *testing.T) {
	s := NewSessions("test-secret")

	rec := httptest.NewRecorder()
	require.NoError(t, s.Write(rec, Session{LoggedIn: true, User: "admin"}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := rec.Result().Cookies()[0]
	c.Value += "x"
	req.AddCookie(c)

	require.Zero(t, s.Read(req))
}

func TestSessionRejectsForeignKey(t *testing.T) {
	a := NewSessions("secret-a")
	b := NewSessions("secret-b")

	rec := httptest.NewRecorder()
	require.NoError(t, a.Write(rec, Session{LoggedIn: true}))
	require.Zero(t, b.Read(sessionRequest(t, rec)))
}

func TestSessionClear(t *testing.T) {
	s := NewSessions("test-secret")
	rec := httptest.NewRecorder()
	s.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, SessionCookie, cookies[0].Name)
	require.Negative(t, cookies[0].MaxAge)
}

func TestTokenSealRoundTrip(t *testing.T) {
	s := NewSessions("test-secret")
	ts := TokenSet{
		AccessToken:  "at-123",
		RefreshToken: "rt-456",
		IDToken:      "idt-789",
		ExpiresIn:    3600,
		TokenType:    "Bearer",
	}

	blob, err := s.SealTokens(ts)
	require.NoError(t, err)
	require.NotContains(t, blob, "at-123", "tokens must not appear in clear")

	got, err := s.OpenTokens(blob)
	require.NoError(t, err)
	require.Equal(t, ts, got)

	_, err = NewSessions("other-secret").OpenTokens(blob)
	require.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	key := []byte("signing-key")
	now := time.Now()

	state, err := MakeState(key, "the-verifier", now)
	require.NoError(t, err)

	payload, err := VerifyState(key, state, now.Add(30*time.Second))
	require.NoError(t, err)
	require.Equal(t, "the-verifier", payload.V)
	require.Equal(t, now.Unix(), payload.T)
	require.NotEmpty(t, payload.N)
}

func TestStateRejectsTampering(t *testing.T) {
	key := []byte("signing-key")
	state, err := MakeState(key, "v", time.Now())
	require.NoError(t, err)

	_, err = VerifyState(key, state+"x", time.Now())
	require.ErrorIs(t, err, ErrStateInvalid)

	_, err = VerifyState([]byte("other-key"), state, time.Now())
	require.ErrorIs(t, err, ErrStateInvalid)

	for _, bad := range []string{"", "no-dot", "a.b", "!!!.###"} {
		_, err = VerifyState(key, bad, time.Now())
		require.ErrorIs(t, err, ErrStateInvalid, bad)
	}
}

func TestStateExpires(t *testing.T) {
	key := []byte("signing-key")
	now := time.Now()

	state, err := MakeState(key, "v", now)
	require.NoError(t, err)

	_, err = VerifyState(key, state, now.Add(599*time.Second))
	require.NoError(t, err)

	_, err = VerifyState(key, state, now.Add(601*time.Second))
	require.ErrorIs(t, err, ErrStateExpired)
}

func TestVerifierChallengeContract(t *testing.T) {
	v1, err := NewVerifier()
	require.NoError(t, err)
	v2, err := NewVerifier()
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(v1), 43)
	require.NotEqual(t, v1, v2)

	sum := sha256.Sum256([]byte(v1))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), Challenge(v1))
}

func metadataDoc(issuer string) map[string]string {
	return map[string]string{
		"issuer":                 issuer,
		"authorization_endpoint": issuer + "/authorize",
		"token_endpoint":         issuer + "/token",
	}
}

func TestProberReadsOIDCDocument(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		json.NewEncoder(w).Encode(metadataDoc("https://idp.example"))
	}))
	defer srv.Close()

	p := NewProber()
	ctx := context.Background()

	md, err := p.Probe(ctx, srv.URL)
	require.NoError(t, err)
	require.Equal(t, "https://idp.example", md.Issuer)
	require.Equal(t, "https://idp.example/authorize", md.AuthorizationEndpoint)
	require.Equal(t, "https://idp.example/token", md.TokenEndpoint)

	// Second probe is served from cache.
	_, err = p.Probe(ctx, srv.URL)
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())
}

func TestProberFallsBackToRFC8414(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/oauth-authorization-server" {
			json.NewEncoder(w).Encode(metadataDoc("https://as.example"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	md, err := NewProber().Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "https://as.example", md.Issuer)
}

func TestProberRequiresAllFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": "https://idp.example"})
	}))
	defer srv.Close()

	_, err := NewProber().Probe(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrMetadata)
}

func TestProberRejectsEmptyBaseURL(t *testing.T) {
	_, err := NewProber().Probe(context.Background(), "")
	require.ErrorIs(t, err, ErrMetadata)
}

func TestExchangeSendsGrantAndParsesSubset(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at",
			"refresh_token": "rt",
			"id_token":      "idt",
			"expires_in":    3600,
			"token_type":    "Bearer",
			"scope":         "openid",
			"extra_field":   "dropped",
		})
	}))
	defer srv.Close()

	ts, err := Exchange(context.Background(), srv.URL, ExchangeForm{
		Code:         "the-code",
		RedirectURI:  "http://device.local:5000/oauth2/callback",
		ClientID:     "client-1",
		ClientSecret: "hunter2",
		CodeVerifier: "verifier",
	})
	require.NoError(t, err)

	require.Equal(t, "authorization_code", form.Get("grant_type"))
	require.Equal(t, "the-code", form.Get("code"))
	require.Equal(t, "client-1", form.Get("client_id"))
	require.Equal(t, "hunter2", form.Get("client_secret"))
	require.Equal(t, "verifier", form.Get("code_verifier"))

	require.Equal(t, TokenSet{AccessToken: "at", RefreshToken: "rt", IDToken: "idt", ExpiresIn: 3600, TokenType: "Bearer"}, ts)
}

func TestExchangeReportsProviderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := Exchange(context.Background(), srv.URL, ExchangeForm{Code: "c"})
	require.EqualError(t, err, "Token exchange failed: 400")
}

func TestCheckLocal(t *testing.T) {
	require.True(t, CheckLocal("admin", "admin", "admin", "admin", ""))
	require.False(t, CheckLocal("admin", "wrong", "admin", "admin", ""))
	require.False(t, CheckLocal("other", "admin", "admin", "admin", ""))

	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.True(t, CheckLocal("admin", "s3cret", "admin", "", hash))
	require.False(t, CheckLocal("admin", "admin", "admin", "admin", hash), "hash takes precedence over plaintext")
}

func gateConfig(t *testing.T) *config.Store {
	t.Helper()
	st, err := config.Load(filepath.Join(t.TempDir(), "config.json"), zerolog.Nop())
	require.NoError(t, err)
	return st
}

func TestGateAdmitsLoggedInSession(t *testing.T) {
	sessions := NewSessions("secret")
	gate := NewGate(sessions, gateConfig(t))

	called := false
	h := gate.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Write(rec, Session{LoggedIn: true, User: "admin"}))
	h.ServeHTTP(httptest.NewRecorder(), sessionRequest(t, rec))
	require.True(t, called)
}

func TestGateRedirectsToLocalLogin(t *testing.T) {
	gate := NewGate(NewSessions("secret"), gateConfig(t))
	h := gate.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings?tab=motion", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/login?next="+url.QueryEscape("/settings?tab=motion"), rec.Header().Get("Location"))
}

func TestGateRedirectsToOAuth2WhenEffective(t *testing.T) {
	cfg := gateConfig(t)
	a := cfg.Auth()
	a.Mode = "oauth2"
	a.BaseURL = "https://idp.example"
	a.ClientID = "client-1"
	require.NoError(t, cfg.SetAuth(a))

	sessions := NewSessions("secret")
	gate := NewGate(sessions, cfg)
	h := gate.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/oauth2/login", rec.Header().Get("Location"))

	stored := sessions.Read(sessionRequest(t, rec))
	require.Equal(t, "/settings", stored.Next)
}

func TestGateHonorsFallbackSession(t *testing.T) {
	cfg := gateConfig(t)
	a := cfg.Auth()
	a.Mode = "oauth2"
	a.BaseURL = "https://idp.example"
	a.ClientID = "client-1"
	require.NoError(t, cfg.SetAuth(a))

	sessions := NewSessions("secret")
	gate := NewGate(sessions, cfg)
	h := gate.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	seed := httptest.NewRecorder()
	require.NoError(t, sessions.Write(seed, Session{OAuth2Fallback: true}))
	req := sessionRequest(t, seed)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/login?next="))
}

func TestCheckBearerLadder(t *testing.T) {
	bare := httptest.NewRequest(http.MethodGet, "/status", nil)
	require.Zero(t, CheckBearer(bare, ""), "no token configured leaves the endpoint open")
	require.Equal(t, http.StatusUnauthorized, CheckBearer(bare, "tok"))

	malformed := httptest.NewRequest(http.MethodGet, "/status", nil)
	malformed.Header.Set("Authorization", "Basic abc")
	require.Equal(t, http.StatusUnauthorized, CheckBearer(malformed, "tok"))

	wrong := httptest.NewRequest(http.MethodGet, "/status", nil)
	wrong.Header.Set("Authorization", "Bearer nope")
	require.Equal(t, http.StatusForbidden, CheckBearer(wrong, "tok"))

	good := httptest.NewRequest(http.MethodGet, "/status", nil)
	good.Header.Set("Authorization", "Bearer tok")
	require.Zero(t, CheckBearer(good, "tok"))
}

func TestSafeNext(t *testing.T) {
	require.Equal(t, "/settings", SafeNext("/settings"))
	require.Equal(t, "/", SafeNext(""))
	require.Equal(t, "/", SafeNext("https://evil.example/"))
	require.Equal(t, "/", SafeNext("//evil.example"))
}
