package auth

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sbussiso/OpenSentry/internal/config"
)

// Gate guards the protected route group. Open routes (login flows,
// health, status, metrics, static assets) are mounted outside it.
type Gate struct {
	sessions *Sessions
	cfg      *config.Store
}

func NewGate(sessions *Sessions, cfg *config.Store) *Gate {
	return &Gate{sessions: sessions, cfg: cfg}
}

// RequireSession admits logged-in sessions and redirects everyone
// else: to the OAuth2 flow when it is effective and the session has
// not fallen back, to local login otherwise.
func (g *Gate) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := g.sessions.Read(r)
		if sess.LoggedIn {
			next.ServeHTTP(w, r)
			return
		}

		target := requestURL(r)
		if g.cfg.Auth().OAuth2Configured() && !sess.OAuth2Fallback {
			sess.Next = target
			g.sessions.Write(w, sess)
			http.Redirect(w, r, "/oauth2/login", http.StatusFound)
			return
		}

		http.Redirect(w, r, "/login?next="+url.QueryEscape(target), http.StatusFound)
	})
}

// requestURL reconstructs the relative URL to return to after login.
// Absolute URLs never come out of here, so the redirect target cannot
// point off-host.
func requestURL(r *http.Request) string {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return target
}

// SafeNext sanitizes a client-provided next parameter: only relative
// paths inside this service are honored.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}

// CheckBearer implements the status-endpoint token ladder. It returns
// 0 when access is allowed, otherwise the HTTP status to reject with:
// 401 for a missing or malformed header, 403 for a mismatched token.
func CheckBearer(r *http.Request, token string) int {
	if token == "" {
		return 0
	}

	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return http.StatusUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(h, prefix)), []byte(token)) != 1 {
		return http.StatusForbidden
	}
	return 0
}
