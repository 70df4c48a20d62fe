package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sbussiso/OpenSentry/internal/auth"
	"github.com/Sbussiso/OpenSentry/internal/webui"
)

// callbackURL rebuilds the absolute redirect URI the provider will
// send the browser back to.
func callbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/oauth2/callback"
}

func (s *Server) renderLogin(w http.ResponseWriter, data webui.LoginData) {
	data.OAuth2 = s.store.Auth().OAuth2Configured()
	if err := webui.Render(w, "login.html", data); err != nil {
		s.log.Error().Err(err).Msg("render login")
	}
}

// renderOAuth2Error serves the 503 provider-unreachable page with the
// retry / fallback / settings actions.
func (s *Server) renderOAuth2Error(w http.ResponseWriter, detail, next string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	err := webui.Render(w, "oauth2_error.html", webui.OAuth2ErrorData{
		Message: detail,
		Next:    next,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("render oauth2 error")
	}
}

// handleLoginPage shows the local form, or hands the browser to the
// OAuth2 flow when that mode is effective and no fallback applies.
// ?fallback=1 pins local fallback into the session first.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Read(r)

	if r.URL.Query().Get("fallback") != "" && !sess.OAuth2Fallback {
		sess.OAuth2Fallback = true
		if err := s.sessions.Write(w, sess); err != nil {
			s.log.Error().Err(err).Msg("persist fallback flag")
		}
	}

	if s.store.Auth().OAuth2Configured() && !sess.OAuth2Fallback {
		http.Redirect(w, r, "/oauth2/login", http.StatusFound)
		return
	}

	s.renderLogin(w, webui.LoginData{
		Next:     auth.SafeNext(r.URL.Query().Get("next")),
		Fallback: sess.OAuth2Fallback,
	})
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	user := strings.TrimSpace(r.PostFormValue("username"))
	pass := r.PostFormValue("password")
	next := auth.SafeNext(r.PostFormValue("next"))

	if auth.CheckLocal(user, pass, s.cfg.AdminUser, s.cfg.AdminPass, s.cfg.AdminPassHash) {
		sess := s.sessions.Read(r)
		sess.LoggedIn = true
		sess.User = user
		sess.Next = ""
		if err := s.sessions.Write(w, sess); err != nil {
			s.log.Error().Err(err).Msg("write session")
			http.Error(w, "session error", http.StatusInternalServerError)
			return
		}
		s.log.Info().Str("user", user).Msg("local login")
		http.Redirect(w, r, next, http.StatusFound)
		return
	}

	s.log.Warn().Str("user", user).Str("remote", r.RemoteAddr).Msg("failed login")
	sess := s.sessions.Read(r)
	if s.store.Auth().OAuth2Configured() && !sess.OAuth2Fallback {
		http.Redirect(w, r, "/oauth2/login", http.StatusFound)
		return
	}
	s.renderLogin(w, webui.LoginData{
		Error:    "Invalid credentials",
		Next:     next,
		Fallback: sess.OAuth2Fallback,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// handleOAuth2Fallback flags the session for local login and sends
// the browser there, preserving the original destination.
func (s *Server) handleOAuth2Fallback(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Read(r)
	sess.OAuth2Fallback = true

	dest := auth.SafeNext(r.URL.Query().Get("next"))
	if dest == "/" && sess.Next != "" {
		dest = auth.SafeNext(sess.Next)
	}
	sess.Next = ""
	if err := s.sessions.Write(w, sess); err != nil {
		s.log.Error().Err(err).Msg("persist fallback flag")
	}

	http.Redirect(w, r, "/login?next="+url.QueryEscape(dest)+"&fallback=1", http.StatusFound)
}

// handleOAuth2Login starts the authorization-code flow: probe
// metadata, mint PKCE material and signed state, stash both in the
// session, and bounce to the provider.
func (s *Server) handleOAuth2Login(w http.ResponseWriter, r *http.Request) {
	a := s.store.Auth()
	if a.Mode != "oauth2" {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	sess := s.sessions.Read(r)
	next := auth.SafeNext(r.URL.Query().Get("next"))
	if next == "/" && sess.Next != "" {
		next = auth.SafeNext(sess.Next)
	}

	md, err := s.prober.Probe(r.Context(), a.BaseURL)
	if err != nil {
		s.log.Warn().Err(err).Str("base_url", a.BaseURL).Msg("oauth2 metadata probe failed")
		s.renderOAuth2Error(w, err.Error(), next)
		return
	}

	if a.ClientID == "" {
		http.Error(w, "missing oauth2_client_id in settings", http.StatusBadRequest)
		return
	}

	verifier, err := auth.NewVerifier()
	if err != nil {
		http.Error(w, "pkce generation failed", http.StatusInternalServerError)
		return
	}
	state, err := auth.MakeState(s.sessions.StateKey(), verifier, time.Now())
	if err != nil {
		http.Error(w, "state generation failed", http.StatusInternalServerError)
		return
	}

	sess.OAuth2State = state
	sess.CodeVerifier = verifier
	sess.Next = next
	if err := s.sessions.Write(w, sess); err != nil {
		s.log.Error().Err(err).Msg("write session")
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}

	dest := auth.AuthorizeURL(md, a.ClientID, callbackURL(r), a.Scope, state, auth.Challenge(verifier))
	s.log.Info().Str("redirect_uri", callbackURL(r)).Msg("oauth2 login redirect")
	http.Redirect(w, r, dest, http.StatusFound)
}

// handleOAuth2Callback finishes the flow. State is accepted from the
// session or, when the cookie was lost across the redirect, by
// independent verification against the signing key; the PKCE verifier
// falls back to the state payload the same way.
func (s *Server) handleOAuth2Callback(w http.ResponseWriter, r *http.Request) {
	a := s.store.Auth()
	if a.Mode != "oauth2" {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	sess := s.sessions.Read(r)

	var payload auth.StatePayload
	payloadOK := false
	if state != "" {
		if p, err := auth.VerifyState(s.sessions.StateKey(), state, time.Now()); err == nil {
			payload = p
			payloadOK = true
		}
	}
	stateValid := (sess.OAuth2State != "" && state == sess.OAuth2State) || payloadOK
	if code == "" || state == "" || !stateValid {
		s.log.Warn().
			Bool("code", code != "").
			Bool("state_valid", stateValid).
			Msg("oauth2 callback validation failed")
		http.Error(w, "invalid OAuth2 callback", http.StatusBadRequest)
		return
	}

	next := "/"
	if sess.Next != "" {
		next = auth.SafeNext(sess.Next)
	}

	md, err := s.prober.Probe(r.Context(), a.BaseURL)
	if err != nil {
		s.renderOAuth2Error(w, err.Error(), next)
		return
	}

	verifier := sess.CodeVerifier
	if verifier == "" && payloadOK {
		verifier = payload.V
		s.log.Info().Msg("recovered pkce verifier from state")
	}
	if verifier == "" {
		http.Error(w, "missing PKCE verifier, retry login", http.StatusBadRequest)
		return
	}

	tokens, err := auth.Exchange(r.Context(), md.TokenEndpoint, auth.ExchangeForm{
		Code:         code,
		RedirectURI:  callbackURL(r),
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		CodeVerifier: verifier,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("token exchange failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	sealed, err := s.sessions.SealTokens(tokens)
	if err != nil {
		s.log.Error().Err(err).Msg("seal tokens")
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}

	sess.OAuth2State = ""
	sess.CodeVerifier = ""
	sess.Next = ""
	sess.LoggedIn = true
	sess.User = "oauth2"
	sess.Tokens = sealed
	if err := s.sessions.Write(w, sess); err != nil {
		s.log.Error().Err(err).Msg("write session")
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}

	s.log.Info().Msg("oauth2 login complete")
	http.Redirect(w, r, next, http.StatusFound)
}

// handleOAuth2Test probes a candidate base URL so the settings page
// can verify a provider before saving it.
func (s *Server) handleOAuth2Test(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimSpace(r.URL.Query().Get("base_url"))
	if base == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "base_url required"})
		return
	}

	md, err := s.prober.Probe(r.Context(), base)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                     true,
		"issuer":                 md.Issuer,
		"authorization_endpoint": md.AuthorizationEndpoint,
		"token_endpoint":         md.TokenEndpoint,
	})
}
