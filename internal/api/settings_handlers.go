package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sbussiso/OpenSentry/internal/config"
	"github.com/Sbussiso/OpenSentry/internal/webui"
)

func (s *Server) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	err := webui.Render(w, "settings.html", webui.SettingsData{
		DeviceID:  s.store.DeviceID(),
		Motion:    s.store.Motion(),
		Snapshots: s.store.Snapshots(),
		Video:     s.store.Video(),
		Stream:    s.store.Stream(),
		Auth:      s.store.Auth(),
		Saved:     q.Get("saved"),
		Error:     q.Get("error"),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("render settings")
	}
}

// handleSettingsSubmit dispatches on the form action. Unparseable
// values are 400; out-of-range numbers clamp to their bounds the way
// the workers would clamp them anyway.
func (s *Server) handleSettingsSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	action := r.PostFormValue("action")
	var (
		saved string
		err   error
	)
	switch action {
	case "update_motion":
		saved, err = s.updateMotion(r)
	case "update_snapshots":
		saved, err = s.updateSnapshots(r)
	case "update_video":
		saved, err = s.updateVideo(r)
	case "update_stream":
		saved, err = s.updateStream(r)
	case "update_auth":
		saved, err = s.updateAuth(r)
	case "reset":
		section := r.PostFormValue("section")
		if err := s.store.Reset(section); err != nil {
			if errors.Is(err, config.ErrUnknownSection) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.log.Error().Err(err).Msg("reset settings")
			http.Error(w, "persist failed", http.StatusInternalServerError)
			return
		}
		saved = section
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	if err != nil {
		var bad badFieldError
		if errors.As(err, &bad) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Str("action", action).Msg("settings update failed")
		http.Error(w, "persist failed", http.StatusInternalServerError)
		return
	}

	s.log.Info().Str("action", action).Msg("settings updated")
	http.Redirect(w, r, "/settings?saved="+url.QueryEscape(saved), http.StatusFound)
}

// badFieldError marks client mistakes so the dispatcher can answer
// 400 instead of 500.
type badFieldError struct{ msg string }

func (e badFieldError) Error() string { return e.msg }

func badField(format string, args ...any) error {
	return badFieldError{msg: fmt.Sprintf(format, args...)}
}

// formInt reads an integer field, keeping the current value when the
// field is absent or blank.
func formInt(r *http.Request, key string, current int) (int, error) {
	raw := strings.TrimSpace(r.PostFormValue(key))
	if raw == "" {
		return current, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badField("%s must be an integer", key)
	}
	return v, nil
}

func formBool(r *http.Request, key string) bool {
	return r.PostForm.Has(key)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func atLeast(v, lo int) int {
	if v < lo {
		return lo
	}
	return v
}

func (s *Server) updateMotion(r *http.Request) (string, error) {
	m := s.store.Motion()

	var err error
	if m.Threshold, err = formInt(r, "threshold", m.Threshold); err != nil {
		return "", err
	}
	if m.MinArea, err = formInt(r, "min_area", m.MinArea); err != nil {
		return "", err
	}
	if m.Kernel, err = formInt(r, "kernel", m.Kernel); err != nil {
		return "", err
	}
	if m.Iterations, err = formInt(r, "iterations", m.Iterations); err != nil {
		return "", err
	}
	if m.Pad, err = formInt(r, "pad", m.Pad); err != nil {
		return "", err
	}
	if m.History, err = formInt(r, "history", m.History); err != nil {
		return "", err
	}
	if m.VarThreshold, err = formInt(r, "var_threshold", m.VarThreshold); err != nil {
		return "", err
	}
	if alg := strings.TrimSpace(r.PostFormValue("algorithm")); alg != "" {
		if alg != "diff" && alg != "adaptive" {
			return "", badField("algorithm must be diff or adaptive")
		}
		m.Algorithm = alg
	}

	m.Threshold = clamp(m.Threshold, 0, 255)
	m.MinArea = atLeast(m.MinArea, 0)
	m.Kernel = atLeast(m.Kernel, 1)
	m.Iterations = atLeast(m.Iterations, 0)
	m.Pad = atLeast(m.Pad, 0)
	m.History = atLeast(m.History, 1)
	m.VarThreshold = atLeast(m.VarThreshold, 1)

	return "motion", s.store.SetMotion(m)
}

func (s *Server) updateSnapshots(r *http.Request) (string, error) {
	sn := s.store.Snapshots()

	var err error
	if sn.IntervalSec, err = formInt(r, "interval_sec", sn.IntervalSec); err != nil {
		return "", err
	}
	if sn.RetentionCount, err = formInt(r, "retention_count", sn.RetentionCount); err != nil {
		return "", err
	}
	if sn.RetentionDays, err = formInt(r, "retention_days", sn.RetentionDays); err != nil {
		return "", err
	}
	if sn.MotionThreshold, err = formInt(r, "motion_threshold", sn.MotionThreshold); err != nil {
		return "", err
	}
	if sn.CooldownSec, err = formInt(r, "cooldown_sec", sn.CooldownSec); err != nil {
		return "", err
	}
	if sn.PruneEvery, err = formInt(r, "prune_every", sn.PruneEvery); err != nil {
		return "", err
	}
	sn.MotionOverlay = formBool(r, "motion_overlay")
	sn.MotionTrigger = formBool(r, "motion_trigger")

	sn.IntervalSec = clamp(sn.IntervalSec, 5, 60)
	sn.RetentionCount = atLeast(sn.RetentionCount, 1)
	sn.RetentionDays = atLeast(sn.RetentionDays, 1)
	sn.MotionThreshold = atLeast(sn.MotionThreshold, 1)
	sn.CooldownSec = atLeast(sn.CooldownSec, 0)
	sn.PruneEvery = atLeast(sn.PruneEvery, 1)

	return "snapshots", s.store.SetSnapshots(sn)
}

func (s *Server) updateVideo(r *http.Request) (string, error) {
	v := s.store.Video()

	var err error
	if v.Width, err = formInt(r, "width", v.Width); err != nil {
		return "", err
	}
	if v.Height, err = formInt(r, "height", v.Height); err != nil {
		return "", err
	}
	if v.FPS, err = formInt(r, "fps", v.FPS); err != nil {
		return "", err
	}
	v.MJPEG = formBool(r, "mjpeg")

	v.Width = atLeast(v.Width, 0)
	v.Height = atLeast(v.Height, 0)
	v.FPS = clamp(v.FPS, 0, 60)

	return "camera", s.store.SetVideo(v)
}

func (s *Server) updateStream(r *http.Request) (string, error) {
	st := s.store.Stream()

	var err error
	if st.MaxWidth, err = formInt(r, "max_width", st.MaxWidth); err != nil {
		return "", err
	}
	if st.Quality, err = formInt(r, "quality", st.Quality); err != nil {
		return "", err
	}
	if st.FPS, err = formInt(r, "fps", st.FPS); err != nil {
		return "", err
	}

	st.MaxWidth = atLeast(st.MaxWidth, 160)
	st.Quality = clamp(st.Quality, 1, 100)
	st.FPS = clamp(st.FPS, 1, 60)

	return "stream", s.store.SetStream(st)
}

// updateAuth validates the mode structurally; reachability is the Test
// button's job. Switching to local clears the OAuth2 client fields.
func (s *Server) updateAuth(r *http.Request) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(r.PostFormValue("auth_mode")))
	if mode != "local" && mode != "oauth2" {
		return "", badField("auth_mode must be local or oauth2")
	}

	a := config.Auth{Mode: mode}
	if mode == "oauth2" {
		a.BaseURL = strings.TrimSpace(r.PostFormValue("oauth2_base_url"))
		a.ClientID = strings.TrimSpace(r.PostFormValue("oauth2_client_id"))
		a.ClientSecret = strings.TrimSpace(r.PostFormValue("oauth2_client_secret"))
		a.Scope = strings.TrimSpace(r.PostFormValue("oauth2_scope"))
		if a.BaseURL == "" {
			return "", badField("oauth2_base_url required for oauth2 mode")
		}
		if a.ClientID == "" {
			return "", badField("oauth2_client_id required for oauth2 mode")
		}
	}

	return "auth", s.store.SetAuth(a)
}
