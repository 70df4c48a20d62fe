package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Sbussiso/OpenSentry/internal/auth"
	"github.com/Sbussiso/OpenSentry/internal/webui"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// Empty on purpose so browsers stop logging 404s.
func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type statusRoutes struct {
	Raw       bool `json:"raw"`
	Motion    bool `json:"motion"`
	Snapshots bool `json:"snapshots"`
}

type statusCamera struct {
	Running  bool `json:"running"`
	HasFrame bool `json:"has_frame"`
}

type deviceStatus struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Version  string       `json:"version"`
	Port     int          `json:"port"`
	Caps     []string     `json:"caps"`
	Routes   statusRoutes `json:"routes"`
	Camera   statusCamera `json:"camera"`
	AuthMode string       `json:"auth_mode"`
}

// handleStatus serves fleet discovery. With an API token configured
// the bearer check runs first: 401 missing or malformed, 403 wrong.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	switch auth.CheckBearer(r, s.cfg.APIToken) {
	case http.StatusUnauthorized:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	case http.StatusForbidden:
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	hasFrame := s.cam.Frame() != nil
	running := s.cam.Running()
	streamOK := running && hasFrame

	mode := "token"
	if s.cfg.APIToken == "" {
		mode = s.store.Auth().Mode
	}

	writeJSON(w, http.StatusOK, deviceStatus{
		ID:      s.store.DeviceID(),
		Name:    s.cfg.DeviceName,
		Version: s.cfg.Version,
		Port:    s.cfg.Port,
		Caps:    []string{"stream", "motion", "snapshots"},
		Routes: statusRoutes{
			Raw:       streamOK,
			Motion:    streamOK,
			Snapshots: true,
		},
		Camera:   statusCamera{Running: running, HasFrame: hasFrame},
		AuthMode: mode,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Read(r)
	err := webui.Render(w, "index.html", webui.IndexData{
		DeviceName: s.cfg.DeviceName,
		Version:    s.cfg.Version,
		User:       sess.User,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("render index")
	}
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	err := webui.Render(w, "gallery.html", webui.GalleryData{DeviceName: s.cfg.DeviceName})
	if err != nil {
		s.log.Error().Err(err).Msg("render gallery")
	}
}

// handleLogsDownload serves the tail of the in-memory log ring as an
// attachment. n defaults to 500 and caps at the ring size.
func (s *Server) handleLogsDownload(w http.ResponseWriter, r *http.Request) {
	if s.ring == nil {
		http.Error(w, "log buffer disabled", http.StatusNotFound)
		return
	}

	n := 500
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		n = v
	}

	lines := s.ring.Tail(n)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="opensentry.log"`)
	w.Write([]byte(strings.Join(lines, "\n")))
	if len(lines) > 0 {
		w.Write([]byte("\n"))
	}
}
