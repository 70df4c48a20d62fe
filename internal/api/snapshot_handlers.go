package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Sbussiso/OpenSentry/internal/snapshot"
)

type snapshotList struct {
	Count     int              `json:"count"`
	Snapshots []snapshot.Entry `json:"snapshots"`
}

// handleSnapshotNow downloads the current motion-annotated frame.
func (s *Server) handleSnapshotNow(w http.ResponseWriter, r *http.Request) {
	data := s.motionW.Latest()
	if data == nil {
		data = s.raw.Latest()
	}
	if data == nil {
		http.Error(w, "no frame available", http.StatusServiceUnavailable)
		return
	}

	name := time.Now().Format("2006-01-02_15-04-05") + "_snapshot.jpg"
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Write(data)
}

// handleSnapshotLatest serves the most recent saved snapshot bytes.
func (s *Server) handleSnapshotLatest(w http.ResponseWriter, r *http.Request) {
	data := s.snaps.Latest()
	if data == nil {
		http.Error(w, "no snapshot yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	w.Write(data)
}

func (s *Server) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.snaps.List()
	if err != nil {
		s.log.Error().Err(err).Msg("list snapshots")
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snapshotList{Count: len(entries), Snapshots: entries})
}

func (s *Server) handleSnapshotImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := s.snaps.Read(name)
	if err != nil {
		snapshotError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

func (s *Server) handleSnapshotDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.snaps.Delete(name); err != nil {
		snapshotError(w, err)
		return
	}
	s.log.Info().Str("filename", name).Msg("snapshot deleted")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// snapshotError maps store errors: bad names are rejected before any
// filesystem access, missing files are 404.
func snapshotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, snapshot.ErrInvalidName):
		http.Error(w, "invalid filename", http.StatusBadRequest)
	case errors.Is(err, snapshot.ErrNotFound):
		http.Error(w, "snapshot not found", http.StatusNotFound)
	default:
		http.Error(w, "snapshot error", http.StatusInternalServerError)
	}
}
