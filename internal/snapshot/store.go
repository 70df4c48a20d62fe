// Package snapshot persists periodic and motion-triggered JPEG stills
// and enforces the retention policy over the snapshot directory.
package snapshot

import (
	"errors"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/Sbussiso/OpenSentry/internal/metrics"
	"github.com/Sbussiso/OpenSentry/internal/platform/paths"
)

var (
	ErrInvalidName = errors.New("snapshot: invalid filename")
	ErrNotFound    = errors.New("snapshot: not found")
)

// motionName extracts the analyzed area from motion snapshot names,
// e.g. 2025-06-01_12-00-00_motion_1800px.jpg.
var motionName = regexp.MustCompile(`_motion_(\d+)px\.jpg$`)

// Entry describes one on-disk snapshot. Motion fields are derived
// from the filename; there is no separate index.
type Entry struct {
	Filename       string `json:"filename"`
	MTime          int64  `json:"mtime"`
	Size           int64  `json:"size"`
	MotionDetected bool   `json:"motion_detected"`
	MotionAreaPx   int    `json:"motion_area_px"`
}

// Store owns the snapshot directory plus the in-memory latest-frame
// slot served by the gallery API.
type Store struct {
	dir string
	log zerolog.Logger
	met *metrics.Metrics

	mu     sync.Mutex
	latest []byte
}

func NewStore(dir string, log zerolog.Logger, met *metrics.Metrics) (*Store, error) {
	if err := paths.EnsureDirs(dir); err != nil {
		return nil, err
	}
	return &Store{dir: dir, log: log, met: met}, nil
}

func (s *Store) Dir() string { return s.dir }

// ValidateName rejects traversal attempts before any filesystem
// access happens.
func ValidateName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return ErrInvalidName
	}
	return nil
}

// List returns all snapshots newest first.
func (s *Store) List() ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jpg") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		e := Entry{
			Filename: d.Name(),
			MTime:    info.ModTime().Unix(),
			Size:     info.Size(),
		}
		if m := motionName.FindStringSubmatch(d.Name()); m != nil {
			e.MotionDetected = true
			e.MotionAreaPx, _ = strconv.Atoi(m[1])
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MTime != entries[j].MTime {
			return entries[i].MTime > entries[j].MTime
		}
		return entries[i].Filename > entries[j].Filename
	})
	return entries, nil
}

func (s *Store) Read(name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	path, err := paths.SafeJoin(s.dir, name)
	if err != nil {
		return nil, ErrInvalidName
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	path, err := paths.SafeJoin(s.dir, name)
	if err != nil {
		return ErrInvalidName
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Write stores a snapshot atomically under the given name.
func (s *Store) Write(name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	path, err := paths.SafeJoin(s.dir, name)
	if err != nil {
		return ErrInvalidName
	}
	return renameio.WriteFile(path, data, 0o644)
}

// Prune applies both retention bounds independently: only the newest
// retentionCount files survive, and of those none older than
// retentionDays. Individual remove failures are logged and the pass
// continues.
func (s *Store) Prune(retentionCount, retentionDays int) int {
	entries, err := s.List()
	if err != nil {
		s.log.Warn().Err(err).Msg("snapshot prune: list failed")
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	removed := 0
	for i, e := range entries {
		overCount := retentionCount >= 0 && i >= retentionCount
		tooOld := retentionDays > 0 && e.MTime < cutoff
		if !overCount && !tooOld {
			continue
		}
		if err := s.Delete(e.Filename); err != nil {
			s.log.Warn().Err(err).Str("file", e.Filename).Msg("snapshot prune: remove failed")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.met.SnapshotsPruned(removed)
		s.log.Debug().Int("removed", removed).Msg("snapshots pruned")
	}
	return removed
}

// SetLatest replaces the in-memory latest snapshot.
func (s *Store) SetLatest(data []byte) {
	s.mu.Lock()
	s.latest = data
	s.mu.Unlock()
}

// Latest returns the most recent snapshot, or nil before the first
// save of this process.
func (s *Store) Latest() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}
