package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sbussiso/OpenSentry/internal/platform/paths"
)

// Section names accepted by Reset and used as top-level JSON keys.
const (
	SectionMotion    = "motion_detection"
	SectionSnapshots = "snapshots"
	SectionVideo     = "video"
	SectionStream    = "stream"
	SectionAuth      = "auth"
)

var ErrUnknownSection = errors.New("unknown settings section")

// Motion tunes the analyzers. Threshold/MinArea/Kernel/Iterations/Pad
// drive the frame-diff path, History/VarThreshold the background model.
type Motion struct {
	Threshold    int    `json:"threshold"`
	MinArea      int    `json:"min_area"`
	Kernel       int    `json:"kernel"`
	Iterations   int    `json:"iterations"`
	Pad          int    `json:"pad"`
	Algorithm    string `json:"algorithm"`
	History      int    `json:"history"`
	VarThreshold int    `json:"var_threshold"`
}

// Snapshots tunes the snapshot worker and pruning.
type Snapshots struct {
	IntervalSec     int  `json:"interval_sec"`
	RetentionCount  int  `json:"retention_count"`
	RetentionDays   int  `json:"retention_days"`
	MotionOverlay   bool `json:"motion_overlay"`
	MotionTrigger   bool `json:"motion_trigger"`
	MotionThreshold int  `json:"motion_threshold"`
	CooldownSec     int  `json:"cooldown_sec"`
	PruneEvery      int  `json:"prune_every"`
}

// Video holds capture preferences applied on the next device (re)open.
// Zero width/height/fps leave the driver defaults in place.
type Video struct {
	Width  int  `json:"width"`
	Height int  `json:"height"`
	FPS    int  `json:"fps"`
	MJPEG  bool `json:"mjpeg"`
}

// Stream tunes the MJPEG output side.
type Stream struct {
	MaxWidth int `json:"max_width"`
	Quality  int `json:"quality"`
	FPS      int `json:"fps"`
}

// Auth selects the authentication mode and OAuth2 client settings.
type Auth struct {
	Mode         string `json:"auth_mode"`
	BaseURL      string `json:"oauth2_base_url"`
	ClientID     string `json:"oauth2_client_id"`
	ClientSecret string `json:"oauth2_client_secret"`
	Scope        string `json:"oauth2_scope"`
}

// OAuth2Configured reports whether OAuth2 mode is effective: selected
// and minimally configured.
func (a Auth) OAuth2Configured() bool {
	return a.Mode == "oauth2" && a.BaseURL != "" && a.ClientID != ""
}

func DefaultMotion() Motion {
	return Motion{
		Threshold:    25,
		MinArea:      500,
		Kernel:       15,
		Iterations:   2,
		Pad:          10,
		Algorithm:    "diff",
		History:      500,
		VarThreshold: 16,
	}
}

func DefaultSnapshots() Snapshots {
	return Snapshots{
		IntervalSec:     10,
		RetentionCount:  100,
		RetentionDays:   7,
		MotionOverlay:   true,
		MotionTrigger:   false,
		MotionThreshold: 1500,
		CooldownSec:     10,
		PruneEvery:      10,
	}
}

func DefaultVideo() Video {
	return Video{MJPEG: true}
}

func DefaultStream() Stream {
	return Stream{MaxWidth: 960, Quality: 75, FPS: 15}
}

func DefaultAuth() Auth {
	return Auth{Mode: "local", Scope: "openid profile email offline_access"}
}

// Store is the runtime settings store. One mutex covers every section;
// readers copy the section they need, writers replace a section
// wholesale and persist before releasing the lock.
type Store struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger

	deviceID  string
	motion    Motion
	snapshots Snapshots
	video     Video
	stream    Stream
	auth      Auth
	lastSave  time.Time
}

// Load reads the settings file at path, creating it with defaults and a
// fresh device ID when absent. A corrupt file is replaced by defaults
// with a logged warning rather than failing startup.
func Load(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		path:      path,
		log:       log,
		motion:    DefaultMotion(),
		snapshots: DefaultSnapshots(),
		video:     DefaultVideo(),
		stream:    DefaultStream(),
		auth:      DefaultAuth(),
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := paths.EnsureDirs(dir); err != nil {
			return nil, err
		}
	}

	if err := s.loadFile(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("settings file unreadable, starting from defaults")
		}
	}

	if s.deviceID == "" {
		s.deviceID = newDeviceID()
		log.Info().Str("device_id", s.deviceID).Msg("generated device id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(); err != nil {
		return nil, fmt.Errorf("persist settings: %w", err)
	}
	return s, nil
}

// newDeviceID derives a short stable identifier: 12 lowercase hex chars
// of a fresh UUID.
func newDeviceID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:12]
}

func (s *Store) loadFile() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	if raw, ok := doc["device_id"]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			s.deviceID = id
		}
	}

	// Sections unmarshal onto their current values, so keys absent from
	// the file keep defaults.
	loadSection(doc, SectionMotion, &s.motion, s.log)
	loadSection(doc, SectionSnapshots, &s.snapshots, s.log)
	loadSection(doc, SectionVideo, &s.video, s.log)
	loadSection(doc, SectionStream, &s.stream, s.log)
	loadSection(doc, SectionAuth, &s.auth, s.log)
	return nil
}

func loadSection[T any](doc map[string]json.RawMessage, key string, dst *T, log zerolog.Logger) {
	raw, ok := doc[key]
	if !ok {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Warn().Err(err).Str("section", key).Msg("ignoring malformed settings section")
	}
}

// saveLocked persists the store. It re-reads the file first so unknown
// top-level keys written by other tools survive; known sections are
// replaced wholesale and device_id is always carried forward.
func (s *Store) saveLocked() error {
	doc := map[string]json.RawMessage{}
	if data, err := os.ReadFile(s.path); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			doc = map[string]json.RawMessage{}
		}
	}

	set := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		doc[key] = raw
		return nil
	}
	if err := set("device_id", s.deviceID); err != nil {
		return err
	}
	if err := set(SectionMotion, s.motion); err != nil {
		return err
	}
	if err := set(SectionSnapshots, s.snapshots); err != nil {
		return err
	}
	if err := set(SectionVideo, s.video); err != nil {
		return err
	}
	if err := set(SectionStream, s.stream); err != nil {
		return err
	}
	if err := set(SectionAuth, s.auth); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return err
	}
	s.lastSave = time.Now()
	return nil
}

func (s *Store) sinceSave() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSave)
}

// Reload re-reads the file, refreshing every section. The device ID is
// pinned for the process lifetime; external edits to it are ignored.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.deviceID
	if err := s.loadFile(); err != nil {
		return err
	}
	s.deviceID = id
	return nil
}

func (s *Store) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

func (s *Store) Motion() Motion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motion
}

func (s *Store) Snapshots() Snapshots {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots
}

func (s *Store) Video() Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video
}

func (s *Store) Stream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

func (s *Store) Auth() Auth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *Store) SetMotion(m Motion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motion = m
	return s.saveLocked()
}

func (s *Store) SetSnapshots(v Snapshots) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = v
	return s.saveLocked()
}

func (s *Store) SetVideo(v Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = v
	return s.saveLocked()
}

func (s *Store) SetStream(v Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = v
	return s.saveLocked()
}

func (s *Store) SetAuth(a Auth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Scope == "" {
		a.Scope = DefaultAuth().Scope
	}
	s.auth = a
	return s.saveLocked()
}

// Reset restores one section to its defaults and persists.
func (s *Store) Reset(section string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch section {
	case SectionMotion:
		s.motion = DefaultMotion()
	case SectionSnapshots:
		s.snapshots = DefaultSnapshots()
	case SectionVideo:
		s.video = DefaultVideo()
	case SectionStream:
		s.stream = DefaultStream()
	case SectionAuth:
		s.auth = DefaultAuth()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	return s.saveLocked()
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}
