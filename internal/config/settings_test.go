package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opensentry_config.json")
	s, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	return s, path
}

func TestLoadCreatesDefaults(t *testing.T) {
	s, path := testStore(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("settings file not created: %v", err)
	}
	assert.Equal(t, DefaultMotion(), s.Motion())
	assert.Equal(t, DefaultSnapshots(), s.Snapshots())
	assert.Equal(t, DefaultAuth(), s.Auth())
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{12}$`), s.DeviceID())
}

func TestDeviceIDStableAcrossLoads(t *testing.T) {
	s, path := testStore(t)
	id := s.DeviceID()

	again, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, id, again.DeviceID())
}

func TestUnknownKeysSurviveSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	seed := `{"device_id":"abcdef012345","face_detection":{"archive_unknown":true},"motion_detection":{"threshold":40}}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	s, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "abcdef012345", s.DeviceID())
	assert.Equal(t, 40, s.Motion().Threshold)
	// Keys absent from the stored section keep defaults.
	assert.Equal(t, 500, s.Motion().MinArea)

	m := s.Motion()
	m.Threshold = 30
	require.NoError(t, s.SetMotion(m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Contains(t, doc, "face_detection", "unknown top-level keys must round-trip")
	var id string
	require.NoError(t, json.Unmarshal(doc["device_id"], &id))
	assert.Equal(t, "abcdef012345", id)
}

func TestSettersPersist(t *testing.T) {
	s, path := testStore(t)

	st := s.Stream()
	st.Quality = 50
	st.MaxWidth = 640
	require.NoError(t, s.SetStream(st))

	again, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 50, again.Stream().Quality)
	assert.Equal(t, 640, again.Stream().MaxWidth)
}

func TestReset(t *testing.T) {
	s, _ := testStore(t)

	m := s.Motion()
	m.Threshold = 99
	require.NoError(t, s.SetMotion(m))
	require.NoError(t, s.Reset(SectionMotion))
	assert.Equal(t, DefaultMotion(), s.Motion())

	err := s.Reset("bogus")
	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestSetAuthFillsScope(t *testing.T) {
	s, _ := testStore(t)

	require.NoError(t, s.SetAuth(Auth{Mode: "oauth2", BaseURL: "https://idp.example", ClientID: "cid"}))
	assert.Equal(t, "openid profile email offline_access", s.Auth().Scope)
	assert.True(t, s.Auth().OAuth2Configured())

	require.NoError(t, s.SetAuth(Auth{Mode: "oauth2", BaseURL: "https://idp.example"}))
	assert.False(t, s.Auth().OAuth2Configured(), "missing client id must not be effective")
}

func TestReloadKeepsDeviceID(t *testing.T) {
	s, path := testStore(t)
	id := s.DeviceID()

	doc := `{"device_id":"ffffffffffff","motion_detection":{"threshold":77,"min_area":500,"kernel":15,"iterations":2,"pad":10,"algorithm":"diff","history":500,"var_threshold":16}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	require.NoError(t, s.Reload())
	assert.Equal(t, 77, s.Motion().Threshold)
	assert.Equal(t, id, s.DeviceID(), "device id is pinned for the process lifetime")
}

func TestWatcherPicksUpExternalEdit(t *testing.T) {
	if testing.Short() {
		t.Skip("watcher test sleeps past the self-save window")
	}
	s, path := testStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartWatcher(ctx)

	// Saves within the last second are treated as our own; get past that.
	time.Sleep(1100 * time.Millisecond)

	doc := `{"motion_detection":{"threshold":66,"min_area":500,"kernel":15,"iterations":2,"pad":10,"algorithm":"diff","history":500,"var_threshold":16}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	deadline := time.After(3 * time.Second)
	for s.Motion().Threshold != 66 {
		select {
		case <-deadline:
			t.Fatal("watcher did not reload settings in time")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
