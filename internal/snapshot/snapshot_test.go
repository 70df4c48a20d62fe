package snapshot

import (
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Sbussiso/OpenSentry/internal/camera"
	"github.com/Sbussiso/OpenSentry/internal/config"
	"github.com/Sbussiso/OpenSentry/internal/events"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "snapshots"), zerolog.Nop(), nil)
	require.NoError(t, err)
	return s
}

func testConfig(t *testing.T) *config.Store {
	t.Helper()
	st, err := config.Load(filepath.Join(t.TempDir(), "config.json"), zerolog.Nop())
	require.NoError(t, err)
	return st
}

var jpegStub = []byte{0xFF, 0xD8, 0xFF, 0xD9}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"2025-06-01_12-00-00_snapshot.jpg", true},
		{"2025-06-01_12-00-00_motion_1800px.jpg", true},
		{"..secret.jpg", false},
		{"../../etc/passwd", false},
		{"a/b.jpg", false},
		{`a\b.jpg`, false},
		{"", false},
	}
	for _, tc := range cases {
		err := ValidateName(tc.name)
		if tc.valid {
			require.NoError(t, err, tc.name)
		} else {
			require.ErrorIs(t, err, ErrInvalidName, tc.name)
		}
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Write("2025-06-01_12-00-00_snapshot.jpg", jpegStub))

	data, err := s.Read("2025-06-01_12-00-00_snapshot.jpg")
	require.NoError(t, err)
	require.Equal(t, jpegStub, data)

	require.NoError(t, s.Delete("2025-06-01_12-00-00_snapshot.jpg"))
	_, err = s.Read("2025-06-01_12-00-00_snapshot.jpg")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete("2025-06-01_12-00-00_snapshot.jpg"), ErrNotFound)
}

func TestStoreRejectsTraversal(t *testing.T) {
	s := testStore(t)

	_, err := s.Read("../escape.jpg")
	require.ErrorIs(t, err, ErrInvalidName)
	require.ErrorIs(t, s.Delete(`..\escape.jpg`), ErrInvalidName)
	require.ErrorIs(t, s.Write("a/../../b.jpg", jpegStub), ErrInvalidName)
}

func TestListParsesMotionMetadata(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Write("2025-06-01_12-00-00_snapshot.jpg", jpegStub))
	require.NoError(t, s.Write("2025-06-01_12-00-10_motion_1800px.jpg", jpegStub))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), "2025-06-01_12-00-00_snapshot.jpg"), old, old))

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2, "non-jpg files are ignored")

	require.Equal(t, "2025-06-01_12-00-10_motion_1800px.jpg", entries[0].Filename, "newest first")
	require.True(t, entries[0].MotionDetected)
	require.Equal(t, 1800, entries[0].MotionAreaPx)
	require.Equal(t, int64(len(jpegStub)), entries[0].Size)

	require.False(t, entries[1].MotionDetected)
	require.Zero(t, entries[1].MotionAreaPx)
	require.Equal(t, old.Unix(), entries[1].MTime)
}

func writeAged(t *testing.T, s *Store, name string, age time.Duration) {
	t.Helper()
	require.NoError(t, s.Write(name, jpegStub))
	mt := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), name), mt, mt))
}

func TestPruneCountBound(t *testing.T) {
	s := testStore(t)
	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"} {
		writeAged(t, s, name, time.Duration(i)*time.Minute)
	}

	removed := s.Prune(3, 0)
	require.Equal(t, 2, removed)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "a.jpg", entries[0].Filename, "newest files survive")
}

func TestPruneAgeBound(t *testing.T) {
	s := testStore(t)
	writeAged(t, s, "fresh.jpg", time.Hour)
	writeAged(t, s, "stale.jpg", 10*24*time.Hour)

	removed := s.Prune(100, 7)
	require.Equal(t, 1, removed)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "fresh.jpg", entries[0].Filename)
}

func TestPruneBoundsApplyIndependently(t *testing.T) {
	s := testStore(t)
	writeAged(t, s, "new1.jpg", time.Minute)
	writeAged(t, s, "new2.jpg", 2*time.Minute)
	writeAged(t, s, "old-in-count.jpg", 8*24*time.Hour)
	writeAged(t, s, "beyond-count.jpg", 9*24*time.Hour)

	s.Prune(3, 7)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Contains(t, []string{"new1.jpg", "new2.jpg"}, e.Filename)
	}
}

func TestLatestSlot(t *testing.T) {
	s := testStore(t)
	require.Nil(t, s.Latest())
	s.SetLatest(jpegStub)
	require.Equal(t, jpegStub, s.Latest())
}

type fakeSource struct {
	mu  sync.Mutex
	img *image.RGBA
	at  time.Time
}

func (f *fakeSource) Start() error  { return nil }
func (f *fakeSource) Running() bool { return true }
func (f *fakeSource) Stop()         {}

func (f *fakeSource) Frame() *camera.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.img == nil {
		return nil
	}
	fr := (&camera.Frame{Image: f.img, At: f.at}).Clone()
	f.at = f.at.Add(time.Second)
	return fr
}

func (f *fakeSource) set(img *image.RGBA) {
	f.mu.Lock()
	f.img = img
	f.mu.Unlock()
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func withBlock(base *image.RGBA, r image.Rectangle) *image.RGBA {
	img := image.NewRGBA(base.Bounds())
	copy(img.Pix, base.Pix)
	draw.Draw(img, r, image.NewUniform(color.RGBA{255, 255, 255, 255}), image.Point{}, draw.Src)
	return img
}

func TestWorkerCaptureSavesTimestampedFile(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t)
	src := &fakeSource{img: solidImage(320, 240, color.RGBA{10, 10, 10, 255}), at: time.Now()}
	w := NewWorker(src, cfg, store, zerolog.Nop(), nil)

	w.capture(cfg.Snapshots(), 1)

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}_snapshot\.jpg$`), entries[0].Filename)
	require.NotNil(t, store.Latest())
}

func TestWorkerCaptureSkipsNilFrame(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t)
	w := NewWorker(&fakeSource{}, cfg, store, zerolog.Nop(), nil)

	w.capture(cfg.Snapshots(), 1)

	entries, err := store.List()
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Nil(t, store.Latest())
}

func TestWorkerCaptureTagsMotion(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t)
	base := solidImage(640, 480, color.RGBA{0, 0, 0, 255})
	src := &fakeSource{img: base, at: time.Now()}
	w := NewWorker(src, cfg, store, zerolog.Nop(), nil)

	w.capture(cfg.Snapshots(), 1)
	src.set(withBlock(base, image.Rect(100, 100, 220, 220)))
	w.capture(cfg.Snapshots(), 2)

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[0].MotionDetected, "second capture differs from first saved frame")
	require.Greater(t, entries[0].MotionAreaPx, 0)
	require.False(t, entries[1].MotionDetected)
}

func TestWorkerPruneEveryNIterations(t *testing.T) {
	cfg := testConfig(t)
	sn := cfg.Snapshots()
	sn.RetentionCount = 1
	sn.PruneEvery = 2
	require.NoError(t, cfg.SetSnapshots(sn))

	store := testStore(t)
	src := &fakeSource{img: solidImage(320, 240, color.RGBA{10, 10, 10, 255}), at: time.Now()}
	w := NewWorker(src, cfg, store, zerolog.Nop(), nil)

	w.capture(sn, 1)
	w.capture(sn, 2)

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1, "prune at iteration 2 keeps only the newest")
}

func TestHandleEventSavesAboveThreshold(t *testing.T) {
	cfg := testConfig(t)
	sn := cfg.Snapshots()
	sn.MotionTrigger = true
	sn.CooldownSec = 10
	require.NoError(t, cfg.SetSnapshots(sn))

	store := testStore(t)
	src := &fakeSource{img: solidImage(320, 240, color.RGBA{10, 10, 10, 255}), at: time.Now()}
	w := NewWorker(src, cfg, store, zerolog.Nop(), nil)

	at := time.Now()
	w.HandleEvent(events.MotionEvent{DeviceID: "dev", At: at, State: events.StateStarted, AreaPx: 900})
	entries, err := store.List()
	require.NoError(t, err)
	require.Empty(t, entries, "below motion threshold")

	w.HandleEvent(events.MotionEvent{
		DeviceID: "dev",
		At:       at,
		State:    events.StateStarted,
		AreaPx:   2000,
		Boxes:    [][4]int{{50, 50, 100, 100}},
	})
	entries, err = store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].MotionDetected)
	require.Equal(t, 2000, entries[0].MotionAreaPx)

	// Cooldown holds the next save back.
	w.HandleEvent(events.MotionEvent{DeviceID: "dev", At: at.Add(2 * time.Second), State: events.StateActive, AreaPx: 2500})
	entries, err = store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestHandleEventDedupsBursts(t *testing.T) {
	cfg := testConfig(t)
	sn := cfg.Snapshots()
	sn.MotionTrigger = true
	sn.CooldownSec = 0
	require.NoError(t, cfg.SetSnapshots(sn))

	store := testStore(t)
	src := &fakeSource{img: solidImage(320, 240, color.RGBA{10, 10, 10, 255}), at: time.Now()}
	w := NewWorker(src, cfg, store, zerolog.Nop(), nil)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.HandleEvent(events.MotionEvent{DeviceID: "dev", At: at, State: events.StateStarted, AreaPx: 2000})
	w.HandleEvent(events.MotionEvent{DeviceID: "dev", At: at.Add(300 * time.Millisecond), State: events.StateActive, AreaPx: 2200})
	w.HandleEvent(events.MotionEvent{DeviceID: "dev", At: at.Add(2 * time.Second), State: events.StateActive, AreaPx: 2400})

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2, "same-second burst deduplicated")
}

func TestHandleEventRespectsTriggerFlag(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t)
	src := &fakeSource{img: solidImage(320, 240, color.RGBA{10, 10, 10, 255}), at: time.Now()}
	w := NewWorker(src, cfg, store, zerolog.Nop(), nil)

	// MotionTrigger defaults to off.
	w.HandleEvent(events.MotionEvent{DeviceID: "dev", At: time.Now(), State: events.StateStarted, AreaPx: 5000})

	entries, err := store.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}
