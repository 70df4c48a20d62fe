package stream

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Sbussiso/OpenSentry/internal/camera"
	"github.com/Sbussiso/OpenSentry/internal/config"
	"github.com/Sbussiso/OpenSentry/internal/encode"
	"github.com/Sbussiso/OpenSentry/internal/events"
)

func testStore(t *testing.T) *config.Store {
	t.Helper()
	st, err := config.Load(filepath.Join(t.TempDir(), "config.json"), zerolog.Nop())
	require.NoError(t, err)
	return st
}

func countingProduce() (func() []byte, *atomic.Uint64) {
	var n atomic.Uint64
	return func() []byte {
		return []byte(fmt.Sprintf("frame-%d", n.Add(1)))
	}, &n
}

func frameNumber(t *testing.T, frame []byte) int {
	t.Helper()
	s := strings.TrimPrefix(string(frame), "frame-")
	v, err := strconv.Atoi(s)
	require.NoError(t, err, "unexpected frame payload %q", frame)
	return v
}

func TestBroadcasterDeliversFramesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	produce, _ := countingProduce()
	b := NewBroadcaster("test", produce, func() int { return 60 }, zerolog.Nop(), nil)
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	last := 0
	for i := 0; i < 5; i++ {
		frame, err := sub.Next(ctx)
		require.NoError(t, err)
		n := frameNumber(t, frame)
		require.Greater(t, n, last, "frames must advance monotonically")
		last = n
	}
}

func TestBroadcasterSkipsToNewest(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	produce, _ := countingProduce()
	b := NewBroadcaster("test", produce, func() int { return 60 }, zerolog.Nop(), nil)
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := sub.Next(ctx)
	require.NoError(t, err)

	// A slow subscriber misses frames but never sees stale ones.
	time.Sleep(200 * time.Millisecond)
	second, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Greater(t, frameNumber(t, second), frameNumber(t, first))
}

func TestBroadcasterNilProduceKeepsSequence(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBroadcaster("test", func() []byte { return nil }, func() int { return 60 }, zerolog.Nop(), nil)
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := sub.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Nil(t, b.Latest())
}

func TestBroadcasterStopUnblocksSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBroadcaster("test", func() []byte { return nil }, func() int { return 10 }, zerolog.Nop(), nil)
	b.Start()

	sub := b.Subscribe()
	defer sub.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	b.Stop()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber not released by Stop")
	}
}

func TestBroadcasterStartStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	produce, _ := countingProduce()
	b := NewBroadcaster("test", produce, func() int { return 30 }, zerolog.Nop(), nil)

	b.Start()
	b.Start()
	require.True(t, b.Running())

	b.Stop()
	b.Stop()
	require.False(t, b.Running())

	// Restart works after a full stop.
	b.Start()
	require.True(t, b.Running())
	b.Stop()
}

func TestWritePartLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePart(&buf, []byte{0xFF, 0xD8, 0xFF, 0xD9}))

	want := "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 4\r\n\r\n\xff\xd8\xff\xd9\r\n"
	require.Equal(t, want, buf.String())
}

type fakeSource struct {
	mu     sync.Mutex
	frames []*camera.Frame
	idx    int
}

func (f *fakeSource) Start() error { return nil }
func (f *fakeSource) Running() bool {
	return true
}
func (f *fakeSource) Stop() {}

func (f *fakeSource) Frame() *camera.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil
	}
	fr := f.frames[f.idx]
	if f.idx < len(f.frames)-1 {
		f.idx++
	}
	return fr.Clone()
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

func TestRawProducerEncodesAndScales(t *testing.T) {
	base := solidImage(1920, 1080, color.RGBA{40, 40, 40, 255})
	src := &fakeSource{frames: []*camera.Frame{{Image: base, At: time.Now()}}}
	p := NewRawProducer(src, testStore(t), nil)

	data := p.Produce()
	require.NotNil(t, data)

	img, err := encode.Decode(data)
	require.NoError(t, err)
	require.Equal(t, 960, img.Bounds().Dx(), "default max width applies")
	require.Equal(t, 540, img.Bounds().Dy())
}

func TestRawProducerNoFrame(t *testing.T) {
	p := NewRawProducer(&fakeSource{}, testStore(t), nil)
	require.Nil(t, p.Produce())
}

func TestMotionProducerEmitsTransitions(t *testing.T) {
	base := solidImage(640, 480, color.RGBA{0, 0, 0, 255})
	moved1 := withBlock(base, image.Rect(100, 100, 200, 200))
	moved2 := withBlock(base, image.Rect(140, 100, 240, 200))

	t0 := time.Now()
	src := &fakeSource{frames: []*camera.Frame{
		{Image: base, At: t0},
		{Image: moved1, At: t0.Add(100 * time.Millisecond)},
		{Image: moved2, At: t0.Add(1500 * time.Millisecond)},
		{Image: moved2, At: t0.Add(1600 * time.Millisecond)},
	}}

	st := testStore(t)
	bus := events.NewBus(zerolog.Nop())
	ch := bus.Subscribe(8)
	defer bus.Unsubscribe(ch)

	p := NewMotionProducer(src, st, bus, zerolog.Nop(), nil)
	for i := 0; i < 4; i++ {
		require.NotNil(t, p.Produce(), "frame %d", i)
	}

	var states []string
	var started events.MotionEvent
	for len(ch) > 0 {
		ev := <-ch
		states = append(states, ev.State)
		if ev.State == events.StateStarted {
			started = ev
		}
	}

	require.Equal(t, []string{events.StateStarted, events.StateActive, events.StateEnded}, states)
	require.Equal(t, st.DeviceID(), started.DeviceID)
	require.Greater(t, started.AreaPx, 0)
	require.NotEmpty(t, started.Boxes)
	require.False(t, p.Active())
}

func TestMotionProducerLatestHoldsAnnotatedFrame(t *testing.T) {
	base := solidImage(640, 480, color.RGBA{0, 0, 0, 255})
	src := &fakeSource{frames: []*camera.Frame{{Image: base, At: time.Now()}}}

	p := NewMotionProducer(src, testStore(t), nil, zerolog.Nop(), nil)
	require.Nil(t, p.Latest())

	data := p.Produce()
	require.NotNil(t, data)
	require.Equal(t, data, p.Latest())

	_, err := encode.Decode(data)
	require.NoError(t, err)
}

func TestMotionProducerSwapsAnalyzerOnAlgorithmChange(t *testing.T) {
	base := solidImage(320, 240, color.RGBA{0, 0, 0, 255})
	src := &fakeSource{frames: []*camera.Frame{{Image: base, At: time.Now()}}}

	st := testStore(t)
	p := NewMotionProducer(src, st, nil, zerolog.Nop(), nil)

	require.NotNil(t, p.Produce())
	require.Equal(t, "diff", p.algorithm)

	m := st.Motion()
	m.Algorithm = "adaptive"
	require.NoError(t, st.SetMotion(m))

	require.NotNil(t, p.Produce())
	require.Equal(t, "adaptive", p.algorithm)
}
