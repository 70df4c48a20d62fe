package camera

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sbussiso/OpenSentry/internal/encode"
	"github.com/Sbussiso/OpenSentry/internal/metrics"
)

const (
	// maxReadFailures is how many consecutive bad reads the loop
	// tolerates before closing and reopening the device.
	maxReadFailures = 30

	// retryDelay spaces out acquisition attempts when no device opens.
	retryDelay = 200 * time.Millisecond

	// warmUpReads drains initial frames after open; early frames from
	// v4l2 devices are often dark or torn while exposure settles.
	warmUpReads = 6
)

// Options configures an FFmpeg source. Device wins over Index. Prefs,
// when set, is consulted on every (re)open so runtime settings changes
// apply without a restart.
type Options struct {
	Device string
	Index  int
	Buffer int
	Prefs  func() Prefs
}

// Opener launches the capture backend for one device candidate and
// returns its MJPEG byte stream. Split out so tests can substitute the
// subprocess.
type Opener interface {
	Open(device string, prefs Prefs) (io.ReadCloser, error)
}

// FFmpeg captures from a V4L2 device via an ffmpeg child process whose
// stdout carries an MJPEG stream. The loop owns device acquisition:
// it walks a candidate ladder, warms the device up, and reopens after
// sustained read failures. It never exits on I/O errors.
type FFmpeg struct {
	opts   Options
	opener Opener
	log    zerolog.Logger
	met    *metrics.Metrics

	mu      sync.Mutex
	latest  *Frame
	cur     io.Closer
	quit    chan struct{}
	started bool

	capturing atomic.Bool
	wg        sync.WaitGroup
}

// NewFFmpeg builds the source. met may be nil.
func NewFFmpeg(opts Options, log zerolog.Logger, met *metrics.Metrics) *FFmpeg {
	f := &FFmpeg{
		opts: opts,
		log:  log,
		met:  met,
	}
	f.opener = &ffmpegOpener{buffer: opts.Buffer}
	return f
}

// Start launches the capture loop. Calling it on a running source is a
// no-op.
func (f *FFmpeg) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	f.started = true
	f.quit = make(chan struct{})
	f.wg.Add(1)
	go f.run(f.quit)
	return nil
}

// Stop terminates the loop and releases the device. Idempotent.
func (f *FFmpeg) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	close(f.quit)
	if f.cur != nil {
		f.cur.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
}

// Frame returns a deep copy of the newest frame, or nil before first
// capture.
func (f *FFmpeg) Frame() *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest.Clone()
}

// Running reports whether a device is currently open and producing.
func (f *FFmpeg) Running() bool {
	return f.capturing.Load()
}

func (f *FFmpeg) prefs() Prefs {
	if f.opts.Prefs != nil {
		return f.opts.Prefs()
	}
	return Prefs{MJPEG: true}
}

func (f *FFmpeg) run(quit chan struct{}) {
	defer f.wg.Done()
	opened := 0
	for {
		select {
		case <-quit:
			return
		default:
		}

		sc, closer, dev, err := f.openAny(quit)
		if err != nil {
			select {
			case <-quit:
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		opened++
		if opened > 1 {
			f.met.CaptureReopened()
		}
		f.log.Info().Str("device", dev).Msg("camera opened")

		f.capturing.Store(true)
		f.consume(sc, quit)
		f.capturing.Store(false)

		closer.Close()
		f.setCloser(nil)
	}
}

// openAny walks the candidate ladder: explicit device, requested index,
// every discovered device, then indices 0-5. Each candidate gets two
// attempts, preferred input format first.
func (f *FFmpeg) openAny(quit chan struct{}) (*frameScanner, io.Closer, string, error) {
	prefs := f.prefs()
	attempts := []bool{false}
	if prefs.MJPEG {
		attempts = []bool{true, false}
	}

	for _, dev := range f.candidates() {
		for _, mjpeg := range attempts {
			select {
			case <-quit:
				return nil, nil, "", ErrNoCamera
			default:
			}

			p := prefs
			p.MJPEG = mjpeg
			rc, err := f.opener.Open(dev, p)
			if err != nil {
				continue
			}
			f.setCloser(rc)

			sc := newFrameScanner(rc)
			if frame, ok := f.warmUp(sc); ok {
				f.store(frame)
				return sc, rc, dev, nil
			}
			rc.Close()
			f.setCloser(nil)
		}
	}
	f.log.Warn().Msg("no camera produced frames, retrying")
	return nil, nil, "", ErrNoCamera
}

func (f *FFmpeg) candidates() []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	add(f.opts.Device)
	if f.opts.Index >= 0 {
		add(devicePath(f.opts.Index))
	}
	for _, p := range Discover() {
		add(p)
	}
	for i := 0; i <= 5; i++ {
		add(devicePath(i))
	}
	return out
}

// warmUp reads a handful of frames and returns the first that decodes.
func (f *FFmpeg) warmUp(sc *frameScanner) (*Frame, bool) {
	for i := 0; i < warmUpReads; i++ {
		data, err := sc.Next()
		if err != nil {
			return nil, false
		}
		if img, err := encode.Decode(data); err == nil {
			return &Frame{Image: toRGBA(img), At: time.Now()}, true
		}
	}
	return nil, false
}

func (f *FFmpeg) consume(sc *frameScanner, quit chan struct{}) {
	failures := 0
	for {
		select {
		case <-quit:
			return
		default:
		}

		data, err := sc.Next()
		if err != nil {
			// Stream gone (process exit, pipe closed). Reopen.
			select {
			case <-quit:
			default:
				f.log.Warn().Err(err).Msg("capture stream ended")
			}
			return
		}

		img, err := encode.Decode(data)
		if err != nil {
			failures++
			if failures >= maxReadFailures {
				f.log.Warn().Int("failures", failures).Msg("consecutive read failures, reopening device")
				return
			}
			continue
		}

		failures = 0
		f.store(&Frame{Image: toRGBA(img), At: time.Now()})
		f.met.FrameCaptured()
	}
}

func (f *FFmpeg) store(frame *Frame) {
	f.mu.Lock()
	f.latest = frame
	f.mu.Unlock()
}

func (f *FFmpeg) setCloser(c io.Closer) {
	f.mu.Lock()
	f.cur = c
	f.mu.Unlock()
}

func devicePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}

// ffmpegOpener starts the real subprocess.
type ffmpegOpener struct {
	buffer int
}

func (o *ffmpegOpener) Open(device string, prefs Prefs) (io.ReadCloser, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if o.buffer > 0 {
		args = append(args, "-thread_queue_size", strconv.Itoa(o.buffer))
	}
	args = append(args, "-f", "v4l2")
	if prefs.MJPEG {
		args = append(args, "-input_format", "mjpeg")
	}
	if prefs.Width > 0 && prefs.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", prefs.Width, prefs.Height))
	}
	if prefs.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(prefs.FPS))
	}
	args = append(args, "-i", device, "-f", "mjpeg", "-q:v", "2", "-")

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &processStream{cmd: cmd, stdout: stdout}, nil
}

// processStream ties the pipe lifetime to the child process: Close
// kills ffmpeg and reaps it.
type processStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	once   sync.Once
}

func (p *processStream) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *processStream) Close() error {
	p.once.Do(func() {
		p.stdout.Close()
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		p.cmd.Wait()
	})
	return nil
}
