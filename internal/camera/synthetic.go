package camera

import (
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/Sbussiso/OpenSentry/internal/render"
)

// Synthetic generates placeholder frames with a moving block so the
// whole pipeline, including motion analysis, works without hardware.
type Synthetic struct {
	width  int
	height int
	fps    int
	label  string

	mu      sync.Mutex
	latest  *Frame
	quit    chan struct{}
	started bool
	tick    int
	wg      sync.WaitGroup
}

// NewSynthetic builds a placeholder source. Zero dimensions default to
// 640x480 at 15 fps.
func NewSynthetic(width, height, fps int) *Synthetic {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	if fps <= 0 {
		fps = 15
	}
	return &Synthetic{
		width:  width,
		height: height,
		fps:    fps,
		label:  "NO CAMERA - PLACEHOLDER",
	}
}

func (s *Synthetic) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.quit = make(chan struct{})
	s.latest = s.generate(0)

	s.wg.Add(1)
	go s.run(s.quit)
	return nil
}

func (s *Synthetic) run(quit chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.tick++
			tick := s.tick
			s.mu.Unlock()

			frame := s.generate(tick)

			s.mu.Lock()
			s.latest = frame
			s.mu.Unlock()
		}
	}
}

func (s *Synthetic) generate(tick int) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	bg := color.RGBA{R: 28, G: 30, B: 34, A: 255}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = bg.R
		img.Pix[i+1] = bg.G
		img.Pix[i+2] = bg.B
		img.Pix[i+3] = 255
	}

	// A block orbiting the frame gives the analyzers real motion.
	size := s.width / 8
	x := (tick * 7) % (s.width - size)
	y := (s.height-size)/2 + (s.height/4)*sin8(tick)/127
	block := image.Rect(x, y, x+size, y+size)
	for py := block.Min.Y; py < block.Max.Y; py++ {
		for px := block.Min.X; px < block.Max.X; px++ {
			img.SetRGBA(px, py, color.RGBA{R: 90, G: 140, B: 200, A: 255})
		}
	}

	render.Label(img, 10, 20, s.label, render.Gray)
	render.Timestamp(img, time.Now())
	return &Frame{Image: img, At: time.Now()}
}

// sin8 is a coarse integer sine in [-127, 127] for the block path.
func sin8(t int) int {
	table := [8]int{0, 90, 127, 90, 0, -90, -127, -90}
	return table[(t/4)%8]
}

func (s *Synthetic) Frame() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest.Clone()
}

func (s *Synthetic) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Synthetic) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.quit)
	s.mu.Unlock()
	s.wg.Wait()
}
