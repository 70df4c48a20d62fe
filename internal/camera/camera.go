// Package camera acquires frames from a local video device through a
// long-lived ffmpeg subprocess, or synthesizes them when no hardware is
// available. Exactly one Source owns the device; consumers poll Frame().
package camera

import (
	"errors"
	"image"
	"image/draw"
	"time"
)

var ErrNoCamera = errors.New("no camera available")

// Frame is one captured image with its capture time.
type Frame struct {
	Image *image.RGBA
	At    time.Time
}

// Clone returns an independent deep copy.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	img := image.NewRGBA(f.Image.Rect)
	copy(img.Pix, f.Image.Pix)
	return &Frame{Image: img, At: f.At}
}

// Source produces frames from a capture backend.
//
// Start is idempotent and returns once the capture loop is launched;
// device acquisition happens in the background. Frame returns a deep
// copy of the most recent frame, or nil before the first capture. Stop
// releases the device and is safe to call twice.
type Source interface {
	Start() error
	Frame() *Frame
	Running() bool
	Stop()
}

// Prefs are capture hints applied on the next device (re)open. Zero
// width/height/fps leave the driver defaults untouched.
type Prefs struct {
	Width  int
	Height int
	FPS    int
	MJPEG  bool
}

// toRGBA normalizes decoder output (usually YCbCr) into RGBA.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
