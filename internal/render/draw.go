// Package render draws stream overlays: bounding boxes, status labels,
// and timestamps. All drawing mutates the frame in place.
package render

import (
	"image"
	"image/color"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	Red   = color.RGBA{R: 255, A: 255}
	Green = color.RGBA{G: 255, A: 255}
	Gray  = color.RGBA{R: 170, G: 170, B: 170, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const labelBG = 180 // background alpha behind text

// Box outlines r on img with the given stroke thickness. Coordinates
// outside the image are clipped.
func Box(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	r = r.Intersect(bounds)
	if r.Empty() {
		return
	}

	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			setClipped(img, bounds, x, r.Min.Y+t, c)
			setClipped(img, bounds, x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			setClipped(img, bounds, r.Min.X+t, y, c)
			setClipped(img, bounds, r.Max.X-1-t, y, c)
		}
	}
}

func setClipped(img *image.RGBA, bounds image.Rectangle, x, y int, c color.RGBA) {
	if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
		img.SetRGBA(x, y, c)
	}
}

// Label renders text at (x, y) over a dark backing rectangle so it
// stays readable on any frame content. y is the text baseline top.
func Label(img *image.RGBA, x, y int, text string, c color.RGBA) {
	if text == "" {
		return
	}
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	bounds := img.Bounds()
	bg := color.RGBA{A: labelBG}
	textWidth := len(text) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			setClipped(img, bounds, x+dx, y+dy, bg)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(text)
}

// Timestamp stamps the wall-clock time in the bottom-left corner.
func Timestamp(img *image.RGBA, at time.Time) {
	h := img.Bounds().Dy()
	Label(img, 10, h-20, at.Format("2006-01-02 15:04:05"), White)
}

// Downscale resizes img to maxWidth preserving aspect ratio. Frames at
// or below maxWidth are returned unchanged. maxWidth <= 0 disables
// scaling.
func Downscale(img *image.RGBA, maxWidth int) *image.RGBA {
	w := img.Bounds().Dx()
	if maxWidth <= 0 || w <= maxWidth {
		return img
	}
	h := img.Bounds().Dy() * maxWidth / w
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}
