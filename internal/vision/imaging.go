// Package vision implements the motion analyzers: a frame-differencing
// path and a background-model path, both producing region boxes and a
// padded union bounds in full-resolution coordinates.
package vision

import (
	"image"
	"math"
)

// grayscaleHalf converts to luma at half resolution. Both analyzers
// work at this scale; region coordinates are mapped back by x2.
func grayscaleHalf(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	w, h := (b.Dx()+1)/2, (b.Dy()+1)/2
	out := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		srcY := b.Min.Y + y*2
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x*2, srcY)
			r := int(img.Pix[i])
			g := int(img.Pix[i+1])
			bl := int(img.Pix[i+2])
			out.Pix[y*out.Stride+x] = uint8((299*r + 587*g + 114*bl + 500) / 1000)
		}
	}
	return out
}

// gaussianKernel builds normalized 1D weights for a ksize tap filter
// with sigma derived from the kernel size.
func gaussianKernel(ksize int) []float64 {
	if ksize < 1 {
		ksize = 1
	}
	if ksize%2 == 0 {
		ksize++
	}
	sigma := 0.3*(float64(ksize-1)*0.5-1) + 0.8
	k := make([]float64, ksize)
	half := ksize / 2
	var sum float64
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// gaussianBlur applies a separable Gaussian filter.
func gaussianBlur(g *image.Gray, ksize int) *image.Gray {
	k := gaussianKernel(ksize)
	half := len(k) / 2
	w, h := g.Rect.Dx(), g.Rect.Dy()

	tmp := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		row := y * g.Stride
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range k {
				sx := x + i - half
				if sx < 0 {
					sx = 0
				} else if sx >= w {
					sx = w - 1
				}
				acc += kv * float64(g.Pix[row+sx])
			}
			tmp.Pix[y*tmp.Stride+x] = uint8(acc + 0.5)
		}
	}

	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range k {
				sy := y + i - half
				if sy < 0 {
					sy = 0
				} else if sy >= h {
					sy = h - 1
				}
				acc += kv * float64(tmp.Pix[sy*tmp.Stride+x])
			}
			out.Pix[y*out.Stride+x] = uint8(acc + 0.5)
		}
	}
	return out
}

// absDiff computes |a - b| per pixel. Images must share dimensions.
func absDiff(a, b *image.Gray) *image.Gray {
	out := image.NewGray(a.Rect)
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		out.Pix[i] = uint8(d)
	}
	return out
}

// binarize thresholds to a 0/255 mask.
func binarize(g *image.Gray, threshold uint8) *image.Gray {
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		if v > threshold {
			out.Pix[i] = 255
		}
	}
	return out
}

// ellipseMask builds an elliptical structuring element of size k.
func ellipseMask(k int) [][]bool {
	if k < 1 {
		k = 1
	}
	if k%2 == 0 {
		k++
	}
	mask := make([][]bool, k)
	r := float64(k) / 2
	c := float64(k-1) / 2
	for y := range mask {
		mask[y] = make([]bool, k)
		for x := range mask[y] {
			dx := (float64(x) - c) / r
			dy := (float64(y) - c) / r
			mask[y][x] = dx*dx+dy*dy <= 1
		}
	}
	return mask
}

func erode(g *image.Gray, mask [][]bool) *image.Gray {
	return morph(g, mask, true)
}

func dilate(g *image.Gray, mask [][]bool) *image.Gray {
	return morph(g, mask, false)
}

func morph(g *image.Gray, mask [][]bool, all bool) *image.Gray {
	k := len(mask)
	half := k / 2
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hit := all
			for my := 0; my < k; my++ {
				for mx := 0; mx < k; mx++ {
					if !mask[my][mx] {
						continue
					}
					sy, sx := y+my-half, x+mx-half
					on := sy >= 0 && sy < h && sx >= 0 && sx < w && g.Pix[sy*g.Stride+sx] == 255
					if all && !on {
						hit = false
					} else if !all && on {
						hit = true
					}
				}
				if hit != all {
					break
				}
			}
			if hit {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// open performs erosion followed by dilation, removing speckle noise
// while preserving larger regions.
func open(g *image.Gray, ksize int) *image.Gray {
	mask := ellipseMask(ksize)
	return dilate(erode(g, mask), mask)
}

// region is one connected foreground area in mask coordinates.
type region struct {
	area   int
	bounds image.Rectangle
}

// components labels 8-connected foreground regions, dropping those
// smaller than minArea.
func components(bin *image.Gray, minArea int) []region {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	visited := make([]bool, w*h)
	var out []region
	var stack []int

	for start := 0; start < w*h; start++ {
		if visited[start] || bin.Pix[(start/w)*bin.Stride+start%w] != 255 {
			continue
		}

		area := 0
		minX, minY, maxX, maxY := w, h, -1, -1
		stack = append(stack[:0], start)
		visited[start] = true

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w

			area++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if !visited[nidx] && bin.Pix[ny*bin.Stride+nx] == 255 {
						visited[nidx] = true
						stack = append(stack, nidx)
					}
				}
			}
		}

		if area >= minArea {
			out = append(out, region{
				area:   area,
				bounds: image.Rect(minX, minY, maxX+1, maxY+1),
			})
		}
	}
	return out
}
