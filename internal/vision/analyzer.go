package vision

import "image"

// Params tunes an analysis pass. A fresh copy is read from settings
// for every frame so runtime changes apply immediately.
type Params struct {
	Threshold    int
	MinArea      int
	Kernel       int
	Iterations   int
	Pad          int
	History      int
	VarThreshold int
}

// Result summarizes one analyzed frame. Boxes and Bounds are in
// full-resolution coordinates; Bounds is the padded union of all
// regions and is zero when no motion was found. TotalAreaPx counts
// foreground pixels at the analysis resolution.
type Result struct {
	Motion      bool
	TotalAreaPx int
	Boxes       []image.Rectangle
	Bounds      image.Rectangle
}

// An Analyzer inspects consecutive frames for motion. Implementations
// keep per-stream state and are not safe for concurrent use.
type Analyzer interface {
	Analyze(frame *image.RGBA, p Params) Result
}

// New returns the analyzer for the given algorithm name. Unknown
// names fall back to frame differencing.
func New(algorithm string) Analyzer {
	switch algorithm {
	case "adaptive", "mog2":
		return NewAdaptive()
	default:
		return NewDiff()
	}
}

// DiffAnalyzer detects motion by differencing consecutive blurred
// frames. The first frame only primes the reference.
type DiffAnalyzer struct {
	prev *image.Gray
}

func NewDiff() *DiffAnalyzer { return &DiffAnalyzer{} }

func (d *DiffAnalyzer) Analyze(frame *image.RGBA, p Params) Result {
	cur := gaussianBlur(grayscaleHalf(frame), 21)

	prev := d.prev
	d.prev = cur
	if prev == nil || prev.Rect != cur.Rect {
		return Result{}
	}

	mask := binarize(absDiff(cur, prev), clampU8(p.Threshold))
	mask = open(mask, 5)
	if p.Kernel > 1 && p.Iterations > 0 {
		grow := ellipseMask(p.Kernel)
		for i := 0; i < p.Iterations; i++ {
			mask = dilate(mask, grow)
		}
	}

	return summarize(mask, frame.Bounds(), p)
}

// AdaptiveAnalyzer keeps a running-average background model and flags
// pixels deviating from it by more than VarThreshold. The model
// resets when History or VarThreshold change.
type AdaptiveAnalyzer struct {
	bg           []float32
	rect         image.Rectangle
	history      int
	varThreshold int
}

func NewAdaptive() *AdaptiveAnalyzer { return &AdaptiveAnalyzer{} }

func (a *AdaptiveAnalyzer) Analyze(frame *image.RGBA, p Params) Result {
	cur := grayscaleHalf(frame)

	if a.bg == nil || a.rect != cur.Rect || a.history != p.History || a.varThreshold != p.VarThreshold {
		a.bg = make([]float32, len(cur.Pix))
		for i, v := range cur.Pix {
			a.bg[i] = float32(v)
		}
		a.rect = cur.Rect
		a.history = p.History
		a.varThreshold = p.VarThreshold
		return Result{}
	}

	history := p.History
	if history < 1 {
		history = 1
	}
	rate := float32(1) / float32(history)
	limit := float32(p.VarThreshold)

	mask := image.NewGray(cur.Rect)
	w := cur.Rect.Dx()
	for y := 0; y < cur.Rect.Dy(); y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			v := float32(cur.Pix[y*cur.Stride+x])
			d := v - a.bg[i]
			if d < 0 {
				d = -d
			}
			if d > limit {
				mask.Pix[y*mask.Stride+x] = 255
			}
			a.bg[i] += rate * (float32(cur.Pix[y*cur.Stride+x]) - a.bg[i])
		}
	}

	mask = open(mask, 3)
	return summarize(mask, frame.Bounds(), p)
}

// summarize extracts regions from the foreground mask and maps them
// back to full-resolution coordinates.
func summarize(mask *image.Gray, full image.Rectangle, p Params) Result {
	regs := components(mask, p.MinArea)
	if len(regs) == 0 {
		return Result{}
	}

	res := Result{Motion: true, Boxes: make([]image.Rectangle, 0, len(regs))}
	union := regs[0].bounds
	for _, r := range regs {
		res.TotalAreaPx += r.area
		res.Boxes = append(res.Boxes, upscale(r.bounds).Intersect(full))
		union = union.Union(r.bounds)
	}

	// Pad is applied at the analysis scale, before mapping back up.
	union.Min.X -= p.Pad
	union.Min.Y -= p.Pad
	union.Max.X += p.Pad
	union.Max.Y += p.Pad
	res.Bounds = upscale(union).Intersect(full)
	return res
}

func upscale(r image.Rectangle) image.Rectangle {
	return image.Rect(r.Min.X*2, r.Min.Y*2, r.Max.X*2, r.Max.Y*2)
}

func clampU8(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
