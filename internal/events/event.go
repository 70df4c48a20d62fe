// Package events carries motion notifications from the analyzer to
// in-process subscribers, WebSocket clients, and an optional NATS
// subject.
package events

import (
	"image"
	"time"
)

// Motion event states. A detection cycle emits started once, active
// at most once per second while motion persists, and ended once.
const (
	StateStarted = "started"
	StateActive  = "active"
	StateEnded   = "ended"
)

// MotionEvent is the wire envelope for one motion state transition.
// Boxes are [x, y, w, h] in full-resolution pixel coordinates.
type MotionEvent struct {
	DeviceID string    `json:"device_id"`
	At       time.Time `json:"at"`
	State    string    `json:"state"`
	AreaPx   int       `json:"area_px"`
	Boxes    [][4]int  `json:"boxes,omitempty"`
}

// BoxesFromRects converts region rectangles to the wire layout.
func BoxesFromRects(rects []image.Rectangle) [][4]int {
	if len(rects) == 0 {
		return nil
	}
	out := make([][4]int, 0, len(rects))
	for _, r := range rects {
		out = append(out, [4]int{r.Min.X, r.Min.Y, r.Dx(), r.Dy()})
	}
	return out
}

// MotionSubject returns the NATS subject motion events for a device
// are published on.
func MotionSubject(deviceID string) string {
	return "opensentry.events.motion." + deviceID
}
