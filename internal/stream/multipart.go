package stream

import (
	"fmt"
	"io"
)

// Boundary separates frames in multipart/x-mixed-replace responses.
const Boundary = "frame"

// ContentType is the response content type for MJPEG endpoints.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// WritePart emits one frame in the exact part layout browsers expect:
// boundary line, JPEG content headers, blank line, frame bytes, CRLF.
func WritePart(w io.Writer, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
