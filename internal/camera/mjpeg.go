package camera

import (
	"bytes"
	"errors"
	"io"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxFrameBytes caps the scan buffer. A stream that produces this much
// data without a complete frame is corrupt; the buffer is dropped and
// scanning resyncs on the next SOI.
const maxFrameBytes = 8 << 20

var errFrameOverflow = errors.New("mjpeg frame exceeds buffer limit")

// frameScanner splits a raw MJPEG byte stream into complete JPEG frames
// by scanning for SOI/EOI marker pairs.
type frameScanner struct {
	r   io.Reader
	buf []byte
}

func newFrameScanner(r io.Reader) *frameScanner {
	return &frameScanner{r: r, buf: make([]byte, 0, 64*1024)}
}

// Next returns the next complete frame, reading more input as needed.
// The returned slice is an independent copy.
func (s *frameScanner) Next() ([]byte, error) {
	chunk := make([]byte, 32*1024)
	for {
		if frame := s.extract(); frame != nil {
			return frame, nil
		}
		if len(s.buf) > maxFrameBytes {
			s.buf = s.buf[:0]
			return nil, errFrameOverflow
		}
		n, err := s.r.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *frameScanner) extract() []byte {
	start := bytes.Index(s.buf, jpegSOI)
	if start < 0 {
		// Keep a trailing byte in case an SOI is split across reads.
		if n := len(s.buf); n > 1 {
			s.buf = s.buf[n-1:]
		}
		return nil
	}
	end := bytes.Index(s.buf[start+2:], jpegEOI)
	if end < 0 {
		if start > 0 {
			s.buf = s.buf[start:]
		}
		return nil
	}
	stop := start + 2 + end + 2

	frame := make([]byte, stop-start)
	copy(frame, s.buf[start:stop])
	s.buf = append(s.buf[:0], s.buf[stop:]...)
	return frame
}
