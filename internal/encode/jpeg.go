// Package encode turns frames into JPEG bytes for streaming and snapshots.
package encode

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
)

// emptyJPEG is a bare SOI/EOI marker pair. It decodes as a zero-content
// image and keeps multipart streams structurally valid when encoding fails.
var emptyJPEG = []byte{0xFF, 0xD8, 0xFF, 0xD9}

type encoderFunc func(img image.Image, quality int) ([]byte, error)

var (
	selectOnce sync.Once
	encoder    encoderFunc
)

// selectEncoder picks the JPEG implementation once per process. The
// stdlib encoder is always available; alternates slot in here.
func selectEncoder() encoderFunc {
	return stdlibJPEG
}

func stdlibJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JPEG encodes img at the given quality, clamped to [1, 100]. It never
// fails upward: a nil image or encoder error yields a minimal empty JPEG
// so capture and stream loops keep producing parts.
func JPEG(img image.Image, quality int) []byte {
	selectOnce.Do(func() { encoder = selectEncoder() })

	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}

	if img == nil {
		return Fallback()
	}
	data, err := encoder(img, quality)
	if err != nil || len(data) == 0 {
		return Fallback()
	}
	return data
}

// Decode parses JPEG bytes into an image.
func Decode(data []byte) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(data))
}

// Fallback returns a fresh copy of the empty JPEG marker pair.
func Fallback() []byte {
	return append([]byte(nil), emptyJPEG...)
}
