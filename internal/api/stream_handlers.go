package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sbussiso/OpenSentry/internal/stream"
)

// handleStream serves one MJPEG multipart stream from a broadcaster.
// The connection stays open until the client goes away or the
// broadcaster stops; a slow client skips frames, it is never waited
// on by the producer.
func (s *Server) handleStream(b *stream.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		noCacheStream(w)
		w.Header().Set("Content-Type", stream.ContentType)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := b.Subscribe()
		defer sub.Close()

		for {
			frame, err := sub.Next(r.Context())
			if err != nil {
				if !errors.Is(err, stream.ErrStopped) && !errors.Is(err, context.Canceled) {
					s.log.Debug().Err(err).Str("stream", b.Name()).Msg("stream subscriber done")
				}
				return
			}
			if err := stream.WritePart(w, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
