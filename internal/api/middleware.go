package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// deviceHeaders stamps every response so fleet tooling can identify
// the device without parsing bodies.
func (s *Server) deviceHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Server", "OpenSentry/"+s.cfg.Version)
		h.Set("X-OpenSentry-Version", s.cfg.Version)
		h.Set("X-OpenSentry-Device", s.store.DeviceID())
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per completed request. Streams log on
// disconnect, so their duration covers the whole watch.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

// countRequests feeds the HTTP metrics. The route pattern is resolved
// after routing so all snapshot names share one label value.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.met.HTTPRequest(r.Method, route, ww.Status(), time.Since(start))
	})
}
