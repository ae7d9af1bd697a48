package server

import (
	"net/http"
)

// loggingMiddleware shims in a handler middleware that logs requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug().Str("method", r.Method).Str("uri", r.RequestURI).Int64("length", r.ContentLength).Msg("request")
		next.ServeHTTP(w, r)
	})
}
