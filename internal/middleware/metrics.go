package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/foodlens/internal/metrics"
)

// Metrics records every request with the given Recorder.
//
// The route label is chi's route pattern ("/delete_recipe"), not the raw
// path, so query strings and unknown URLs cannot blow up label cardinality.
// Requests that matched no route are recorded as "unmatched".
func Metrics(rec metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			rec.ObserveHTTP(route, r.Method, wrapped.statusCode, time.Since(start))
		})
	}
}
