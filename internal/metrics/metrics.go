// Package metrics collects Prometheus metrics and exposes them for scraping.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/auth"
)

// Recorder is the metrics interface used by handlers and middleware.
type Recorder interface {
	ObserveHTTP(route, method string, status int, d time.Duration)
	AuthAttempt(op string, err error)
	RecipeOperation(op string, err error)
	Detection(class string)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	authAttempts       *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
	recipeOperations   *prometheus.CounterVec
	detections         *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate
// registration panics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlens_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foodlens_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlens_auth_attempts_total",
			Help: "Register, login and federated login attempts by outcome.",
		}, []string{"op", "outcome"}),
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlens_token_verifications_total",
			Help: "Bearer token verifications by outcome.",
		}, []string{"outcome"}),
		recipeOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlens_recipe_operations_total",
			Help: "Recipe operations by outcome.",
		}, []string{"op", "outcome"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlens_detections_total",
			Help: "Detected objects by class.",
		}, []string{"class"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.authAttempts,
		c.tokenVerifications,
		c.recipeOperations,
		c.detections,
	)

	return c
}

// ObserveHTTP records one finished request.
func (c *Collector) ObserveHTTP(route, method string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// AuthAttempt records a register/login/federated attempt.
func (c *Collector) AuthAttempt(op string, err error) {
	c.authAttempts.WithLabelValues(op, Outcome(err)).Inc()
}

// TokenVerification records the result of one token check.
func (c *Collector) TokenVerification(ok bool) {
	outcome := "valid"
	if !ok {
		outcome = "invalid"
	}
	c.tokenVerifications.WithLabelValues(outcome).Inc()
}

// RecipeOperation records a save/list/update/delete.
func (c *Collector) RecipeOperation(op string, err error) {
	c.recipeOperations.WithLabelValues(op, Outcome(err)).Inc()
}

// Detection records one detected object.
func (c *Collector) Detection(class string) {
	c.detections.WithLabelValues(class).Inc()
}

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperror.ErrValidation):
		return "invalid"
	case errors.Is(err, apperror.ErrConflict):
		return "conflict"
	case errors.Is(err, apperror.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrUnprocessable):
		return "unprocessable"
	default:
		return "error"
	}
}

// Handler returns the HTTP handler Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// CountingTokens wraps a TokenService and counts Verify results.
type CountingTokens struct {
	*auth.TokenService
	collector *Collector
}

// NewCountingTokens wraps tokens so every Verify call is recorded.
func NewCountingTokens(tokens *auth.TokenService, c *Collector) *CountingTokens {
	return &CountingTokens{TokenService: tokens, collector: c}
}

// Verify delegates to the wrapped TokenService.
func (t *CountingTokens) Verify(token string) (auth.Claims, bool) {
	claims, ok := t.TokenService.Verify(token)
	t.collector.TokenVerification(ok)
	return claims, ok
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) ObserveHTTP(string, string, int, time.Duration) {}
func (Nop) AuthAttempt(string, error)                      {}
func (Nop) RecipeOperation(string, error)                  {}
func (Nop) Detection(string)                               {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
