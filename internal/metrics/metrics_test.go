package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/auth"
)

func TestOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{apperror.ValidationFailed("email", "bad"), "invalid"},
		{apperror.Conflict("identity", "a@x.com"), "conflict"},
		{apperror.Unauthorized("nope"), "unauthorized"},
		{apperror.Forbidden("nope"), "forbidden"},
		{apperror.NotFound("recipe", "Soup"), "not_found"},
		{apperror.Unprocessable("patch", "empty"), "unprocessable"},
		{errors.New("disk full"), "error"},
	}

	for _, tc := range cases {
		if got := Outcome(tc.err); got != tc.want {
			t.Errorf("Outcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestCollector_Counts(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.AuthAttempt("login", nil)
	c.AuthAttempt("login", apperror.Unauthorized("Invalid credentials"))
	c.AuthAttempt("login", apperror.Unauthorized("Invalid credentials"))
	c.RecipeOperation("save", nil)
	c.Detection("broccoli")
	c.ObserveHTTP("/login", http.MethodPost, http.StatusOK, 10*time.Millisecond)

	if got := testutil.ToFloat64(c.authAttempts.WithLabelValues("login", "unauthorized")); got != 2 {
		t.Errorf("unauthorized logins = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.recipeOperations.WithLabelValues("save", "ok")); got != 1 {
		t.Errorf("saves = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.detections.WithLabelValues("broccoli")); got != 1 {
		t.Errorf("broccoli detections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.httpRequests.WithLabelValues("/login", "POST", "200")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestCountingTokens(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	signer, err := auth.NewHMACSigner("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewHMACSigner: %v", err)
	}
	tokens := NewCountingTokens(auth.NewTokenService(signer), c)

	token, err := tokens.IssueFor("a@x.com")
	if err != nil {
		t.Fatalf("IssueFor: %v", err)
	}
	if _, ok := tokens.Verify(token); !ok {
		t.Fatal("Verify() rejected a fresh token")
	}
	tokens.Verify("garbage")

	if got := testutil.ToFloat64(c.tokenVerifications.WithLabelValues("valid")); got != 1 {
		t.Errorf("valid = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.tokenVerifications.WithLabelValues("invalid")); got != 1 {
		t.Errorf("invalid = %v, want 1", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.AuthAttempt("register", nil)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(string(body), `foodlens_auth_attempts_total{op="register",outcome="ok"} 1`) {
		t.Errorf("metrics output missing auth counter:\n%s", body)
	}
}
