package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestAdminAuth_EmptyKeyDisablesGuard(t *testing.T) {
	h := AdminAuth("")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/accounts", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAuth_RejectsMissingOrWrongKey(t *testing.T) {
	h := AdminAuth("s3cret")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/accounts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing admin key"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid admin key"}`, rec.Body.String())
}

func TestAdminAuth_AcceptsBearerAndHeader(t *testing.T) {
	h := AdminAuth("s3cret")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/tokens", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/tokens", nil)
	req.Header.Set("X-Admin-Key", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS_AllowedOriginGetsHeaders(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Admin-Key")
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
	h := CORS(nil)(next)

	req := httptest.NewRequest(http.MethodOptions, "/api/prices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called)
	// Empty allow-list admits any origin.
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	Logging(logger)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices/NOPE", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, buf.String(), "status=404")
	assert.Contains(t, buf.String(), "path=/api/prices/NOPE")
}

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.err
}

func TestRateLimit_DeniedRequestGets429(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	h := RateLimit(limiter, 10, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	// Keyed on the first forwarded address, not the proxy hop.
	require.Len(t, limiter.keys, 1)
	assert.Equal(t, "ratelimit:rest:203.0.113.9", limiter.keys[0])
}

func TestRateLimit_AllowedRequestPassesThrough(t *testing.T) {
	h := RateLimit(&stubLimiter{allowed: true}, 10, time.Minute)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_LimiterErrorFailsOpen(t *testing.T) {
	h := RateLimit(&stubLimiter{err: errors.New("redis down")}, 10, time.Minute)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
