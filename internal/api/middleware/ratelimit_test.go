package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ecoshield360/ecoshield/internal/api/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func send(handler http.Handler, remoteAddr string, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/air-quality/summary", http.NoBody)
	req.RemoteAddr = remoteAddr
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_AllowsWithinLimit(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestLimit: 5,
		WindowLength: time.Minute,
	})(okHandler())

	for i := 0; i < 5; i++ {
		rec := send(handler, "192.168.1.1:12345", "")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
	}
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestLimit: 3,
		WindowLength: time.Minute,
	})(okHandler())

	testIP := "10.0.0.1:12345"
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send(handler, testIP, "").Code)
	}

	rec := send(handler, testIP, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitByIP_RetryAfterFollowsWindow(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestLimit: 1,
		WindowLength: 90 * time.Second,
	})(okHandler())

	testIP := "10.0.0.9:12345"
	assert.Equal(t, http.StatusOK, send(handler, testIP, "").Code)

	rec := send(handler, testIP, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
}

func TestRateLimitByIP_DifferentIPsHaveSeparateLimits(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestLimit: 2,
		WindowLength: time.Minute,
	})(okHandler())

	ip1 := "172.16.0.1:12345"
	ip2 := "172.16.0.2:12345"

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, send(handler, ip1, "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, send(handler, ip1, "").Code)
	assert.Equal(t, http.StatusOK, send(handler, ip2, "").Code)
}

func TestRateLimitByUser_KeysOnUserID(t *testing.T) {
	handler := middleware.RateLimitByUser(middleware.RateLimitConfig{
		RequestLimit: 2,
		WindowLength: time.Minute,
	})(okHandler())

	// Same user from two addresses shares one budget.
	assert.Equal(t, http.StatusOK, send(handler, "192.168.1.1:12345", "usr_a").Code)
	assert.Equal(t, http.StatusOK, send(handler, "192.168.1.2:12345", "usr_a").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(handler, "192.168.1.3:12345", "usr_a").Code)

	// Another user from a used address is unaffected.
	assert.Equal(t, http.StatusOK, send(handler, "192.168.1.1:12345", "usr_b").Code)
}

func TestRateLimitByUser_FallsBackToIP(t *testing.T) {
	handler := middleware.RateLimitByUser(middleware.RateLimitConfig{
		RequestLimit: 1,
		WindowLength: time.Minute,
	})(okHandler())

	assert.Equal(t, http.StatusOK, send(handler, "198.51.100.1:12345", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(handler, "198.51.100.1:12345", "").Code)
	assert.Equal(t, http.StatusOK, send(handler, "198.51.100.2:12345", "").Code)
}

func TestRateLimitExceededResponse_Format(t *testing.T) {
	cfg := middleware.RateLimitConfig{
		RequestLimit: 1,
		WindowLength: time.Minute,
	}

	handler := middleware.RequestID(middleware.RateLimitByIP(cfg)(okHandler()))

	testIP := "203.0.113.1:12345"
	assert.Equal(t, http.StatusOK, send(handler, testIP, "").Code)

	rec := send(handler, testIP, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, "Rate limit exceeded")
	assert.Contains(t, body, "/api/v1/air-quality/summary")
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 10, middleware.AuthRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.AuthRateLimit.WindowLength)

	assert.Equal(t, 30, middleware.ExpensiveRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.ExpensiveRateLimit.WindowLength)

	assert.Equal(t, 100, middleware.StandardRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.StandardRateLimit.WindowLength)
}
