package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"creature-catalog-api/internal/models"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newTestLimiter(t *testing.T, cfg RateLimitConfig) (*RateLimiter, *fixedClock) {
	t.Helper()
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	clock := &fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	rl.now = clock.Now
	return rl, clock
}

func limitedRequest(h http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowWithinWindow(t *testing.T) {
	// Arrange
	rl, clock := newTestLimiter(t, RateLimitConfig{Enabled: true, RequestsPerWindow: 2, Window: time.Minute})

	// Act
	first, info1 := rl.Allow("key:demo", false)
	second, info2 := rl.Allow("key:demo", false)
	third, info3 := rl.Allow("key:demo", false)
	other, _ := rl.Allow("key:other", false)

	// Assert
	assert.True(t, first)
	assert.Equal(t, 1, info1.Remaining)
	assert.True(t, second)
	assert.Equal(t, 0, info2.Remaining)
	assert.False(t, third)
	assert.Equal(t, clock.now.Add(time.Minute), info3.ResetTime)
	assert.True(t, other)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl, clock := newTestLimiter(t, RateLimitConfig{Enabled: true, RequestsPerWindow: 1, Window: time.Minute})

	allowed, _ := rl.Allow("ip:10.0.0.7", false)
	require.True(t, allowed)
	allowed, _ = rl.Allow("ip:10.0.0.7", false)
	require.False(t, allowed)

	clock.now = clock.now.Add(time.Minute)
	allowed, info := rl.Allow("ip:10.0.0.7", false)

	assert.True(t, allowed)
	assert.Equal(t, 0, info.Remaining)
}

func TestRateLimiter_AdminBucketIsSeparate(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{Enabled: true, RequestsPerWindow: 1, AdminRequestsPerWindow: 3, Window: time.Minute})

	allowed, _ := rl.Allow("key:root", false)
	require.True(t, allowed)

	for i := 0; i < 3; i++ {
		allowed, info := rl.Allow("key:root", true)
		require.True(t, allowed)
		assert.Equal(t, 3, info.Limit)
	}
	allowed, _ = rl.Allow("key:root", true)
	assert.False(t, allowed)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{Enabled: false, RequestsPerWindow: 1})
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := limitedRequest(h, "/v1/creatures", "demo")
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
	assert.Zero(t, rl.Size())
}

func TestRateLimiter_PerformCleanupDropsExpiredWindows(t *testing.T) {
	rl, clock := newTestLimiter(t, RateLimitConfig{Enabled: true, RequestsPerWindow: 5, Window: time.Minute})
	rl.Allow("key:a", false)
	clock.now = clock.now.Add(30 * time.Second)
	rl.Allow("key:b", false)

	clock.now = clock.now.Add(45 * time.Second)
	rl.performCleanup()

	assert.Equal(t, 1, rl.Size())
}

func TestRateLimiter_StatsAndReset(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{Enabled: true, RequestsPerWindow: 1, AdminRequestsPerWindow: 2, Window: time.Minute})
	rl.Allow("key:a", false)
	rl.Allow("key:b", true)

	stats := rl.Stats()
	assert.Equal(t, RateLimitStats{
		Enabled:                true,
		RequestsPerWindow:      1,
		AdminRequestsPerWindow: 2,
		Window:                 "1m0s",
		ActiveWindows:          2,
		ExhaustedWindows:       1,
	}, stats)

	rl.Reset()
	assert.Zero(t, rl.Stats().ActiveWindows)
	allowed, _ := rl.Allow("key:a", false)
	assert.True(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	// Arrange
	rl, _ := newTestLimiter(t, RateLimitConfig{Enabled: true, RequestsPerWindow: 1, Window: time.Minute})
	h := rl.Middleware(okHandler())

	// Act
	first := limitedRequest(h, "/v1/creatures", "demo")
	second := limitedRequest(h, "/v1/creatures", "demo")
	anonymous := limitedRequest(h, "/v1/creatures", "")
	health := limitedRequest(h, "/health", "demo")

	// Assert
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, first.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&body))
	assert.Equal(t, "rate_limit_exceeded", body.Code)
	require.Len(t, body.Details, 1)
	assert.Equal(t, "rate_limit", body.Details[0].Field)

	assert.Equal(t, http.StatusNoContent, anonymous.Code)
	assert.Equal(t, http.StatusNoContent, health.Code)
}

func TestCallerKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "api key wins", headers: map[string]string{APIKeyHeader: "demo", "X-Forwarded-For": "1.2.3.4"}, want: "key:demo"},
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, want: "ip:1.2.3.4"},
		{name: "bad forwarded falls through", headers: map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "9.9.9.9"}, want: "ip:9.9.9.9"},
		{name: "remote addr", headers: nil, want: "ip:10.0.0.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/creatures", nil)
			req.RemoteAddr = "10.0.0.7:51234"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, callerKey(req))
		})
	}
}

func TestRateLimiter_StopEndsCleanup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerWindow: 1, Window: time.Hour})
	rl.Stop()
	rl.Stop()
}
