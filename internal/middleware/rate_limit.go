package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/telemetry"
)

// RateLimitConfig holds rate limiting configuration. Limits count
// requests per caller within one fixed window.
type RateLimitConfig struct {
	Enabled                bool
	RequestsPerWindow      int
	AdminRequestsPerWindow int
	Window                 time.Duration
}

// RateLimitInfo is reported in the X-RateLimit-* response headers
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetTime time.Time
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiter applies fixed-window limits per caller. Callers are
// identified by API key, or by client IP when no key is sent. Admin
// routes are counted in a separate bucket with their own limit.
type RateLimiter struct {
	config  RateLimitConfig
	windows map[string]*rateWindow
	mutex   sync.Mutex
	now     func() time.Time

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewRateLimiter creates a rate limiter. Expired windows are swept once
// per window length.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.AdminRequestsPerWindow <= 0 {
		config.AdminRequestsPerWindow = config.RequestsPerWindow
	}

	rl := &RateLimiter{
		config:      config,
		windows:     make(map[string]*rateWindow),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	if config.Enabled {
		rl.cleanupTicker = time.NewTicker(config.Window)
		go rl.cleanupLoop()
	}

	slog.Info("Rate limiter initialized",
		"enabled", config.Enabled,
		"requests_per_window", config.RequestsPerWindow,
		"admin_requests_per_window", config.AdminRequestsPerWindow,
		"window", config.Window.String())

	return rl
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		if rl.cleanupTicker != nil {
			rl.cleanupTicker.Stop()
		}
		close(rl.stopCleanup)
	})
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.performCleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) performCleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	removed := 0
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Rate limit windows expired", "removed", removed, "remaining", len(rl.windows))
	}
}

// Size returns the number of tracked windows
func (rl *RateLimiter) Size() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.windows)
}

// RateLimitStats is the admin view of the limiter
type RateLimitStats struct {
	Enabled                bool   `json:"enabled"`
	RequestsPerWindow      int    `json:"requestsPerWindow"`
	AdminRequestsPerWindow int    `json:"adminRequestsPerWindow"`
	Window                 string `json:"window"`
	ActiveWindows          int    `json:"activeWindows"`
	ExhaustedWindows       int    `json:"exhaustedWindows"`
}

// Stats reports the configuration and the live windows
func (rl *RateLimiter) Stats() RateLimitStats {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	stats := RateLimitStats{
		Enabled:                rl.config.Enabled,
		RequestsPerWindow:      rl.config.RequestsPerWindow,
		AdminRequestsPerWindow: rl.config.AdminRequestsPerWindow,
		Window:                 rl.config.Window.String(),
	}
	now := rl.now()
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			continue
		}
		stats.ActiveWindows++
		limit := rl.config.RequestsPerWindow
		if strings.HasPrefix(key, "admin|") {
			limit = rl.config.AdminRequestsPerWindow
		}
		if w.count >= limit {
			stats.ExhaustedWindows++
		}
	}
	return stats
}

// Reset forgets every window
func (rl *RateLimiter) Reset() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	rl.windows = make(map[string]*rateWindow)
	slog.Info("Rate limit windows reset")
}

// Allow counts one request for caller and reports whether it fits
func (rl *RateLimiter) Allow(caller string, admin bool) (bool, RateLimitInfo) {
	if !rl.config.Enabled {
		return true, RateLimitInfo{Limit: -1, Remaining: -1}
	}

	limit := rl.config.RequestsPerWindow
	bucket := "api|" + caller
	if admin {
		limit = rl.config.AdminRequestsPerWindow
		bucket = "admin|" + caller
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	w, ok := rl.windows[bucket]
	if !ok || !now.Before(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(rl.config.Window)}
		rl.windows[bucket] = w
	}

	if w.count >= limit {
		return false, RateLimitInfo{Limit: limit, Remaining: 0, ResetTime: w.resetAt}
	}
	w.count++
	return true, RateLimitInfo{Limit: limit, Remaining: limit - w.count, ResetTime: w.resetAt}
}

// Middleware rejects callers over their limit with 429. /health is
// never limited.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		caller := callerKey(r)
		isAdmin := strings.HasPrefix(r.URL.Path, "/v1/admin")

		allowed, info := rl.Allow(caller, isAdmin)
		setRateLimitHeaders(w, info)

		if !allowed {
			retryAfter := int(math.Ceil(info.ResetTime.Sub(rl.now()).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			slog.Warn("Rate limit exceeded",
				"path", r.URL.Path,
				"method", r.Method,
				"is_admin", isAdmin,
				"limit", info.Limit,
				"retry_after_seconds", retryAfter)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeErrorResponse(w, http.StatusTooManyRequests, "rate_limit_exceeded",
				"Rate limit exceeded. Please try again later.",
				[]models.ErrorDetail{{
					Field: "rate_limit",
					Issue: fmt.Sprintf("exceeded %d requests per %s", info.Limit, rl.config.Window),
				}})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// callerKey identifies the caller by API key, else by client IP
func callerKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return "key:" + key
	}
	return "ip:" + telemetry.ClientIP(r)
}

func setRateLimitHeaders(w http.ResponseWriter, info RateLimitInfo) {
	if info.Limit < 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	if !info.ResetTime.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}
