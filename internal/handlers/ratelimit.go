package handlers

import (
	"log/slog"
	"net/http"

	"creature-catalog-api/internal/middleware"
)

// RateLimitHandler exposes the request limiter to admins
type RateLimitHandler struct {
	limiter *middleware.RateLimiter
}

// NewRateLimitHandler creates a new rate limit handler
func NewRateLimitHandler(limiter *middleware.RateLimiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// Status handles GET /v1/admin/ratelimit
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.limiter.Stats())
}

// Reset handles DELETE /v1/admin/ratelimit
func (h *RateLimitHandler) Reset(w http.ResponseWriter, r *http.Request) {
	slog.Info("Admin rate limit reset request received", "remote_addr", r.RemoteAddr)
	h.limiter.Reset()
	w.WriteHeader(http.StatusNoContent)
}
