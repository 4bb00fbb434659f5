package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/services"
	"creature-catalog-api/internal/storage"
)

// StatsSource reports local store statistics
type StatsSource interface {
	GetStorageStats(ctx context.Context) (*storage.StorageStats, error)
}

// CacheClearer empties the local cache
type CacheClearer interface {
	Clear(ctx context.Context) error
}

// WarmUpReporter reports the bulk warm-up state
type WarmUpReporter interface {
	Status() services.WarmUpStatus
}

// AdminHandler handles admin-only endpoints
type AdminHandler struct {
	stats  StatsSource
	cache  CacheClearer
	warmUp WarmUpReporter
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(stats StatsSource, cache CacheClearer, warmUp WarmUpReporter) *AdminHandler {
	return &AdminHandler{stats: stats, cache: cache, warmUp: warmUp}
}

// CacheStats handles GET /v1/admin/cache/stats
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetStorageStats(r.Context())
	if err != nil {
		slog.Error("Failed to read storage stats", "error", err, "remote_addr", r.RemoteAddr)
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to read cache stats", nil)
		return
	}

	writeJSONResponse(w, http.StatusOK, models.CacheStatsResponse{
		EntryCount:    stats.EntryCount,
		DetailCount:   stats.DetailCount,
		TotalCount:    stats.TotalCount,
		Driver:        stats.Driver,
		InitializedAt: stats.InitializedAt,
	})
}

// ClearCache handles DELETE /v1/admin/cache
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	slog.Info("Admin cache clear request received",
		"remote_addr", r.RemoteAddr,
		"user_agent", r.Header.Get("User-Agent"))

	if err := h.cache.Clear(r.Context()); err != nil {
		slog.Error("Failed to clear cache", "error", err, "remote_addr", r.RemoteAddr)
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to clear cache", nil)
		return
	}

	slog.Info("Cache cleared", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

// WarmUpStatus handles GET /v1/admin/warmup
func (h *AdminHandler) WarmUpStatus(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.warmUp.Status())
}
