package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"creature-catalog-api/internal/middleware"
	"creature-catalog-api/internal/session"
	"creature-catalog-api/internal/telemetry"
)

// Dependencies are the components the HTTP API serves from
type Dependencies struct {
	Service   string
	Version   string
	Pages     PageFetcher
	Details   DetailFetcher
	Sessions  *session.Registry
	Stats     StatsSource
	Cache     CacheClearer
	WarmUp    WarmUpReporter
	Auth      *middleware.KeyAuth
	RateLimit *middleware.RateLimiter
	Telemetry *telemetry.CatalogTelemetry
}

// NewRouter registers every route of the API
func NewRouter(d Dependencies) *mux.Router {
	r := mux.NewRouter()
	r.Use(telemetry.Middleware(d.Telemetry))
	if d.RateLimit != nil {
		r.Use(d.RateLimit.Middleware)
	}

	catalogHandler := NewCatalogHandler(d.Pages, d.Details)
	sessionHandler := NewSessionHandler(d.Sessions)
	adminHandler := NewAdminHandler(d.Stats, d.Cache, d.WarmUp)
	healthHandler := NewHealthHandler(d.Service, d.Version)

	// Admin routes first so the v1 subrouter does not shadow them
	adminV1 := r.PathPrefix("/v1/admin").Subrouter()
	adminV1.Use(d.Auth.AuthenticateAdmin)
	adminV1.HandleFunc("/cache/stats", adminHandler.CacheStats).Methods(http.MethodGet)
	adminV1.HandleFunc("/cache", adminHandler.ClearCache).Methods(http.MethodDelete)
	adminV1.HandleFunc("/warmup", adminHandler.WarmUpStatus).Methods(http.MethodGet)
	if d.RateLimit != nil {
		rateLimitHandler := NewRateLimitHandler(d.RateLimit)
		adminV1.HandleFunc("/ratelimit", rateLimitHandler.Status).Methods(http.MethodGet)
		adminV1.HandleFunc("/ratelimit", rateLimitHandler.Reset).Methods(http.MethodDelete)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(d.Auth.Authenticate)
	v1.HandleFunc("/creatures", catalogHandler.ListCreatures).Methods(http.MethodGet)
	v1.HandleFunc("/creatures/{id}", catalogHandler.GetCreature).Methods(http.MethodGet)
	v1.HandleFunc("/sessions", sessionHandler.CreateSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionId}", sessionHandler.GetSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{sessionId}", sessionHandler.DeleteSession).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{sessionId}/filter", sessionHandler.SetFilter).Methods(http.MethodPut)
	v1.HandleFunc("/sessions/{sessionId}/more", sessionHandler.LoadMore).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionId}/refresh", sessionHandler.Refresh).Methods(http.MethodPost)

	// Health check endpoint (no auth required)
	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	return r
}
