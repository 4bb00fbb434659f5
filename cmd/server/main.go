package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creature-catalog-api/internal/app"
	"creature-catalog-api/internal/config"
	"creature-catalog-api/internal/handlers"
	"creature-catalog-api/internal/middleware"
)

const (
	serviceName = "creature-catalog-api"
	version     = "1.0.0"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg := config.LoadConfig()

	slog.Info("Starting Creature Catalog API", "version", version)

	ctx := context.Background()
	catalog, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize catalog pipeline", "error", err)
		os.Exit(1)
	}

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Enabled:                cfg.RateLimitEnabled,
		RequestsPerWindow:      cfg.RateLimitRequestsPerMinute,
		AdminRequestsPerWindow: cfg.RateLimitAdminRequestsPerMinute,
		Window:                 time.Minute,
	})

	r := handlers.NewRouter(handlers.Dependencies{
		Service:   serviceName,
		Version:   version,
		Pages:     catalog.Pages,
		Details:   catalog.Details,
		Sessions:  catalog.Sessions,
		Stats:     catalog.Store,
		Cache:     catalog.Gate,
		WarmUp:    catalog.WarmUp,
		Auth:      middleware.NewKeyAuth(cfg.APIKeys, cfg.AdminAPIKeys),
		RateLimit: rateLimiter,
		Telemetry: catalog.Metrics,
	})

	slog.Debug("Available endpoints",
		"v1_endpoints", []string{
			"GET /v1/creatures?offset=&limit=",
			"GET /v1/creatures/{id}",
			"POST /v1/sessions",
			"GET /v1/sessions/{sessionId}?wait=idle",
			"PUT /v1/sessions/{sessionId}/filter",
			"POST /v1/sessions/{sessionId}/more",
			"POST /v1/sessions/{sessionId}/refresh",
			"DELETE /v1/sessions/{sessionId}",
		},
		"admin_endpoints", []string{
			"GET /v1/admin/cache/stats",
			"DELETE /v1/admin/cache",
			"GET /v1/admin/warmup",
		},
		"system_endpoints", []string{
			"GET /health",
		})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server ready to accept connections", "address", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	rateLimiter.Stop()
	if err := catalog.Close(shutdownCtx); err != nil {
		slog.Error("Error closing catalog pipeline", "error", err)
	}

	slog.Info("Server exited")
}
