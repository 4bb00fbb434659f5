// Package app wires the catalog pipeline together. Both binaries build
// their dependencies through New.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"creature-catalog-api/internal/cache"
	"creature-catalog-api/internal/client"
	"creature-catalog-api/internal/config"
	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/services"
	"creature-catalog-api/internal/session"
	"creature-catalog-api/internal/storage"
	"creature-catalog-api/internal/telemetry"
)

// Storage drivers accepted by STORAGE_DRIVER
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// App holds the long-lived components of the service
type App struct {
	Config    *config.Config
	Store     storage.LocalStorage
	Gate      *cache.Gate
	Source    CatalogSource
	Details   *services.DetailService
	Pages     *services.PageService
	WarmUp    *services.WarmUpManager
	Enricher  *services.Enricher
	Sessions  *session.Registry
	Metrics   *telemetry.CatalogTelemetry
	telemetry *telemetry.Telemetry
	logger    *slog.Logger
}

// Option customises New
type Option func(*options)

type options struct {
	logger *slog.Logger
	source CatalogSource
}

// CatalogSource is the remote catalog as the services see it
type CatalogSource interface {
	services.PageSource
	services.DetailSource
}

// WithLogger sets the logger handed to every component
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSource replaces the HTTP catalog client, for tests
func WithSource(src CatalogSource) Option {
	return func(o *options) { o.source = src }
}

// New builds storage, cache gate, remote client, services and the
// session registry from cfg
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	tel, err := telemetry.InitMetrics(ctx, cfg.MetricsExporter, cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	metrics, err := telemetry.NewCatalogTelemetry()
	if err != nil {
		tel.Shutdown(ctx)
		return nil, fmt.Errorf("init catalog telemetry: %w", err)
	}

	store, err := openStorage(cfg)
	if err != nil {
		tel.Shutdown(ctx)
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		store.Close()
		tel.Shutdown(ctx)
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	p := cfg.Pipeline
	gate := cache.NewGate(store, p.CacheTTL, p.RefreshAfter, cache.WithLogger(o.logger))

	source := o.source
	if source == nil {
		source = client.NewCatalogClient(cfg.BaseURL, cfg.Collection, client.WithLogger(o.logger))
	}

	svcOpts := []services.ServiceOption{services.WithLogger(o.logger), services.WithTelemetry(metrics)}
	details := services.NewDetailService(source, gate, p, svcOpts...)
	warmUp := services.NewWarmUpManager(source, gate, svcOpts...)
	pages := services.NewPageService(source, gate, warmUp, p.PageSize, svcOpts...)
	enricher := services.NewEnricher(details, p.MaxConcurrentFetch, svcOpts...)

	a := &App{
		Config:    cfg,
		Store:     store,
		Gate:      gate,
		Source:    source,
		Details:   details,
		Pages:     pages,
		WarmUp:    warmUp,
		Enricher:  enricher,
		Metrics:   metrics,
		telemetry: tel,
		logger:    o.logger,
	}
	a.Sessions = session.NewRegistry(a.NewSession, cfg.SessionIdleTimeout, cfg.SessionCleanupInterval,
		session.WithRegistryLogger(o.logger))

	o.logger.Info("Catalog pipeline initialized",
		"storage_driver", cfg.StorageDriver,
		"page_size", p.PageSize,
		"max_concurrent_fetch", p.MaxConcurrentFetch)
	return a, nil
}

// NewSession builds a session outside the registry
func (a *App) NewSession(id string, spec models.FilterSpec) *session.Session {
	return session.New(id, a.Pages, a.Enricher, a.Config.Pipeline.PageSize, spec,
		session.WithLogger(a.logger))
}

// Close stops sessions and background work, then closes the store
func (a *App) Close(ctx context.Context) error {
	a.Sessions.Stop()
	a.WarmUp.Close()
	a.Pages.Close()
	a.Details.Close()
	a.telemetry.Shutdown(ctx)

	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	a.logger.Info("Catalog pipeline stopped")
	return nil
}

func openStorage(cfg *config.Config) (storage.LocalStorage, error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case DriverMemory:
		return storage.NewMemoryStorage(), nil
	case DriverSQLite, "":
		store, err := storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
