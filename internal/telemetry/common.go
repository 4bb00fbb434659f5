package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Exporter names accepted by InitMetrics
const (
	ExporterScraper = "scraper"
	ExporterGRPC    = "grpc"
	ExporterNone    = ""
)

// Telemetry owns the meter provider and, for the scraper exporter, the
// metrics HTTP server
type Telemetry struct {
	server   *http.Server
	Provider *metric.MeterProvider
}

// InitMetrics installs a global meter provider for the given exporter.
// "scraper" serves Prometheus metrics on metricsAddr, "grpc" pushes over
// OTLP to OTEL_EXPORTER_OTLP_METRICS_ENDPOINT (localhost:4317 by
// default). Any other value leaves the no-op global provider in place.
func InitMetrics(ctx context.Context, exporter, metricsAddr string) (*Telemetry, error) {
	t := &Telemetry{}

	switch exporter {
	case ExporterScraper:
		slog.Info("Starting metrics with scraper exporter", "addr", metricsAddr)
		promExporter, err := prometheus.New()
		if err != nil {
			return nil, err
		}
		t.Provider = metric.NewMeterProvider(metric.WithReader(promExporter))
		t.server = &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go t.serveMetrics()

	case ExporterGRPC:
		slog.Info("Starting metrics with grpc exporter")
		grpcExporter, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, err
		}
		t.Provider = metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(grpcExporter)))

	default:
		slog.Info("Metrics export disabled", "exporter", exporter)
		return t, nil
	}

	otel.SetMeterProvider(t.Provider)
	return t, nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (t *Telemetry) serveMetrics() {
	err := t.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server exited", "error", err)
	}
}

// Shutdown flushes pending metrics and stops the metrics server
func (t *Telemetry) Shutdown(ctx context.Context) {
	if t == nil {
		return
	}
	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown failed", "error", err)
		} else {
			slog.Info("Shutting down metrics server")
		}
	}
	if t.Provider != nil {
		if err := t.Provider.ForceFlush(ctx); err != nil {
			slog.Warn("Failed to flush metrics", "error", err)
		}
		if err := t.Provider.Shutdown(ctx); err != nil {
			slog.Warn("Failed to shut down meter provider", "error", err)
		}
	}
}
