package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "creature-catalog-api"

// CatalogTelemetry holds the instruments of the catalog pipeline and its
// HTTP surface. A nil *CatalogTelemetry records nothing.
type CatalogTelemetry struct {
	meter metric.Meter

	// HTTP
	requestCounter    metric.Int64Counter
	errorCounter      metric.Int64Counter
	durationHistogram metric.Float64Histogram

	// Pipeline
	pageFetchCounter   metric.Int64Counter
	detailFetchCounter metric.Int64Counter
	enrichmentCounter  metric.Int64Counter
	cacheWriteFailures metric.Int64Counter
	warmUpEntries      metric.Int64Counter
}

// RequestMetrics describes one served HTTP request
type RequestMetrics struct {
	Method       string
	Endpoint     string
	StatusCode   int
	Duration     time.Duration
	ErrorMessage string
	ClientIPType string
}

// NewCatalogTelemetry creates every instrument on the global meter provider
func NewCatalogTelemetry() (*CatalogTelemetry, error) {
	t := &CatalogTelemetry{meter: otel.Meter(meterName)}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&t.requestCounter, "catalog_api_requests_total", "Total number of API requests"},
		{&t.errorCounter, "catalog_api_errors_total", "Total number of API requests answered with an error status"},
		{&t.pageFetchCounter, "catalog_page_fetches_total", "Pages served, by source"},
		{&t.detailFetchCounter, "catalog_detail_fetches_total", "Detail lookups, by source and outcome"},
		{&t.enrichmentCounter, "catalog_enrichments_total", "Enrichment outcomes, by outcome"},
		{&t.cacheWriteFailures, "catalog_cache_write_failures_total", "Background cache writes that failed"},
		{&t.warmUpEntries, "catalog_warmup_entries_total", "List entries persisted by the bulk warm-up"},
	}
	for _, c := range counters {
		counter, err := t.meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	t.durationHistogram, err = t.meter.Float64Histogram(
		"catalog_api_request_duration_seconds",
		metric.WithDescription("Duration of API requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	slog.Info("Catalog telemetry initialized")
	return t, nil
}

// RecordRequest records a finished HTTP request
func (t *CatalogTelemetry) RecordRequest(ctx context.Context, m RequestMetrics) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", m.Method),
		attribute.String("endpoint", m.Endpoint),
		attribute.Int("status_code", m.StatusCode),
		attribute.String("client_ip_type", m.ClientIPType),
	)

	if m.StatusCode >= 400 {
		t.errorCounter.Add(ctx, 1, attrs)
		slog.Debug("Recorded API request error",
			"method", m.Method,
			"endpoint", m.Endpoint,
			"status_code", m.StatusCode,
			"error", m.ErrorMessage)
	} else {
		t.requestCounter.Add(ctx, 1, attrs)
	}
	t.durationHistogram.Record(ctx, m.Duration.Seconds(), attrs)
}

// PageFetched counts a page served from source
func (t *CatalogTelemetry) PageFetched(ctx context.Context, source string) {
	if t == nil {
		return
	}
	t.pageFetchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// DetailFetched counts a detail lookup
func (t *CatalogTelemetry) DetailFetched(ctx context.Context, source, outcome string) {
	if t == nil {
		return
	}
	t.detailFetchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

// EnrichmentFinished counts one enrichment outcome
func (t *CatalogTelemetry) EnrichmentFinished(ctx context.Context, succeeded bool) {
	if t == nil {
		return
	}
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	t.enrichmentCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// CacheWriteFailed counts a failed background cache write
func (t *CatalogTelemetry) CacheWriteFailed(ctx context.Context, kind string) {
	if t == nil {
		return
	}
	t.cacheWriteFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// WarmUpPersisted counts entries written by the warm-up
func (t *CatalogTelemetry) WarmUpPersisted(ctx context.Context, n int) {
	if t == nil {
		return
	}
	t.warmUpEntries.Add(ctx, int64(n))
}
