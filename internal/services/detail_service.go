package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"creature-catalog-api/internal/cache"
	"creature-catalog-api/internal/config"
	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/telemetry"
)

// DetailSource fetches one detail record from the remote catalog
type DetailSource interface {
	FetchDetail(ctx context.Context, id int) (*models.DetailRecord, error)
}

// DetailService serves detail records through the cache gate, falling
// back to deduplicated, retried network fetches
type DetailService struct {
	source    DetailSource
	gate      *cache.Gate
	cfg       config.Pipeline
	inflight  *inflightGroup[*models.DetailRecord]
	telemetry *telemetry.CatalogTelemetry
	logger    *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// ServiceOption customises the services in this package
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger    *slog.Logger
	telemetry *telemetry.CatalogTelemetry
}

// WithLogger sets the service logger
func WithLogger(l *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = l }
}

// WithTelemetry attaches metric instruments
func WithTelemetry(t *telemetry.CatalogTelemetry) ServiceOption {
	return func(o *serviceOptions) { o.telemetry = t }
}

func applyOptions(opts []ServiceOption) serviceOptions {
	o := serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewDetailService creates a detail service
func NewDetailService(source DetailSource, gate *cache.Gate, cfg config.Pipeline, opts ...ServiceOption) *DetailService {
	o := applyOptions(opts)
	baseCtx, cancel := context.WithCancel(context.Background())

	return &DetailService{
		source:    source,
		gate:      gate,
		cfg:       cfg,
		inflight:  newInflightGroup[*models.DetailRecord](baseCtx, o.logger),
		telemetry: o.telemetry,
		logger:    o.logger,
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
}

// FetchDetail returns the detail record for id. A fresh cached record is
// served directly and refreshed in the background once it is older than
// the refresh threshold. Otherwise the record is fetched from the
// network; on a connectivity failure a stale cached copy is served if
// one exists.
func (s *DetailService) FetchDetail(ctx context.Context, id int) (*models.DetailRecord, error) {
	if id <= 0 {
		return nil, models.NewError(models.ErrInvalidArgument, "id must be positive", nil)
	}

	cached, err := s.gate.GetIfFresh(ctx, id)
	if err != nil {
		s.logger.Warn("Cache read failed, fetching from network", "id", id, "error", err)
	}
	if cached != nil {
		if s.gate.NeedsRefresh(cached.LastUpdatedAt) {
			s.refreshInBackground(id)
		}
		s.telemetry.DetailFetched(ctx, "cache", "success")
		return cached, nil
	}

	record, err := s.fetchShared(ctx, id)
	if err == nil {
		s.telemetry.DetailFetched(ctx, "network", "success")
		return record, nil
	}

	if errors.Is(err, models.ErrNoConnectivity) {
		stale, staleErr := s.gate.GetEvenIfStale(ctx, id)
		if staleErr == nil && stale != nil {
			s.logger.Info("Serving stale detail while offline", "id", id, "last_updated_at", stale.LastUpdatedAt)
			s.telemetry.DetailFetched(ctx, "stale", "success")
			return stale, nil
		}
	}

	s.telemetry.DetailFetched(ctx, "network", "failure")
	return nil, err
}

// InFlight returns the number of distinct network fetches running
func (s *DetailService) InFlight() int {
	return s.inflight.Len()
}

// Flush waits for the background refreshes and cache writes started so far
func (s *DetailService) Flush() {
	s.wg.Wait()
}

// Close cancels background refreshes and waits for pending cache writes
func (s *DetailService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *DetailService) fetchShared(ctx context.Context, id int) (*models.DetailRecord, error) {
	record, err, shared := s.inflight.Do(ctx, strconv.Itoa(id), func(callCtx context.Context) (*models.DetailRecord, error) {
		return s.fetchRemote(callCtx, id)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, models.NewError(models.ErrUnexpected, "detail fetch cancelled", err)
		}
		return nil, err
	}
	if shared {
		s.logger.Debug("Detail fetch deduplicated", "id", id)
	}
	return record, nil
}

// fetchRemote runs the retried network fetch under the detail timeout
// and schedules the cache write
func (s *DetailService) fetchRemote(ctx context.Context, id int) (*models.DetailRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DetailTimeout)
	defer cancel()

	attempt := 0
	record, err := backoff.Retry(ctx,
		func() (*models.DetailRecord, error) {
			attempt++
			return s.source.FetchDetail(ctx, id)
		},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.cfg.RetryAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Debug("Detail fetch attempt failed, retrying",
				"id", id,
				"attempt", attempt,
				"next_delay", next.String(),
				"error", err)
		}),
	)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, models.NewError(models.ErrTimeout, "detail fetch timed out", err)
		case errors.Is(err, context.Canceled):
			return nil, models.NewError(models.ErrUnexpected, "detail fetch cancelled", err)
		}
		s.logger.Warn("Detail fetch failed", "id", id, "attempts", attempt, "error", err)
		return nil, err
	}

	record.LastUpdatedAt = s.gate.Now()
	s.persistAsync(*record)
	return record, nil
}

// newBackOff doubles the delay after each failed attempt, without jitter
func (s *DetailService) newBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.RetryInitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         s.cfg.DetailTimeout,
	}
}

func (s *DetailService) persistAsync(record models.DetailRecord) {
	s.spawn(func() {
		ctx := context.WithoutCancel(s.baseCtx)
		if err := s.gate.Put(ctx, record); err != nil {
			s.logger.Warn("Failed to cache detail", "id", record.ID, "error", err)
			s.telemetry.CacheWriteFailed(ctx, "detail")
		}
	})
}

func (s *DetailService) refreshInBackground(id int) {
	s.spawn(func() {
		if _, err := s.fetchShared(s.baseCtx, id); err != nil {
			s.logger.Debug("Background detail refresh failed", "id", id, "error", err)
			return
		}
		s.logger.Debug("Background detail refresh completed", "id", id)
	})
}

// spawn runs fn on a tracked goroutine unless the service is closed
func (s *DetailService) spawn(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}
