package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"creature-catalog-api/internal/cache"
	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/telemetry"
)

// PageSource fetches one page of list entries from the remote catalog
type PageSource interface {
	FetchPage(ctx context.Context, offset, limit int) (*models.Page, error)
}

// PageService serves catalog pages through the cache gate
type PageService struct {
	source    PageSource
	gate      *cache.Gate
	warmUp    *WarmUpManager
	pageSize  int
	telemetry *telemetry.CatalogTelemetry
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPageService creates a page service. warmUp may be nil to disable
// the bulk warm-up.
func NewPageService(source PageSource, gate *cache.Gate, warmUp *WarmUpManager, pageSize int, opts ...ServiceOption) *PageService {
	o := applyOptions(opts)
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	return &PageService{
		source:    source,
		gate:      gate,
		warmUp:    warmUp,
		pageSize:  pageSize,
		telemetry: o.telemetry,
		logger:    o.logger,
	}
}

// PageSize returns the default page size
func (s *PageService) PageSize() int {
	return s.pageSize
}

// FetchPage returns the entries at [offset, offset+limit). A limit of
// zero selects the default page size.
func (s *PageService) FetchPage(ctx context.Context, offset, limit int) (*models.Page, error) {
	if offset < 0 {
		return nil, models.NewError(models.ErrInvalidArgument, "offset must not be negative", nil)
	}
	if limit < 0 {
		return nil, models.NewError(models.ErrInvalidArgument, "limit must be positive", nil)
	}
	if limit == 0 {
		limit = s.pageSize
	}

	cached, err := s.gate.GetPageIfFresh(ctx, offset, limit)
	if err != nil {
		s.logger.Warn("Cache read failed, fetching page from network", "offset", offset, "error", err)
	}
	if cached != nil {
		s.logger.Debug("Serving page from cache", "offset", offset, "limit", limit)
		s.telemetry.PageFetched(ctx, string(models.PageSourceCache))
		return cached, nil
	}

	page, err := s.source.FetchPage(ctx, offset, limit)
	if err != nil {
		return s.fallback(ctx, offset, limit, err)
	}
	page.Source = models.PageSourceNetwork

	if offset == 0 && s.warmUp != nil {
		cold, coldErr := s.gate.IsCold(ctx)
		if coldErr != nil {
			s.logger.Warn("Could not check cache state", "error", coldErr)
		} else if cold && s.warmUp.Trigger(page.TotalCount) {
			s.logger.Info("Cold cache, bulk warm-up started", "total_count", page.TotalCount)
		}
	}

	s.persistAsync(offset, page)
	s.telemetry.PageFetched(ctx, string(models.PageSourceNetwork))
	return page, nil
}

// fallback serves a stale cached page when the network is unreachable
func (s *PageService) fallback(ctx context.Context, offset, limit int, cause error) (*models.Page, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, models.NewError(models.ErrUnexpected, "page fetch cancelled", ctxErr)
	}

	if !errors.Is(cause, models.ErrNoConnectivity) {
		s.logger.Error("Page fetch failed", "offset", offset, "limit", limit, "error", cause)
		return nil, models.NewError(models.ErrServer, "Server error", cause)
	}

	stale, err := s.gate.GetPageEvenIfStale(ctx, offset, limit)
	if err != nil {
		s.logger.Warn("Could not read stale page", "offset", offset, "error", err)
	}
	if stale != nil {
		s.logger.Info("Offline, serving stale page", "offset", offset, "items", len(stale.Items))
		s.telemetry.PageFetched(ctx, string(models.PageSourceStale))
		return stale, nil
	}
	return nil, models.NewError(models.ErrNoConnectivity, "No internet connection", cause)
}

func (s *PageService) persistAsync(offset int, page *models.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	snapshot := *page
	snapshot.Items = append([]models.ListEntry(nil), page.Items...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.Background()
		if err := s.gate.PutPage(ctx, offset, &snapshot); err != nil {
			s.logger.Warn("Failed to cache page", "offset", offset, "error", err)
			s.telemetry.CacheWriteFailed(ctx, "page")
		}
	}()
}

// Close waits for pending cache writes
func (s *PageService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

// Flush waits for the cache writes scheduled so far
func (s *PageService) Flush() {
	s.wg.Wait()
}
