package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/storage"
)

// Gate decides whether locally stored catalog data is fresh enough to
// serve. Freshness is a pure function of now - LastUpdatedAt; the store
// serializes its own writes.
type Gate struct {
	store        storage.LocalStorage
	ttl          time.Duration
	refreshAfter time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// Option customises a Gate
type Option func(*Gate)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the gate logger
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a cache gate over store. Records younger than ttl are
// fresh; fresh records older than refreshAfter should be refreshed in
// the background.
func NewGate(store storage.LocalStorage, ttl, refreshAfter time.Duration, opts ...Option) *Gate {
	g := &Gate{
		store:        store,
		ttl:          ttl,
		refreshAfter: refreshAfter,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}

	g.logger.Info("Cache gate initialized",
		"ttl", ttl.String(),
		"refresh_after", refreshAfter.String())

	return g
}

// Now returns the gate's current time
func (g *Gate) Now() time.Time {
	return g.now()
}

// IsFresh reports whether a record written at t is still within the TTL
func (g *Gate) IsFresh(t time.Time) bool {
	return g.now().Sub(t) < g.ttl
}

// NeedsRefresh reports whether a record written at t is old enough to
// warrant a background refresh
func (g *Gate) NeedsRefresh(t time.Time) bool {
	return g.now().Sub(t) >= g.refreshAfter
}

// GetIfFresh returns the stored record if it is within the TTL, nil otherwise
func (g *Gate) GetIfFresh(ctx context.Context, id int) (*models.DetailRecord, error) {
	record, err := g.GetEvenIfStale(ctx, id)
	if err != nil || record == nil {
		return nil, err
	}
	if !g.IsFresh(record.LastUpdatedAt) {
		g.logger.Debug("Cached detail expired", "id", id, "last_updated_at", record.LastUpdatedAt.Format(time.RFC3339))
		return nil, nil
	}
	return record, nil
}

// GetEvenIfStale returns the stored record regardless of age, nil on a miss
func (g *Gate) GetEvenIfStale(ctx context.Context, id int) (*models.DetailRecord, error) {
	record, err := g.store.GetDetail(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache gate: get detail %d: %w", id, err)
	}
	return record, nil
}

// Put stamps the record with the current time and persists it
func (g *Gate) Put(ctx context.Context, record models.DetailRecord) error {
	record.LastUpdatedAt = g.now()
	if err := g.store.UpsertDetail(ctx, record); err != nil {
		return fmt.Errorf("cache gate: put detail %d: %w", record.ID, err)
	}
	return nil
}

// Clear removes every cached entry and detail
func (g *Gate) Clear(ctx context.Context) error {
	if err := g.store.Clear(ctx); err != nil {
		return fmt.Errorf("cache gate: clear: %w", err)
	}
	g.logger.Info("Cache cleared")
	return nil
}

// IsCold reports whether no list entry has ever been stored
func (g *Gate) IsCold(ctx context.Context) (bool, error) {
	n, err := g.store.CountEntries(ctx)
	if err != nil {
		return false, fmt.Errorf("cache gate: count entries: %w", err)
	}
	return n == 0, nil
}

// GetPageIfFresh returns a cached page only when it is complete and its
// oldest entry is within the TTL
func (g *Gate) GetPageIfFresh(ctx context.Context, offset, limit int) (*models.Page, error) {
	entries, total, err := g.loadRange(ctx, offset, limit)
	if err != nil || len(entries) == 0 {
		return nil, err
	}

	complete := len(entries) == limit || (total > 0 && offset+len(entries) >= total)
	if !complete {
		return nil, nil
	}
	for _, e := range entries {
		if !g.IsFresh(e.UpdatedAt) {
			return nil, nil
		}
	}
	return buildPage(entries, offset, limit, total, models.PageSourceCache), nil
}

// GetPageEvenIfStale returns whatever is cached for the range, nil if nothing is
func (g *Gate) GetPageEvenIfStale(ctx context.Context, offset, limit int) (*models.Page, error) {
	entries, total, err := g.loadRange(ctx, offset, limit)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return buildPage(entries, offset, limit, total, models.PageSourceStale), nil
}

// PutPage persists a fetched page at its catalog positions
func (g *Gate) PutPage(ctx context.Context, offset int, page *models.Page) error {
	return g.PutEntries(ctx, offset, page.Items, page.TotalCount)
}

// PutEntries persists entries starting at catalog position offset and
// records the remote total in the same write
func (g *Gate) PutEntries(ctx context.Context, offset int, items []models.ListEntry, total int) error {
	now := g.now()
	stored := make([]models.StoredEntry, 0, len(items))
	for i, item := range items {
		stored = append(stored, models.StoredEntry{ListEntry: item, Position: offset + i, UpdatedAt: now})
	}
	if err := g.store.UpsertPage(ctx, stored, total); err != nil {
		return fmt.Errorf("cache gate: put entries: %w", err)
	}
	return nil
}

func (g *Gate) loadRange(ctx context.Context, offset, limit int) ([]models.StoredEntry, int, error) {
	entries, err := g.store.ListEntries(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("cache gate: list entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, 0, nil
	}
	total, err := g.store.GetTotalCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("cache gate: total count: %w", err)
	}
	return entries, total, nil
}

func buildPage(entries []models.StoredEntry, offset, limit, total int, source models.PageSource) *models.Page {
	items := make([]models.ListEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, e.ListEntry)
	}

	hasMore := len(entries) == limit
	if total > 0 {
		hasMore = offset+len(entries) < total
	}
	return &models.Page{
		Items:      items,
		HasMore:    hasMore,
		TotalCount: total,
		Source:     source,
	}
}
