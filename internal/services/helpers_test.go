package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"creature-catalog-api/internal/cache"
	"creature-catalog-api/internal/config"
	"creature-catalog-api/internal/logging"
	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/storage"
)

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSource is a scripted remote catalog that counts calls
type fakeSource struct {
	mu          sync.Mutex
	pageCalls   []pageCall
	detailCalls map[int]int

	pageFn   func(ctx context.Context, offset, limit int) (*models.Page, error)
	detailFn func(ctx context.Context, id int) (*models.DetailRecord, error)
}

type pageCall struct {
	Offset, Limit int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		detailCalls: make(map[int]int),
		pageFn: func(ctx context.Context, offset, limit int) (*models.Page, error) {
			return catalogPage(offset, limit, 100), nil
		},
		detailFn: func(ctx context.Context, id int) (*models.DetailRecord, error) {
			return testRecord(id), nil
		},
	}
}

func (f *fakeSource) FetchPage(ctx context.Context, offset, limit int) (*models.Page, error) {
	f.mu.Lock()
	f.pageCalls = append(f.pageCalls, pageCall{Offset: offset, Limit: limit})
	fn := f.pageFn
	f.mu.Unlock()
	return fn(ctx, offset, limit)
}

func (f *fakeSource) FetchDetail(ctx context.Context, id int) (*models.DetailRecord, error) {
	f.mu.Lock()
	f.detailCalls[id]++
	fn := f.detailFn
	f.mu.Unlock()
	return fn(ctx, id)
}

func (f *fakeSource) PageCalls() []pageCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pageCall(nil), f.pageCalls...)
}

func (f *fakeSource) DetailCalls(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[id]
}

// catalogPage builds the page [offset, offset+limit) of a catalog of total items
func catalogPage(offset, limit, total int) *models.Page {
	page := &models.Page{TotalCount: total, Source: models.PageSourceNetwork}
	for i := offset; i < offset+limit && i < total; i++ {
		id := strconv.Itoa(i + 1)
		page.Items = append(page.Items, models.ListEntry{
			ID:        id,
			Name:      fmt.Sprintf("creature-%s", id),
			SourceRef: "https://catalog.test/api/v2/pokemon/" + id + "/",
		})
	}
	page.HasMore = offset+limit < total
	return page
}

func testRecord(id int) *models.DetailRecord {
	return &models.DetailRecord{
		ID:     id,
		Name:   fmt.Sprintf("creature-%d", id),
		Height: 7,
		Weight: 69,
		Types:  []models.TypeSlot{{Name: "grass", Slot: 1}},
		Stats:  []models.Stat{{Name: models.StatHP, BaseValue: 45}},
	}
}

func testPipeline() config.Pipeline {
	p := config.DefaultPipeline()
	p.RetryInitialDelay = time.Millisecond
	p.DetailTimeout = 2 * time.Second
	return p
}

type fixture struct {
	clock  *fakeClock
	store  *storage.MemoryStorage
	gate   *cache.Gate
	source *fakeSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Initialize(context.Background()))

	gate := cache.NewGate(store, config.DefaultCacheTTL, config.DefaultRefreshAfter,
		cache.WithClock(clock.Now),
		cache.WithLogger(logging.Discard()))

	return &fixture{clock: clock, store: store, gate: gate, source: newFakeSource()}
}

func (f *fixture) detailService(t *testing.T, p config.Pipeline) *DetailService {
	t.Helper()
	svc := NewDetailService(f.source, f.gate, p, WithLogger(logging.Discard()))
	t.Cleanup(svc.Close)
	return svc
}

// storeDetail writes a record aged by age relative to the fake clock
func (f *fixture) storeDetail(t *testing.T, id int, age time.Duration) {
	t.Helper()
	rec := testRecord(id)
	rec.Name = "cached"
	rec.LastUpdatedAt = f.clock.Now().Add(-age)
	require.NoError(t, f.store.UpsertDetail(context.Background(), *rec))
}

// storePage writes catalog entries aged by age relative to the fake clock
func (f *fixture) storePage(t *testing.T, offset, limit, total int, age time.Duration) {
	t.Helper()
	page := catalogPage(offset, limit, total)
	stored := make([]models.StoredEntry, 0, len(page.Items))
	for i, item := range page.Items {
		stored = append(stored, models.StoredEntry{
			ListEntry: item,
			Position:  offset + i,
			UpdatedAt: f.clock.Now().Add(-age),
		})
	}
	require.NoError(t, f.store.UpsertPage(context.Background(), stored, total))
}

func connectivityError() error {
	return models.NewError(models.ErrNoConnectivity, "no connection", fmt.Errorf("dial tcp: connection refused"))
}

func serverError() error {
	return models.NewError(models.ErrServer, "request failed", fmt.Errorf("status 500"))
}

// waiters returns the number of callers attached to key
func waiters[T any](g *inflightGroup[T], key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}
