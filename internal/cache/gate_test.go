package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creature-catalog-api/internal/logging"
	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/storage"
)

const (
	testTTL     = 24 * time.Hour
	testRefresh = 12 * time.Hour
)

var epoch = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

func newTestGate(t *testing.T) (*Gate, *storage.MemoryStorage, *time.Time) {
	t.Helper()
	store := storage.NewMemoryStorage()
	now := epoch
	gate := NewGate(store, testTTL, testRefresh,
		WithClock(func() time.Time { return now }),
		WithLogger(logging.Discard()))
	return gate, store, &now
}

func entries(offset, n int) []models.ListEntry {
	out := make([]models.ListEntry, 0, n)
	for i := offset; i < offset+n; i++ {
		id := strconv.Itoa(i + 1)
		out = append(out, models.ListEntry{ID: id, Name: "creature-" + id, SourceRef: "/pokemon/" + id + "/"})
	}
	return out
}

func TestGate_FreshnessBoundary(t *testing.T) {
	gate, _, _ := newTestGate(t)

	tests := []struct {
		name      string
		writtenAt time.Time
		fresh     bool
		refresh   bool
	}{
		{name: "just written", writtenAt: epoch, fresh: true, refresh: false},
		{name: "ttl minus one", writtenAt: epoch.Add(-testTTL + time.Nanosecond), fresh: true, refresh: true},
		{name: "exactly ttl", writtenAt: epoch.Add(-testTTL), fresh: false, refresh: true},
		{name: "ttl plus one", writtenAt: epoch.Add(-testTTL - time.Nanosecond), fresh: false, refresh: true},
		{name: "refresh minus one", writtenAt: epoch.Add(-testRefresh + time.Nanosecond), fresh: true, refresh: false},
		{name: "exactly refresh", writtenAt: epoch.Add(-testRefresh), fresh: true, refresh: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fresh, gate.IsFresh(tt.writtenAt))
			assert.Equal(t, tt.refresh, gate.NeedsRefresh(tt.writtenAt))
		})
	}
}

func TestGate_PutStampsWriteTime(t *testing.T) {
	// Arrange
	gate, store, _ := newTestGate(t)
	ctx := context.Background()
	record := models.DetailRecord{ID: 1, Name: "bulbasaur", LastUpdatedAt: epoch.Add(-100 * time.Hour)}

	// Act
	require.NoError(t, gate.Put(ctx, record))

	// Assert
	stored, err := store.GetDetail(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stored.LastUpdatedAt.Equal(epoch))
}

func TestGate_GetIfFreshAndEvenIfStale(t *testing.T) {
	gate, _, now := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, gate.Put(ctx, models.DetailRecord{ID: 4, Name: "charmander"}))

	got, err := gate.GetIfFresh(ctx, 4)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "charmander", got.Name)

	*now = epoch.Add(testTTL + time.Nanosecond)

	got, err = gate.GetIfFresh(ctx, 4)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = gate.GetEvenIfStale(ctx, 4)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "charmander", got.Name)
}

func TestGate_MissIsNilWithoutError(t *testing.T) {
	gate, _, _ := newTestGate(t)

	fresh, err := gate.GetIfFresh(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, fresh)

	stale, err := gate.GetEvenIfStale(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestGate_PageFreshness(t *testing.T) {
	// Arrange
	gate, _, now := newTestGate(t)
	ctx := context.Background()
	page := &models.Page{Items: entries(0, 20), HasMore: true, TotalCount: 45}
	require.NoError(t, gate.PutPage(ctx, 0, page))

	// Act
	fresh, err := gate.GetPageIfFresh(ctx, 0, 20)
	require.NoError(t, err)

	// Assert
	require.NotNil(t, fresh)
	assert.Equal(t, models.PageSourceCache, fresh.Source)
	assert.Equal(t, page.Items, fresh.Items)
	assert.True(t, fresh.HasMore)
	assert.Equal(t, 45, fresh.TotalCount)

	*now = epoch.Add(testTTL)
	expired, err := gate.GetPageIfFresh(ctx, 0, 20)
	require.NoError(t, err)
	assert.Nil(t, expired)

	stale, err := gate.GetPageEvenIfStale(ctx, 0, 20)
	require.NoError(t, err)
	require.NotNil(t, stale)
	assert.Equal(t, models.PageSourceStale, stale.Source)
}

func TestGate_PageCompleteness(t *testing.T) {
	gate, _, _ := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, gate.PutEntries(ctx, 40, entries(40, 5), 45))
	require.NoError(t, gate.PutEntries(ctx, 20, entries(20, 10), 45))

	tail, err := gate.GetPageIfFresh(ctx, 40, 20)
	require.NoError(t, err)
	require.NotNil(t, tail, "last page reaching the total count is complete")
	assert.Len(t, tail.Items, 5)
	assert.False(t, tail.HasMore)

	partial, err := gate.GetPageIfFresh(ctx, 20, 20)
	require.NoError(t, err)
	assert.Nil(t, partial, "page with a gap is not served as fresh")

	empty, err := gate.GetPageEvenIfStale(ctx, 100, 20)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestGate_ClearAndIsCold(t *testing.T) {
	gate, _, _ := newTestGate(t)
	ctx := context.Background()

	cold, err := gate.IsCold(ctx)
	require.NoError(t, err)
	assert.True(t, cold)

	require.NoError(t, gate.PutEntries(ctx, 0, entries(0, 3), 3))
	require.NoError(t, gate.Put(ctx, models.DetailRecord{ID: 1, Name: "bulbasaur"}))

	cold, err = gate.IsCold(ctx)
	require.NoError(t, err)
	assert.False(t, cold)

	require.NoError(t, gate.Clear(ctx))

	cold, err = gate.IsCold(ctx)
	require.NoError(t, err)
	assert.True(t, cold)
	record, err := gate.GetEvenIfStale(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, record)
}
