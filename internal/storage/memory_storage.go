package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"creature-catalog-api/internal/models"
)

// MemoryStorage implements LocalStorage in process memory
type MemoryStorage struct {
	mu            sync.RWMutex
	entries       map[string]models.StoredEntry
	details       map[int]models.DetailRecord
	totalCount    int
	initializedAt time.Time
}

// NewMemoryStorage creates a new in-memory storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries:       make(map[string]models.StoredEntry),
		details:       make(map[int]models.DetailRecord),
		initializedAt: time.Now(),
	}
}

// Initialize is a no-op for memory storage
func (ms *MemoryStorage) Initialize(ctx context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (ms *MemoryStorage) Close() error {
	return nil
}

// UpsertEntries inserts or replaces list entries by id
func (ms *MemoryStorage) UpsertEntries(ctx context.Context, entries []models.StoredEntry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, e := range entries {
		ms.entries[e.ID] = e
	}
	return nil
}

// ListEntries returns the entries whose position lies in
// [offset, offset+limit), ordered by position. limit <= 0 means no upper bound.
func (ms *MemoryStorage) ListEntries(ctx context.Context, offset, limit int) ([]models.StoredEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := []models.StoredEntry{}
	for _, e := range ms.entries {
		if e.Position < offset {
			continue
		}
		if limit > 0 && e.Position >= offset+limit {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountEntries returns the number of stored list entries
func (ms *MemoryStorage) CountEntries(ctx context.Context) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.entries), nil
}

// UpsertPage writes entries and, when total > 0, the remote total under
// one lock
func (ms *MemoryStorage) UpsertPage(ctx context.Context, entries []models.StoredEntry, total int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, e := range entries {
		ms.entries[e.ID] = e
	}
	if total > 0 {
		ms.totalCount = total
	}
	return nil
}

// SetTotalCount records the remote catalog size
func (ms *MemoryStorage) SetTotalCount(ctx context.Context, total int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.totalCount = total
	return nil
}

// GetTotalCount returns the recorded remote catalog size
func (ms *MemoryStorage) GetTotalCount(ctx context.Context) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.totalCount, nil
}

// GetDetail returns a copy of the stored detail record
func (ms *MemoryStorage) GetDetail(ctx context.Context, id int) (*models.DetailRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	record, ok := ms.details[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := record.Clone()
	return &out, nil
}

// UpsertDetail inserts or replaces a detail record
func (ms *MemoryStorage) UpsertDetail(ctx context.Context, record models.DetailRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.details[record.ID] = record.Clone()
	return nil
}

// Clear drops everything
func (ms *MemoryStorage) Clear(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.entries = make(map[string]models.StoredEntry)
	ms.details = make(map[int]models.DetailRecord)
	ms.totalCount = 0
	return nil
}

// GetStorageStats returns storage statistics
func (ms *MemoryStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return &StorageStats{
		Driver:        "memory",
		EntryCount:    len(ms.entries),
		DetailCount:   len(ms.details),
		TotalCount:    ms.totalCount,
		InitializedAt: ms.initializedAt,
	}, nil
}
