package storage

import (
	"context"
	"time"

	"creature-catalog-api/internal/models"
)

// LocalStorage defines the interface for the local catalog store.
// List entries are keyed by string id and ordered by catalog position;
// detail records are keyed by integer id.
type LocalStorage interface {
	// Initialize the storage
	Initialize(ctx context.Context) error

	// Close the storage
	Close() error

	// List entry operations. ListEntries returns the entries whose
	// position lies in [offset, offset+limit); limit <= 0 means unbounded.
	UpsertEntries(ctx context.Context, entries []models.StoredEntry) error
	ListEntries(ctx context.Context, offset, limit int) ([]models.StoredEntry, error)
	CountEntries(ctx context.Context) (int, error)

	// UpsertPage writes entries and, when total > 0, the remote total
	// atomically
	UpsertPage(ctx context.Context, entries []models.StoredEntry, total int) error

	// Total number of entries reported by the remote catalog, 0 if unknown
	SetTotalCount(ctx context.Context, total int) error
	GetTotalCount(ctx context.Context) (int, error)

	// Detail operations. GetDetail returns models.ErrNotFound on a miss.
	GetDetail(ctx context.Context, id int) (*models.DetailRecord, error)
	UpsertDetail(ctx context.Context, record models.DetailRecord) error

	// Clear removes every list entry, detail record and metadata value
	Clear(ctx context.Context) error

	// Statistics
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides information about the local storage
type StorageStats struct {
	Driver        string    `json:"driver"`
	EntryCount    int       `json:"entryCount"`
	DetailCount   int       `json:"detailCount"`
	TotalCount    int       `json:"totalCount"`
	InitializedAt time.Time `json:"initializedAt"`
}
