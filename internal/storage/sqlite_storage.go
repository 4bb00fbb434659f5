package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"creature-catalog-api/internal/models"
)

const metaTotalCount = "total_count"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS list_entries (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	source_ref TEXT NOT NULL,
	position   INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_list_entries_position ON list_entries(position);

CREATE TABLE IF NOT EXISTS details (
	id         INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	height     INTEGER NOT NULL,
	weight     INTEGER NOT NULL,
	image_url  TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS detail_types (
	detail_id INTEGER NOT NULL,
	ord       INTEGER NOT NULL,
	slot      INTEGER NOT NULL,
	name      TEXT NOT NULL,
	PRIMARY KEY (detail_id, ord)
);

CREATE TABLE IF NOT EXISTS detail_stats (
	detail_id    INTEGER NOT NULL,
	ord          INTEGER NOT NULL,
	name         TEXT NOT NULL,
	base_value   INTEGER NOT NULL,
	effort_value INTEGER NOT NULL,
	PRIMARY KEY (detail_id, ord)
);

CREATE TABLE IF NOT EXISTS catalog_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteStorage implements LocalStorage on an SQLite file
type SQLiteStorage struct {
	db            *sql.DB
	path          string
	initializedAt time.Time
}

// NewSQLiteStorage opens (creating if needed) the database at path.
// WAL and a busy timeout are applied to every pooled connection.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite storage: mkdir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: open: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	return &SQLiteStorage{db: db, path: path, initializedAt: time.Now()}, nil
}

// Initialize creates the schema
func (s *SQLiteStorage) Initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite storage: ping: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite storage: schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *SQLiteStorage) Path() string {
	return s.path
}

// UpsertEntries inserts or replaces list entries in one transaction
func (s *SQLiteStorage) UpsertEntries(ctx context.Context, entries []models.StoredEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertEntries(ctx, tx, entries)
	})
}

// UpsertPage writes entries and, when total > 0, the remote total in
// one transaction
func (s *SQLiteStorage) UpsertPage(ctx context.Context, entries []models.StoredEntry, total int) error {
	if len(entries) == 0 && total <= 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertEntries(ctx, tx, entries); err != nil {
			return err
		}
		if total <= 0 {
			return nil
		}
		return setTotalCount(ctx, tx, total)
	})
}

func upsertEntries(ctx context.Context, tx *sql.Tx, entries []models.StoredEntry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO list_entries (id, name, source_ref, position, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source_ref = excluded.source_ref,
			position = excluded.position,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare entry upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Name, e.SourceRef, e.Position, e.UpdatedAt.UnixNano()); err != nil {
			return fmt.Errorf("upsert entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// ListEntries returns entries with offset <= position < offset+limit
func (s *SQLiteStorage) ListEntries(ctx context.Context, offset, limit int) ([]models.StoredEntry, error) {
	upper := int64(1 << 62)
	if limit > 0 {
		upper = int64(offset) + int64(limit)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source_ref, position, updated_at
		FROM list_entries
		WHERE position >= ? AND position < ?
		ORDER BY position, id`, offset, upper)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: list entries: %w", err)
	}
	defer rows.Close()

	out := []models.StoredEntry{}
	for rows.Next() {
		var e models.StoredEntry
		var updated int64
		if err := rows.Scan(&e.ID, &e.Name, &e.SourceRef, &e.Position, &updated); err != nil {
			return nil, fmt.Errorf("sqlite storage: scan entry: %w", err)
		}
		e.UpdatedAt = time.Unix(0, updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEntries returns the number of stored list entries
func (s *SQLiteStorage) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM list_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite storage: count entries: %w", err)
	}
	return n, nil
}

// SetTotalCount records the remote catalog size
func (s *SQLiteStorage) SetTotalCount(ctx context.Context, total int) error {
	if err := setTotalCount(ctx, s.db, total); err != nil {
		return fmt.Errorf("sqlite storage: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setTotalCount(ctx context.Context, db execer, total int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO catalog_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaTotalCount, strconv.Itoa(total))
	if err != nil {
		return fmt.Errorf("set total count: %w", err)
	}
	return nil
}

// GetTotalCount returns the recorded remote catalog size, 0 if unknown
func (s *SQLiteStorage) GetTotalCount(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM catalog_meta WHERE key = ?`, metaTotalCount).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite storage: get total count: %w", err)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("sqlite storage: corrupt total count %q: %w", value, err)
	}
	return n, nil
}

// GetDetail loads a detail record with its types and stats from one
// transaction so a concurrent upsert is never observed half-applied.
func (s *SQLiteStorage) GetDetail(ctx context.Context, id int) (*models.DetailRecord, error) {
	var record *models.DetailRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := readDetail(ctx, tx, id)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func readDetail(ctx context.Context, tx *sql.Tx, id int) (*models.DetailRecord, error) {
	var r models.DetailRecord
	var updated int64
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, height, weight, image_url, updated_at
		FROM details WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Height, &r.Weight, &r.ImageURL, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get detail %d: %w", id, err)
	}
	r.LastUpdatedAt = time.Unix(0, updated)

	typeRows, err := tx.QueryContext(ctx, `
		SELECT slot, name FROM detail_types WHERE detail_id = ? ORDER BY ord`, id)
	if err != nil {
		return nil, fmt.Errorf("get detail %d types: %w", id, err)
	}
	r.Types = []models.TypeSlot{}
	for typeRows.Next() {
		var t models.TypeSlot
		if err := typeRows.Scan(&t.Slot, &t.Name); err != nil {
			typeRows.Close()
			return nil, fmt.Errorf("scan type: %w", err)
		}
		r.Types = append(r.Types, t)
	}
	typeRows.Close()
	if err := typeRows.Err(); err != nil {
		return nil, err
	}

	statRows, err := tx.QueryContext(ctx, `
		SELECT name, base_value, effort_value FROM detail_stats WHERE detail_id = ? ORDER BY ord`, id)
	if err != nil {
		return nil, fmt.Errorf("get detail %d stats: %w", id, err)
	}
	defer statRows.Close()
	r.Stats = []models.Stat{}
	for statRows.Next() {
		var st models.Stat
		if err := statRows.Scan(&st.Name, &st.BaseValue, &st.EffortValue); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		r.Stats = append(r.Stats, st)
	}
	if err := statRows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertDetail replaces a detail record and its child rows atomically
func (s *SQLiteStorage) UpsertDetail(ctx context.Context, r models.DetailRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO details (id, name, height, weight, image_url, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				height = excluded.height,
				weight = excluded.weight,
				image_url = excluded.image_url,
				updated_at = excluded.updated_at`,
			r.ID, r.Name, r.Height, r.Weight, r.ImageURL, r.LastUpdatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("upsert detail %d: %w", r.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM detail_types WHERE detail_id = ?`, r.ID); err != nil {
			return fmt.Errorf("clear types of %d: %w", r.ID, err)
		}
		for i, t := range r.Types {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO detail_types (detail_id, ord, slot, name) VALUES (?, ?, ?, ?)`,
				r.ID, i, t.Slot, t.Name); err != nil {
				return fmt.Errorf("insert type of %d: %w", r.ID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM detail_stats WHERE detail_id = ?`, r.ID); err != nil {
			return fmt.Errorf("clear stats of %d: %w", r.ID, err)
		}
		for i, st := range r.Stats {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO detail_stats (detail_id, ord, name, base_value, effort_value) VALUES (?, ?, ?, ?, ?)`,
				r.ID, i, st.Name, st.BaseValue, st.EffortValue); err != nil {
				return fmt.Errorf("insert stat of %d: %w", r.ID, err)
			}
		}
		return nil
	})
}

// Clear removes all persisted entries, details and metadata
func (s *SQLiteStorage) Clear(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"detail_stats", "detail_types", "details", "list_entries", "catalog_meta"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{Driver: "sqlite", InitializedAt: s.initializedAt}

	var err error
	if stats.EntryCount, err = s.CountEntries(ctx); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM details`).Scan(&stats.DetailCount); err != nil {
		return nil, fmt.Errorf("sqlite storage: count details: %w", err)
	}
	if stats.TotalCount, err = s.GetTotalCount(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite storage: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sqlite storage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite storage: commit: %w", err)
	}
	return nil
}
