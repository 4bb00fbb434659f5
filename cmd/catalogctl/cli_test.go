package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creature-catalog-api/internal/app"
	"creature-catalog-api/internal/config"
	"creature-catalog-api/internal/logging"
	"creature-catalog-api/internal/models"
)

const catalogSize = 30

// fakeCatalog serves a fixed catalog of catalogSize creatures
type fakeCatalog struct {
	offline bool
}

func (f *fakeCatalog) FetchPage(ctx context.Context, offset, limit int) (*models.Page, error) {
	if f.offline {
		return nil, models.NewError(models.ErrNoConnectivity, "no connection", errors.New("dial tcp: connection refused"))
	}
	end := min(offset+limit, catalogSize)
	items := make([]models.ListEntry, 0, max(end-offset, 0))
	for i := offset; i < end; i++ {
		id := strconv.Itoa(i + 1)
		items = append(items, models.ListEntry{ID: id, Name: "creature-" + id, SourceRef: "/pokemon/" + id + "/"})
	}
	return &models.Page{Items: items, HasMore: end < catalogSize, TotalCount: catalogSize}, nil
}

func (f *fakeCatalog) FetchDetail(ctx context.Context, id int) (*models.DetailRecord, error) {
	if f.offline {
		return nil, models.NewError(models.ErrNoConnectivity, "no connection", errors.New("dial tcp: connection refused"))
	}
	typeName := "fire"
	if id%2 == 0 {
		typeName = "grass"
	}
	return &models.DetailRecord{
		ID:     id,
		Name:   fmt.Sprintf("creature-%d", id),
		Height: id,
		Weight: id * 10,
		Types:  []models.TypeSlot{{Name: typeName, Slot: 1}},
		Stats: []models.Stat{
			{Name: models.StatHP, BaseValue: id * 2},
			{Name: models.StatAttack, BaseValue: id},
		},
	}, nil
}

// testFactory builds apps sharing one SQLite file, so state persists
// between commands like it does between real invocations
func testFactory(t *testing.T, source *fakeCatalog) appFactory {
	t.Helper()
	cfg := &config.Config{
		StorageDriver:          app.DriverSQLite,
		SQLitePath:             filepath.Join(t.TempDir(), "catalog.db"),
		SessionIdleTimeout:     time.Hour,
		SessionCleanupInterval: time.Hour,
		Pipeline:               config.DefaultPipeline(),
	}
	return func(ctx context.Context) (*app.App, error) {
		return app.New(ctx, cfg, app.WithSource(source), app.WithLogger(logging.Discard()))
	}
}

func run(t *testing.T, factory appFactory, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPageCommand(t *testing.T) {
	factory := testFactory(t, &fakeCatalog{})

	out, err := run(t, factory, "page", "--offset", "0", "--limit", "5")

	require.NoError(t, err)
	assert.Contains(t, out, "creature-1")
	assert.Contains(t, out, "creature-5")
	assert.NotContains(t, out, "creature-6")
	assert.Contains(t, out, "source=network total=30 has_more=true")
}

func TestPageCommand_OfflineWithoutCache(t *testing.T) {
	factory := testFactory(t, &fakeCatalog{offline: true})

	_, err := run(t, factory, "page")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "No internet connection")
}

func TestShowCommand(t *testing.T) {
	factory := testFactory(t, &fakeCatalog{})

	out, err := run(t, factory, "show", "7")

	require.NoError(t, err)
	assert.Contains(t, out, "#7 creature-7")
	assert.Contains(t, out, "types:  fire")
	assert.Contains(t, out, "weight: 70")

	_, err = run(t, factory, "show", "seven")
	assert.Error(t, err)
}

func TestBrowseCommand_FiltersAndSorts(t *testing.T) {
	// Arrange
	factory := testFactory(t, &fakeCatalog{})

	// Act
	out, err := run(t, factory, "browse", "--pages", "2", "--tags", "grass", "--sort", "hp", "--desc", "--min-hp", "10")

	// Assert
	require.NoError(t, err)
	assert.Contains(t, out, "showing 13 of 30 loaded")
	assert.NotContains(t, out, "creature-4 ")
	first := strings.Index(out, "creature-30")
	last := strings.Index(out, "creature-6 ")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, last)
	assert.Less(t, first, last)
}

func TestBrowseCommand_RejectsUnknownSortKey(t *testing.T) {
	factory := testFactory(t, &fakeCatalog{})

	_, err := run(t, factory, "browse", "--sort", "colour")

	assert.ErrorContains(t, err, "unknown sort key")
}

func TestExportCommand_WritesFilteredView(t *testing.T) {
	// Arrange
	factory := testFactory(t, &fakeCatalog{})
	path := filepath.Join(t.TempDir(), "export.json")

	// Act
	out, err := run(t, factory, "export", "--pages", "2", "--query", "creature-1", "--out", path)

	// Assert
	require.NoError(t, err)
	assert.Contains(t, out, "exported 11 creatures")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []models.DetailRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 11)
	assert.Equal(t, 1, records[0].ID)
	assert.Equal(t, 19, records[10].ID)
}

func TestCacheCommands(t *testing.T) {
	factory := testFactory(t, &fakeCatalog{})

	_, err := run(t, factory, "page")
	require.NoError(t, err)

	out, err := run(t, factory, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "driver:       sqlite")
	assert.NotContains(t, out, "entries:      0\n")

	out, err = run(t, factory, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cache cleared")

	out, err = run(t, factory, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "entries:      0\n")

	out, err = run(t, factory, "cache", "warm")
	require.NoError(t, err)
	assert.Contains(t, out, "cached 30 entries")

	out, err = run(t, factory, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "entries:      30\n")
}

func TestPageCommand_ServesCacheWhenOffline(t *testing.T) {
	source := &fakeCatalog{}
	factory := testFactory(t, source)

	_, err := run(t, factory, "cache", "warm")
	require.NoError(t, err)
	source.offline = true

	out, err := run(t, factory, "page", "--offset", "20")

	require.NoError(t, err)
	assert.Contains(t, out, "creature-21")
	assert.Contains(t, out, "source=cache")
}
