package services

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"creature-catalog-api/internal/logging"
	"creature-catalog-api/internal/models"
)

// fetchFunc adapts a function to DetailFetcher
type fetchFunc func(ctx context.Context, id int) (*models.DetailRecord, error)

func (f fetchFunc) FetchDetail(ctx context.Context, id int) (*models.DetailRecord, error) {
	return f(ctx, id)
}

func entries(from, to int) []models.ListEntry {
	out := make([]models.ListEntry, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, models.ListEntry{ID: strconv.Itoa(i), Name: "creature-" + strconv.Itoa(i)})
	}
	return out
}

// concurrencyGauge records the highest number of overlapping calls
type concurrencyGauge struct {
	current atomic.Int32
	max     atomic.Int32
}

func (p *concurrencyGauge) enter() {
	n := p.current.Add(1)
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (p *concurrencyGauge) exit() {
	p.current.Add(-1)
}

func TestEnricher_PartialFailureIsIsolated(t *testing.T) {
	// Arrange
	failing := map[int]bool{6: true, 13: true}
	enricher := NewEnricher(fetchFunc(func(ctx context.Context, id int) (*models.DetailRecord, error) {
		if failing[id] {
			return nil, serverError()
		}
		return testRecord(id), nil
	}), 5, WithLogger(logging.Discard()))

	// Act
	batch := enricher.EnrichAll(context.Background(), entries(1, 20))
	var succeeded []int
	var failed []string
	for outcome := range batch.Results() {
		if outcome.Err != nil {
			failed = append(failed, outcome.EntryID)
			continue
		}
		succeeded = append(succeeded, outcome.Record.ID)
	}
	summary := batch.Wait()

	// Assert
	assert.Equal(t, BatchSummary{Requested: 20, Succeeded: 18, Failed: 2}, summary)
	assert.Len(t, succeeded, 18)
	assert.ElementsMatch(t, []string{"6", "13"}, failed)
	assert.ErrorIs(t, summary.Err(), models.ErrPartialFailure)
	assert.Equal(t, "Some items could not be loaded", models.UserMessage(summary.Err()))
}

func TestEnricher_ReturnsBeforeFetchesComplete(t *testing.T) {
	release := make(chan struct{})
	enricher := NewEnricher(fetchFunc(func(ctx context.Context, id int) (*models.DetailRecord, error) {
		<-release
		return testRecord(id), nil
	}), 5, WithLogger(logging.Discard()))

	batch := enricher.EnrichAll(context.Background(), entries(1, 3))

	select {
	case <-batch.Done():
		t.Fatal("batch finished before any fetch was released")
	default:
	}
	close(release)
	assert.Equal(t, 3, batch.Wait().Succeeded)
	assert.NoError(t, batch.Wait().Err())
}

func TestEnricher_AtMostFiveInFlightAcrossBatches(t *testing.T) {
	// Arrange
	gauge := &concurrencyGauge{}
	enricher := NewEnricher(fetchFunc(func(ctx context.Context, id int) (*models.DetailRecord, error) {
		gauge.enter()
		defer gauge.exit()
		time.Sleep(15 * time.Millisecond)
		return testRecord(id), nil
	}), 5, WithLogger(logging.Discard()))

	// Act
	first := enricher.EnrichAll(context.Background(), entries(1, 20))
	second := enricher.EnrichAll(context.Background(), entries(21, 40))
	first.Wait()
	second.Wait()

	// Assert
	assert.LessOrEqual(t, gauge.max.Load(), int32(5))
	assert.Greater(t, gauge.max.Load(), int32(1))
}

func TestEnricher_BatchWorkersStayWithinLimit(t *testing.T) {
	// Arrange
	release := make(chan struct{})
	var started atomic.Int32
	enricher := NewEnricher(fetchFunc(func(ctx context.Context, id int) (*models.DetailRecord, error) {
		started.Add(1)
		<-release
		return testRecord(id), nil
	}), 5, WithLogger(logging.Discard()))
	before := runtime.NumGoroutine()

	// Act
	batch := enricher.EnrichAll(context.Background(), entries(1, 200))
	require.Eventually(t, func() bool { return started.Load() == 5 }, time.Second, time.Millisecond)
	during := runtime.NumGoroutine()
	close(release)
	summary := batch.Wait()

	// Assert
	assert.Less(t, during-before, 20)
	assert.Equal(t, 200, summary.Succeeded)
}

func TestEnricher_NonNumericEntryFails(t *testing.T) {
	enricher := NewEnricher(fetchFunc(func(ctx context.Context, id int) (*models.DetailRecord, error) {
		return testRecord(id), nil
	}), 5, WithLogger(logging.Discard()))

	batch := enricher.EnrichAll(context.Background(), []models.ListEntry{{ID: "abc", Name: "bad"}, {ID: "1", Name: "ok"}})
	summary := batch.Wait()

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestEnricher_CancelAbandonsOutstandingFetches(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// Arrange
	var started atomic.Int32
	enricher := NewEnricher(fetchFunc(func(ctx context.Context, id int) (*models.DetailRecord, error) {
		started.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	}), 5, WithLogger(logging.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	batch := enricher.EnrichAll(ctx, entries(1, 12))
	require.Eventually(t, func() bool { return started.Load() == 5 }, time.Second, time.Millisecond)

	// Act
	cancel()
	summary := batch.Wait()

	// Assert
	assert.Equal(t, 12, summary.Failed)
	assert.Equal(t, int32(5), started.Load(), "queued entries must not start after cancellation")
}

func TestEnricher_UsesDetailServiceDedup(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.source.detailFn = func(ctx context.Context, id int) (*models.DetailRecord, error) {
		<-release
		return testRecord(id), nil
	}
	svc := f.detailService(t, testPipeline())
	enricher := NewEnricher(svc, 5, WithLogger(logging.Discard()))

	dup := []models.ListEntry{{ID: "8", Name: "a"}, {ID: "8", Name: "a"}}
	batch := enricher.EnrichAll(context.Background(), dup)
	require.Eventually(t, func() bool { return waiters(svc.inflight, "8") == 2 }, time.Second, time.Millisecond)
	close(release)

	assert.Equal(t, 2, batch.Wait().Succeeded)
	assert.Equal(t, 1, f.source.DetailCalls(8))
}

func TestBatchSummary_ErrNilWhenAllSucceeded(t *testing.T) {
	assert.NoError(t, BatchSummary{Requested: 3, Succeeded: 3}.Err())
	assert.True(t, errors.Is(BatchSummary{Requested: 3, Succeeded: 2, Failed: 1}.Err(), models.ErrPartialFailure))
}
