package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/telemetry"
)

// EnrichOutcome is the result of enriching one list entry
type EnrichOutcome struct {
	EntryID string
	Record  *models.DetailRecord
	Err     error
}

// BatchSummary counts the outcomes of a finished batch
type BatchSummary struct {
	Requested int `json:"requested"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Err reports a partial failure when any entry failed
func (s BatchSummary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return models.NewError(models.ErrPartialFailure,
		fmt.Sprintf("%d of %d details could not be loaded", s.Failed, s.Requested), nil)
}

// Batch is a running enrichment of one set of entries
type Batch struct {
	results chan EnrichOutcome
	done    chan struct{}
	cancel  context.CancelFunc

	mu      sync.Mutex
	summary BatchSummary
}

// Results streams outcomes as they complete. The channel is closed once
// every entry has finished.
func (b *Batch) Results() <-chan EnrichOutcome {
	return b.results
}

// Wait blocks until every entry has finished
func (b *Batch) Wait() BatchSummary {
	<-b.done
	return b.snapshot()
}

// Done is closed once every entry has finished
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Cancel abandons the entries that have not finished yet
func (b *Batch) Cancel() {
	b.cancel()
}

func (b *Batch) record(o EnrichOutcome) {
	b.mu.Lock()
	if o.Err != nil {
		b.summary.Failed++
	} else {
		b.summary.Succeeded++
	}
	b.mu.Unlock()
	b.results <- o
}

// Enricher fans detail fetches out over list entries. All batches of one
// enricher share the same concurrency limit, and no batch runs more
// workers than that limit.
type Enricher struct {
	details   DetailFetcher
	limit     int
	sem       *semaphore.Weighted
	telemetry *telemetry.CatalogTelemetry
	logger    *slog.Logger
}

// DetailFetcher is what the enricher needs from the detail service
type DetailFetcher interface {
	FetchDetail(ctx context.Context, id int) (*models.DetailRecord, error)
}

// NewEnricher creates an enricher admitting at most maxConcurrent fetches
func NewEnricher(details DetailFetcher, maxConcurrent int, opts ...ServiceOption) *Enricher {
	o := applyOptions(opts)
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Enricher{
		details:   details,
		limit:     maxConcurrent,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		telemetry: o.telemetry,
		logger:    o.logger,
	}
}

// EnrichAll starts one fetch per entry and returns immediately. A failed
// entry never cancels its siblings. Cancelling ctx abandons the entries
// still queued or in flight.
func (e *Enricher) EnrichAll(ctx context.Context, entries []models.ListEntry) *Batch {
	ctx, cancel := context.WithCancel(ctx)
	b := &Batch{
		results: make(chan EnrichOutcome, len(entries)),
		done:    make(chan struct{}),
		cancel:  cancel,
		summary: BatchSummary{Requested: len(entries)},
	}

	go func() {
		var g errgroup.Group
		g.SetLimit(e.limit)
		for _, entry := range entries {
			g.Go(func() error {
				b.record(e.enrichOne(ctx, entry))
				return nil
			})
		}
		_ = g.Wait()
		cancel()
		close(b.results)

		summary := b.snapshot()
		e.logger.Debug("Enrichment batch finished",
			"requested", summary.Requested,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed)
		close(b.done)
	}()

	return b
}

func (b *Batch) snapshot() BatchSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

func (e *Enricher) enrichOne(ctx context.Context, entry models.ListEntry) EnrichOutcome {
	out := EnrichOutcome{EntryID: entry.ID}

	id, err := strconv.Atoi(entry.ID)
	if err != nil {
		out.Err = models.NewError(models.ErrInvalidArgument, "entry id is not numeric", err)
		return out
	}

	if err := ctx.Err(); err != nil {
		out.Err = models.NewError(models.ErrUnexpected, "enrichment cancelled", err)
		return out
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		out.Err = models.NewError(models.ErrUnexpected, "enrichment cancelled", err)
		return out
	}
	defer e.sem.Release(1)

	out.Record, out.Err = e.details.FetchDetail(ctx, id)
	e.telemetry.EnrichmentFinished(ctx, out.Err == nil)
	if out.Err != nil {
		e.logger.Warn("Failed to enrich entry", "id", entry.ID, "name", entry.Name, "error", out.Err)
	}
	return out
}
