package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"creature-catalog-api/internal/cache"
	"creature-catalog-api/internal/telemetry"
)

// WarmUpStatus reports the state of the bulk list warm-up
type WarmUpStatus struct {
	Triggered    bool      `json:"triggered"`
	InProgress   bool      `json:"inProgress"`
	LastSuccess  bool      `json:"lastSuccess"`
	EntryCount   int       `json:"entryCount"`
	LastRunAt    time.Time `json:"lastRunAt,omitempty"`
	Duration     string    `json:"duration,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// WarmUpManager persists the whole catalog listing in one request so
// that later pages can be served from the local store
type WarmUpManager struct {
	source    PageSource
	gate      *cache.Gate
	telemetry *telemetry.CatalogTelemetry
	logger    *slog.Logger

	triggered atomic.Bool
	runMutex  sync.Mutex

	status      WarmUpStatus
	statusMutex sync.RWMutex

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWarmUpManager creates a warm-up manager
func NewWarmUpManager(source PageSource, gate *cache.Gate, opts ...ServiceOption) *WarmUpManager {
	o := applyOptions(opts)
	baseCtx, cancel := context.WithCancel(context.Background())
	return &WarmUpManager{
		source:    source,
		gate:      gate,
		telemetry: o.telemetry,
		logger:    o.logger,
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
}

// Trigger starts the warm-up in the background the first time it is
// called with a positive total. Later calls are ignored, whatever the
// outcome of the first run.
func (m *WarmUpManager) Trigger(totalCount int) bool {
	if totalCount <= 0 {
		return false
	}
	if !m.triggered.CompareAndSwap(false, true) {
		return false
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.Run(m.baseCtx, totalCount); err != nil {
			m.logger.Warn("Background warm-up failed", "error", err)
		}
	}()
	return true
}

// Run fetches totalCount entries from offset zero and persists them
func (m *WarmUpManager) Run(ctx context.Context, totalCount int) error {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()

	m.logger.Info("Starting catalog warm-up", "total_count", totalCount)
	startTime := time.Now()
	m.updateStatus(true, false, 0, "", time.Time{}, 0)

	page, err := m.source.FetchPage(ctx, 0, totalCount)
	if err != nil {
		m.updateStatus(false, false, 0, err.Error(), startTime, time.Since(startTime))
		return fmt.Errorf("failed to fetch full listing: %w", err)
	}

	if err := m.gate.PutPage(ctx, 0, page); err != nil {
		m.updateStatus(false, false, 0, err.Error(), startTime, time.Since(startTime))
		m.telemetry.CacheWriteFailed(ctx, "warmup")
		return fmt.Errorf("failed to persist full listing: %w", err)
	}

	duration := time.Since(startTime)
	m.updateStatus(false, true, len(page.Items), "", startTime, duration)
	m.telemetry.WarmUpPersisted(ctx, len(page.Items))

	m.logger.Info("Catalog warm-up completed",
		"entries_persisted", len(page.Items),
		"duration", duration.String())
	return nil
}

// Status returns a copy of the warm-up status
func (m *WarmUpManager) Status() WarmUpStatus {
	m.statusMutex.RLock()
	defer m.statusMutex.RUnlock()
	return m.status
}

// Close cancels a running warm-up and waits for it
func (m *WarmUpManager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *WarmUpManager) updateStatus(inProgress, success bool, count int, errorMsg string, runAt time.Time, duration time.Duration) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()

	m.status.Triggered = m.status.Triggered || m.triggered.Load() || inProgress
	m.status.InProgress = inProgress
	m.status.LastSuccess = success
	m.status.EntryCount = count
	m.status.ErrorMessage = errorMsg
	if !runAt.IsZero() {
		m.status.LastRunAt = runAt
	}
	if duration > 0 {
		m.status.Duration = duration.String()
	}
}
