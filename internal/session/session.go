// Package session holds browsing sessions: the accumulated list entries,
// their enriched details and the filtered view derived from them.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/services"
)

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("session closed")

// Pager fetches pages of list entries
type Pager interface {
	FetchPage(ctx context.Context, offset, limit int) (*models.Page, error)
}

// BatchEnricher starts enrichment of a set of entries
type BatchEnricher interface {
	EnrichAll(ctx context.Context, entries []models.ListEntry) *services.Batch
}

// command mutates the session state on the loop goroutine. apply reports
// whether the view must be re-derived; done, when set, is closed once the
// resulting view is published.
type command struct {
	apply func(st *state) bool
	done  chan struct{}
}

// Session serializes every state mutation through one loop goroutine.
// Network I/O happens outside the loop; its results come back as
// commands.
type Session struct {
	id       string
	pager    Pager
	enricher BatchEnricher
	pageSize int
	logger   *slog.Logger
	now      func() time.Time

	cmds   chan command
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// enrichment context of the current generation; loop only
	genCtx    context.Context
	genCancel context.CancelFunc

	snapMu sync.RWMutex
	snap   models.SessionView
}

// Option customises a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates a session and starts its loop. Nothing is fetched until
// LoadFirstPage is called.
func New(id string, pager Pager, enricher BatchEnricher, pageSize int, spec models.FilterSpec, opts ...Option) *Session {
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		pager:    pager,
		enricher: enricher,
		pageSize: pageSize,
		logger:   slog.Default(),
		now:      time.Now,
		cmds:     make(chan command),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("session_id", id)

	st := newState(pageSize, spec)
	st.recompute(s.now())
	s.snap = st.snapshot(id)

	s.wg.Add(1)
	go s.loop(st)
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a private copy of the latest published view
func (s *Session) Snapshot() models.SessionView {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.Clone()
}

// LoadFirstPage drops everything loaded so far and fetches the first
// page. Enrichment of the page continues in the background.
func (s *Session) LoadFirstPage(ctx context.Context) (models.SessionView, error) {
	gen, err := call(s, ctx, func(st *state) (int, bool) {
		s.cancelGeneration()
		st.reset(s.pageSize)
		st.status = models.SessionLoading
		st.loading = true
		return st.generation, true
	})
	if err != nil {
		return s.Snapshot(), err
	}

	page, fetchErr := s.fetch(ctx, 0)

	// the result is applied even if the caller has gone away
	_, err = call(s, context.Background(), func(st *state) (struct{}, bool) {
		if st.generation != gen {
			return struct{}{}, false
		}
		st.loading = false
		if fetchErr != nil {
			st.status = models.SessionError
			st.err = models.UserMessage(fetchErr)
			s.logger.Warn("Initial page load failed", "error", fetchErr)
			return struct{}{}, true
		}
		st.status = models.SessionReady
		s.startEnrichment(st, st.appendPage(0, page))
		return struct{}{}, true
	})
	if err != nil {
		return s.Snapshot(), err
	}
	return s.Snapshot(), fetchErr
}

// Refresh is LoadFirstPage under the name the API exposes
func (s *Session) Refresh(ctx context.Context) (models.SessionView, error) {
	return s.LoadFirstPage(ctx)
}

// LoadMore fetches the page after the cursor. A failure leaves the
// loaded entries in place and only sets the load-more error.
func (s *Session) LoadMore(ctx context.Context) (models.SessionView, error) {
	type plan struct {
		gen    int
		offset int
		first  bool
		skip   bool
	}
	p, err := call(s, ctx, func(st *state) (plan, bool) {
		if len(st.entries) == 0 && !st.loading {
			return plan{first: true}, false
		}
		if st.loading || !st.cursor.HasMore {
			return plan{skip: true}, false
		}
		st.loading = true
		return plan{gen: st.generation, offset: st.cursor.Offset}, false
	})
	if err != nil {
		return s.Snapshot(), err
	}
	if p.first {
		return s.LoadFirstPage(ctx)
	}
	if p.skip {
		return s.Snapshot(), nil
	}

	page, fetchErr := s.fetch(ctx, p.offset)

	_, err = call(s, context.Background(), func(st *state) (struct{}, bool) {
		if st.generation != p.gen {
			return struct{}{}, false
		}
		st.loading = false
		if fetchErr != nil {
			st.loadMoreErr = models.UserMessage(fetchErr)
			s.logger.Warn("Load more failed", "offset", p.offset, "error", fetchErr)
			return struct{}{}, true
		}
		st.loadMoreErr = ""
		s.startEnrichment(st, st.appendPage(p.offset, page))
		return struct{}{}, true
	})
	if err != nil {
		return s.Snapshot(), err
	}
	return s.Snapshot(), fetchErr
}

// SetFilter replaces the active filter and re-derives the view
func (s *Session) SetFilter(ctx context.Context, spec models.FilterSpec) (models.SessionView, error) {
	_, err := call(s, ctx, func(st *state) (struct{}, bool) {
		st.filter = spec.Clone()
		return struct{}{}, true
	})
	return s.Snapshot(), err
}

// WaitIdle blocks until no enrichment batch is outstanding
func (s *Session) WaitIdle(ctx context.Context) error {
	done, err := call(s, ctx, func(st *state) (chan struct{}, bool) {
		ch := make(chan struct{})
		if st.pending == 0 {
			close(ch)
		} else {
			st.idleWaiters = append(st.idleWaiters, ch)
		}
		return ch, false
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// Close cancels outstanding work and waits for every goroutine of the
// session to exit
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
	s.logger.Debug("Session closed")
}

func (s *Session) loop(st *state) {
	defer s.wg.Done()
	for {
		select {
		case cmd := <-s.cmds:
			if cmd.apply(st) {
				st.recompute(s.now())
				s.publish(st.snapshot(s.id))
			}
			st.notifyIdle()
			if cmd.done != nil {
				close(cmd.done)
			}
		case <-s.ctx.Done():
			s.cancelGeneration()
			return
		}
	}
}

func (s *Session) publish(view models.SessionView) {
	s.snapMu.Lock()
	s.snap = view
	s.snapMu.Unlock()
}

// submit hands cmd to the loop. It fails once the session or ctx is done.
func (s *Session) submit(ctx context.Context, cmd command) error {
	select {
	case s.cmds <- cmd:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the loop and returns its result once the view it
// produced is visible through Snapshot
func call[T any](s *Session, ctx context.Context, fn func(st *state) (T, bool)) (T, error) {
	var result T
	cmd := command{
		apply: func(st *state) bool {
			v, changed := fn(st)
			result = v
			return changed
		},
		done: make(chan struct{}),
	}
	if err := s.submit(ctx, cmd); err != nil {
		var zero T
		return zero, err
	}
	<-cmd.done
	return result, nil
}

// fetch runs a page request that is cancelled when either ctx or the
// session ends
func (s *Session) fetch(ctx context.Context, offset int) (*models.Page, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	return s.pager.FetchPage(ctx, offset, s.pageSize)
}

// startEnrichment launches a batch for entries; loop only
func (s *Session) startEnrichment(st *state, entries []models.ListEntry) {
	if len(entries) == 0 {
		return
	}
	if s.genCancel == nil {
		var genCtx context.Context
		genCtx, s.genCancel = context.WithCancel(s.ctx)
		s.genCtx = genCtx
	}

	st.markEnriching(entries)
	st.pending++
	gen := st.generation
	batch := s.enricher.EnrichAll(s.genCtx, entries)

	s.wg.Add(1)
	go s.collect(gen, batch)
}

// collect feeds batch outcomes back into the loop
func (s *Session) collect(gen int, batch *services.Batch) {
	defer s.wg.Done()

	for outcome := range batch.Results() {
		_ = s.submit(s.ctx, command{apply: func(st *state) bool {
			if st.generation != gen {
				return false
			}
			st.applyOutcome(outcome.EntryID, outcome.Record, outcome.Err)
			return true
		}})
	}

	summary := batch.Wait()
	if summary.Failed > 0 {
		s.logger.Info("Enrichment batch finished with failures",
			"requested", summary.Requested,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed)
	}

	_ = s.submit(s.ctx, command{apply: func(st *state) bool {
		st.pending--
		return false
	}})
}

// cancelGeneration abandons the enrichment of the current generation; loop only
func (s *Session) cancelGeneration() {
	if s.genCancel != nil {
		s.genCancel()
		s.genCancel = nil
		s.genCtx = nil
	}
}
