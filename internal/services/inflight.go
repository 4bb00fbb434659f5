package services

import (
	"context"
	"log/slog"
	"sync"
)

// call is one shared in-flight execution
type call[T any] struct {
	done    chan struct{}
	val     T
	err     error
	waiters int
	cancel  context.CancelFunc
}

// inflightGroup collapses concurrent calls for the same key into one
// execution. The shared execution runs on its own context derived from
// the group's base context; it is cancelled only when every waiter has
// given up. Entries are removed as soon as the call completes.
type inflightGroup[T any] struct {
	base   context.Context
	logger *slog.Logger
	mu     sync.Mutex
	calls  map[string]*call[T]
}

func newInflightGroup[T any](base context.Context, logger *slog.Logger) *inflightGroup[T] {
	return &inflightGroup[T]{
		base:   base,
		logger: logger,
		calls:  make(map[string]*call[T]),
	}
}

// Do runs fn once per key among concurrent callers. shared reports
// whether the caller joined an execution started by someone else.
func (g *inflightGroup[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (val T, err error, shared bool) {
	g.mu.Lock()
	c, exists := g.calls[key]
	if exists {
		c.waiters++
	} else {
		callCtx, cancel := context.WithCancel(g.base)
		c = &call[T]{done: make(chan struct{}), waiters: 1, cancel: cancel}
		g.calls[key] = c
		go g.run(callCtx, key, c, fn)
	}
	g.mu.Unlock()

	if exists {
		g.logger.Debug("Joined in-flight call", "key", key)
	}

	select {
	case <-c.done:
		return c.val, c.err, exists
	case <-ctx.Done():
		g.leave(key, c)
		var zero T
		return zero, ctx.Err(), exists
	}
}

func (g *inflightGroup[T]) run(ctx context.Context, key string, c *call[T], fn func(ctx context.Context) (T, error)) {
	defer c.cancel()

	c.val, c.err = fn(ctx)

	g.mu.Lock()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
	g.mu.Unlock()

	close(c.done)
}

// leave drops one waiter; the last one out cancels the shared call and
// unlinks it so later callers start a fresh execution
func (g *inflightGroup[T]) leave(key string, c *call[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c.waiters--
	if c.waiters > 0 {
		return
	}
	if g.calls[key] == c {
		delete(g.calls, key)
	}
	c.cancel()
	g.logger.Debug("Cancelled abandoned in-flight call", "key", key)
}

// Len returns the number of executions currently in flight
func (g *inflightGroup[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
