package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"creature-catalog-api/internal/models"
)

// Registry defaults used when the configured timings are not positive
const (
	defaultIdleTimeout     = 30 * time.Minute
	defaultCleanupInterval = time.Minute
)

// Factory builds a session with the given id and initial filter
type Factory func(id string, spec models.FilterSpec) *Session

// registryEntry is a session with its last access time
type registryEntry struct {
	session    *Session
	lastAccess time.Time
}

// Registry keeps live sessions by id and closes the ones left idle for
// longer than the idle timeout
type Registry struct {
	items         map[string]*registryEntry
	mutex         sync.RWMutex
	factory       Factory
	idleTimeout   time.Duration
	now           func() time.Time
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
	cleanupDone   chan struct{}
	logger        *slog.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry and starts its cleanup loop.
// Non-positive timings fall back to 30m idle and a 1m sweep.
func NewRegistry(factory Factory, idleTimeout, cleanupInterval time.Duration, opts ...RegistryOption) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}

	r := &Registry{
		items:         make(map[string]*registryEntry),
		factory:       factory,
		idleTimeout:   idleTimeout,
		now:           time.Now,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.cleanupExpiredSessions()

	r.logger.Info("Session registry initialized",
		"idle_timeout", idleTimeout.String(),
		"cleanup_interval", cleanupInterval.String())

	return r
}

// Create starts a new session with a random id
func (r *Registry) Create(spec models.FilterSpec) *Session {
	id := uuid.NewString()
	s := r.factory(id, spec)

	r.mutex.Lock()
	r.items[id] = &registryEntry{session: s, lastAccess: r.now()}
	count := len(r.items)
	r.mutex.Unlock()

	r.logger.Debug("Session created", "session_id", id, "active_sessions", count)
	return s
}

// Get returns the session and marks it as used
func (r *Registry) Get(id string) (*Session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, exists := r.items[id]
	if !exists {
		return nil, false
	}
	entry.lastAccess = r.now()
	return entry.session, true
}

// Delete closes and removes a session
func (r *Registry) Delete(id string) bool {
	r.mutex.Lock()
	entry, exists := r.items[id]
	delete(r.items, id)
	r.mutex.Unlock()

	if !exists {
		return false
	}
	entry.session.Close()
	r.logger.Debug("Session deleted", "session_id", id)
	return true
}

// Size returns the number of live sessions
func (r *Registry) Size() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.items)
}

// Stop ends the cleanup loop and closes every session
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		r.cleanupTicker.Stop()
		close(r.stopCleanup)
		<-r.cleanupDone

		r.mutex.Lock()
		items := r.items
		r.items = make(map[string]*registryEntry)
		r.mutex.Unlock()

		for _, entry := range items {
			entry.session.Close()
		}
		r.logger.Info("Session registry stopped", "closed_sessions", len(items))
	})
}

func (r *Registry) cleanupExpiredSessions() {
	defer close(r.cleanupDone)
	for {
		select {
		case <-r.cleanupTicker.C:
			r.performCleanup()
		case <-r.stopCleanup:
			return
		}
	}
}

// performCleanup closes sessions idle for longer than the timeout
func (r *Registry) performCleanup() {
	now := r.now()
	var expired []*registryEntry

	r.mutex.Lock()
	for id, entry := range r.items {
		if now.Sub(entry.lastAccess) > r.idleTimeout {
			expired = append(expired, entry)
			delete(r.items, id)
		}
	}
	remaining := len(r.items)
	r.mutex.Unlock()

	for _, entry := range expired {
		entry.session.Close()
	}

	if len(expired) > 0 {
		r.logger.Info("Expired idle sessions",
			"expired_sessions", len(expired),
			"remaining_sessions", remaining)
	}
}
