package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
)

// Key prefixes keep session locks and document locks apart in the shared
// table; a session id could otherwise look like a file path.
const (
	sessionKeyPrefix  = "session:"
	documentKeyPrefix = "document:"
)

// defaultLockTTL bounds how long a crashed holder can block other replicas
// when a distributed locker is configured.
const defaultLockTTL = 30 * time.Second

// lockEntry holds one keyed mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager owns conversation state access and document-level edit
// serialization. Lock entries are reference counted so the table does not
// grow with finished sessions.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	log     *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker extends locking across replicas. Keys passed to the locker are
// the prefixed lock keys, stable across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager builds a Manager over the given state store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: defaultLockTTL,
		log:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller locks entry.mu and calls release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[key]
	if !ok {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and drops the entry at zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// withKey runs fn while holding the keyed lock, and the matching
// distributed lock when a locker is configured.
func (m *Manager) withKey(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.log.Warn("failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// WithSession runs fn while holding the session's lock.
func (m *Manager) WithSession(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	return m.withKey(ctx, sessionKeyPrefix+sessionID, fn)
}

// WithDocument runs fn while holding the document's lock. Edits against the
// same deck serialize here even when they come from different sessions.
func (m *Manager) WithDocument(ctx context.Context, documentPath string, fn func(context.Context) error) error {
	return m.withKey(ctx, documentKeyPrefix+documentPath, fn)
}

// Load retrieves an existing session.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	var state *domain.State
	err := m.WithSession(ctx, sessionID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, sessionID)
		return err
	})
	return state, err
}

// LoadOrStart loads a session, creating it when absent. An incoming
// non-empty document path replaces the stored one; an empty incoming path
// keeps whatever the session already had.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID, documentPath string) (*domain.State, error) {
	var state *domain.State
	err := m.WithSession(ctx, sessionID, func(ctx context.Context) error {
		loaded, err := m.store.Load(ctx, sessionID)
		if err == nil {
			merged := domain.MergeDocumentPath(loaded.DocumentPath, documentPath)
			if merged != loaded.DocumentPath {
				loaded.DocumentPath = merged
				if err := m.store.Save(ctx, sessionID, loaded); err != nil {
					return fmt.Errorf("update document path: %w", err)
				}
			}
			state = loaded
			return nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("check session existence: %w", err)
		}

		state = domain.NewState(documentPath)
		if err := m.store.Save(ctx, sessionID, state); err != nil {
			return fmt.Errorf("initialize session: %w", err)
		}
		return nil
	})
	return state, err
}

// Save persists the session state under its lock.
func (m *Manager) Save(ctx context.Context, sessionID string, state *domain.State) error {
	return m.WithSession(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Save(ctx, sessionID, state)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithSession(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}
