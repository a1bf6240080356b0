package store

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	val       []byte
	expiresAt time.Time // zero when the entry never expires
}

// MemoryStore is an in-process Store backed by a map.
//
// It is safe for concurrent use by multiple goroutines and honors TTLs
// against its injected clock, but its state is local to the process and is
// not shared across replicas. Use it in tests (with a fake clock to control
// refill and expiry) and in single-instance deployments; use RedisStore when
// several processes must share one budget.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]memoryEntry
}

type MemoryOption func(*MemoryStore)

// WithClock substitutes the time source used for expiry, so tests can advance
// time deterministically.
func WithClock(c clockwork.Clock) MemoryOption {
	return func(m *MemoryStore) {
		m.clock = c
	}
}

// NewMemoryStore constructs a MemoryStore with empty state.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		clock:   clockwork.NewRealClock(),
		entries: make(map[string]memoryEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// live returns the entry for key, dropping it first if its TTL has elapsed.
// Callers must hold mu.
func (m *MemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		return nil, false, nil
	}
	return e.val, true, nil
}

func (m *MemoryStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cur []byte
	found := false
	if e, ok := m.live(key); ok {
		cur, found = e.val, true
	}

	next, write, err := fn(cur, found)
	if err != nil {
		return err
	}
	if !write {
		return nil
	}

	e := memoryEntry{val: next}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.live(key)
	delete(m.entries, key)
	return ok, nil
}

// List returns every live key matching the glob pattern, with values and
// remaining TTLs.
func (m *MemoryStore) List(ctx context.Context, pattern string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for key := range m.entries {
		if ok, err := path.Match(pattern, key); err != nil || !ok {
			continue
		}
		e, ok := m.live(key)
		if !ok {
			continue
		}
		var ttl time.Duration
		if !e.expiresAt.IsZero() {
			ttl = e.expiresAt.Sub(m.clock.Now())
		}
		out = append(out, Entry{Key: key, Value: e.val, TTL: ttl})
	}
	return out, nil
}

// Purge deletes every key matching the glob pattern and returns how many were
// removed.
func (m *MemoryStore) Purge(ctx context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for key := range m.entries {
		if ok, err := path.Match(pattern, key); err != nil || !ok {
			continue
		}
		if _, ok := m.live(key); ok {
			total++
		}
		delete(m.entries, key)
	}
	return total, nil
}
