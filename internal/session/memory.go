package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	state     *State
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory with a TTL.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store. ttl <= 0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the stored state, or nil when absent or expired.
func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[id]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, id)
		}
		m.mu.Unlock()
		return nil, nil
	}
	return e.state.Clone(), nil
}

// Set stores a copy of state and refreshes its TTL.
func (m *MemoryStore) Set(_ context.Context, state *State) error {
	if err := ValidateID(state.ID); err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[state.ID] = memoryEntry{state: state.Clone(), expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

// List returns copies of all live sessions ordered by id.
func (m *MemoryStore) List(_ context.Context) ([]*State, error) {
	now := m.now()
	m.mu.RLock()
	out := make([]*State, 0, len(m.entries))
	for _, e := range m.entries {
		if now.Before(e.expiresAt) {
			out = append(out, e.state.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of entries held, including lapsed ones not yet swept.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep drops lapsed entries and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
