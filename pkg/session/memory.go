package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-run CLI use.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session), now: time.Now}
}

func (m *MemoryStore) Claim(_ context.Context, s *Session) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.ScanID]; ok && cur.Status == StatusRunning {
		return cur.Clone(), false, nil
	}
	c := s.Clone()
	c.UpdatedAt = m.now().UTC()
	m.sessions[s.ScanID] = c
	return c.Clone(), true, nil
}

func (m *MemoryStore) Get(_ context.Context, scanID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[scanID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, scanID string, fn UpdateFunc) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[scanID]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = m.now().UTC()
	m.sessions[scanID] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, scanID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, scanID)
	return nil
}

func (m *MemoryStore) List(_ context.Context, ownerID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		if ownerID == "" || s.OwnerID == ownerID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
