package authhandle

import (
	"context"
	"sync"
	"time"

	"github.com/ssdt/authscan/pkg/duration"
)

type entry struct {
	creds     Credentials
	expiresAt time.Time
}

// MemoryStore keeps handles in process and sweeps expired ones
// periodically.
type MemoryStore struct {
	mu      sync.Mutex
	handles map[string]entry
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore starts a store whose handles live for ttl (DefaultTTL when
// zero).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &MemoryStore{
		handles: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go m.cleanupLoop(duration.HandleSweep)
	return m
}

func (m *MemoryStore) Create(_ context.Context, creds Credentials) (string, error) {
	if err := validate(creds); err != nil {
		return "", err
	}
	h := newHandle()
	m.mu.Lock()
	m.handles[h] = entry{creds: creds, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return h, nil
}

func (m *MemoryStore) Consume(_ context.Context, handle string) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.handles[handle]
	if !ok {
		return Credentials{}, ErrHandleNotFound
	}
	delete(m.handles, handle)
	if expired(e.expiresAt, m.now()) {
		return Credentials{}, ErrHandleNotFound
	}
	return e.creds, nil
}

// Len returns the number of stored handles.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Close stops the sweeper.
func (m *MemoryStore) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryStore) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for h, e := range m.handles {
		if expired(e.expiresAt, now) {
			delete(m.handles, h)
		}
	}
}
