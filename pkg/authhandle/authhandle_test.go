package authhandle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssdt/authscan/pkg/authctx"
)

var creds = Credentials{
	Cookies:  []authctx.Cookie{{Name: "sid", Value: "abc", HTTPOnly: true, Secure: true}},
	LoginURL: "https://app.example.com/login",
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testStore struct {
	Store
	clock *clock
}

func stores(t *testing.T, fn func(t *testing.T, s testStore)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		c := &clock{t: time.Now()}
		m := NewMemoryStore(time.Hour)
		m.now = c.now
		t.Cleanup(func() { m.Close() })
		fn(t, testStore{Store: m, clock: c})
	})
	t.Run("sqlite", func(t *testing.T) {
		c := &clock{t: time.Now()}
		s, err := NewSQLiteStore(":memory:", time.Hour)
		require.NoError(t, err)
		s.now = c.now
		t.Cleanup(func() { s.Close() })
		fn(t, testStore{Store: s, clock: c})
	})
}

func TestStore_ConsumeOnce(t *testing.T) {
	stores(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		h, err := s.Create(ctx, creds)
		require.NoError(t, err)
		assert.Len(t, h, 36)

		got, err := s.Consume(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, creds, got)

		_, err = s.Consume(ctx, h)
		assert.ErrorIs(t, err, ErrHandleNotFound)
	})
}

func TestStore_Expired(t *testing.T) {
	stores(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		h, err := s.Create(ctx, creds)
		require.NoError(t, err)

		s.clock.advance(time.Hour)
		_, err = s.Consume(ctx, h)
		assert.ErrorIs(t, err, ErrHandleNotFound)
	})
}

func TestStore_Unknown(t *testing.T) {
	stores(t, func(t *testing.T, s testStore) {
		_, err := s.Consume(context.Background(), "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrHandleNotFound)
	})
}

func TestStore_RejectsEmptyCookies(t *testing.T) {
	stores(t, func(t *testing.T, s testStore) {
		_, err := s.Create(context.Background(), Credentials{Cookies: []authctx.Cookie{{Value: "x"}}})
		assert.ErrorIs(t, err, ErrNoCookies)
	})
}

func TestStore_ConcurrentConsume(t *testing.T) {
	stores(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		h, err := s.Create(ctx, creds)
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Consume(ctx, h); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestMemoryStore_Sweep(t *testing.T) {
	c := &clock{t: time.Now()}
	m := NewMemoryStore(time.Minute)
	defer m.Close()
	m.now = c.now

	_, err := m.Create(context.Background(), creds)
	require.NoError(t, err)
	m.sweep()
	assert.Equal(t, 1, m.Len())

	c.advance(2 * time.Minute)
	m.sweep()
	assert.Zero(t, m.Len())
}

func TestSQLiteStore_Sweep(t *testing.T) {
	c := &clock{t: time.Now()}
	s, err := NewSQLiteStore(":memory:", time.Minute)
	require.NoError(t, err)
	defer s.Close()
	s.now = c.now

	ctx := context.Background()
	_, err = s.Create(ctx, creds)
	require.NoError(t, err)
	c.advance(2 * time.Minute)
	_, err = s.Create(ctx, creds)
	require.NoError(t, err)

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_CloseIdempotent(t *testing.T) {
	m := NewMemoryStore(0)
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}
