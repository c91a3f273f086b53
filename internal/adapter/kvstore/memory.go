// Package kvstore implements domain.Store on Redis, PostgreSQL, and process
// memory. The memory backend is meant for tests and single-process
// development.
package kvstore

import (
	"context"
	"sync"
	"time"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory keeps keys and queues in a map guarded by a mutex.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	queues  map[string][][]byte
	notify  chan struct{}
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		queues:  make(map[string][][]byte),
		notify:  make(chan struct{}),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by TTL tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *Memory) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *Memory) put(key string, value []byte, ttl time.Duration) {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, value, ttl)
	return nil
}

func (m *Memory) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

func (m *Memory) SetXX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); !ok {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Push(ctx context.Context, queue string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.queues[queue] = append(m.queues[queue], append([]byte(nil), value...))
	close(m.notify)
	m.notify = make(chan struct{})
	m.mu.Unlock()
	return nil
}

func (m *Memory) Pop(ctx context.Context, queue string, wait time.Duration) ([]byte, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		m.mu.Lock()
		if items := m.queues[queue]; len(items) > 0 {
			head := items[0]
			m.queues[queue] = items[1:]
			m.mu.Unlock()
			return head, nil
		}
		notify := m.notify
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, domain.ErrNotFound
		case <-notify:
		}
	}
}

// Len reports the number of live keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.entries {
		if _, ok := m.live(key); ok {
			n++
		}
	}
	return n
}

var _ domain.Store = (*Memory)(nil)
