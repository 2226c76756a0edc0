// Package cache holds the read-through projection of each reminder's
// persisted notification id. The store stays authoritative; entries are
// rewritten or invalidated whenever the reminder engine finishes an
// operation. An empty value means "known to be unscheduled".
package cache

import (
	"context"
	"sync"
	"time"
)

// NotificationIDs caches reminder id -> notification id.
type NotificationIDs interface {
	// Get returns the cached value and whether an entry exists.
	Get(ctx context.Context, reminderID int64) (string, bool, error)

	// Set records value for reminderID. An empty value caches "unscheduled".
	Set(ctx context.Context, reminderID int64, value string) error

	// Invalidate drops the entry so the next read goes to the store.
	Invalidate(ctx context.Context, reminderID int64) error

	Close() error
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// Memory is an in-process NotificationIDs.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[int64]memoryEntry
}

// NewMemory returns an in-memory cache. ttl <= 0 keeps entries until invalidated.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]memoryEntry),
	}
}

func (m *Memory) Get(ctx context.Context, reminderID int64) (string, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[reminderID]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.mu.Lock()
		delete(m.entries, reminderID)
		m.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(ctx context.Context, reminderID int64, value string) error {
	e := memoryEntry{value: value}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[reminderID] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(ctx context.Context, reminderID int64) error {
	m.mu.Lock()
	delete(m.entries, reminderID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
