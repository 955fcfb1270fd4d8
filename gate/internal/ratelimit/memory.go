package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker is the default in-process tracker. The failure map is shared
// mutable state across request goroutines, so read-prune-append runs under a
// single mutex.
type MemoryTracker struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewMemoryTracker creates a tracker allowing up to limit failures per
// device within the trailing window.
func NewMemoryTracker(limit int, window time.Duration) *MemoryTracker {
	return &MemoryTracker{
		failures: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (m *MemoryTracker) RecordFailure(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures[deviceID] = append(m.failures[deviceID], m.now())
	return nil
}

func (m *MemoryTracker) Allowed(ctx context.Context, deviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempts, ok := m.failures[deviceID]
	if !ok {
		return true, nil
	}

	cutoff := m.now().Add(-m.window)
	kept := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(m.failures, deviceID)
		return true, nil
	}
	m.failures[deviceID] = kept

	return len(kept) < m.limit, nil
}

func (m *MemoryTracker) Close() error {
	return nil
}
