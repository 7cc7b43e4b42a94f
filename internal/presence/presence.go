// Package presence tracks which users were recently active so friend listings can show
// an online indicator.
package presence

import (
	"context"
	"sync"
	"time"
)

// Tracker records activity and answers online lookups.
type Tracker interface {
	Touch(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
	Online(ctx context.Context, userIDs []string) (map[string]bool, error)
}

const defaultTTL = 2 * time.Minute

// MemoryTracker keeps last-seen timestamps in process. A user is online while the last touch
// is younger than the TTL.
type MemoryTracker struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

// NewMemoryTracker returns an in-process Tracker. A non-positive ttl defaults to two minutes.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryTracker{ttl: ttl, now: time.Now, lastSeen: make(map[string]time.Time)}
}

// Touch marks the user as active now.
func (m *MemoryTracker) Touch(_ context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	m.mu.Lock()
	m.lastSeen[userID] = m.now()
	m.mu.Unlock()
	return nil
}

// Offline forgets the user.
func (m *MemoryTracker) Offline(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.lastSeen, userID)
	m.mu.Unlock()
	return nil
}

// Online reports the status of every requested user.
func (m *MemoryTracker) Online(_ context.Context, userIDs []string) (map[string]bool, error) {
	now := m.now()
	out := make(map[string]bool, len(userIDs))

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range userIDs {
		seen, ok := m.lastSeen[id]
		out[id] = ok && now.Sub(seen) < m.ttl
	}
	return out, nil
}
