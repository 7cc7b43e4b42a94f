package friends

import (
	"context"
	"sync"
	"time"

	"github.com/playmates/backend/internal/models"
)

// CandidateSource produces the merged, deduplicated suggestion candidates for a user.
type CandidateSource func(ctx context.Context, userID string) ([]models.SuggestedFriend, error)

type candidateEntry struct {
	candidates []models.SuggestedFriend
	expires    time.Time
}

// SuggestionCache keeps recommendation candidates per user for a TTL. Relationship filtering
// happens after the cache so a fresh friendship is never suggested from a stale entry.
type SuggestionCache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	items map[string]candidateEntry
}

// NewSuggestionCache returns a cache holding entries for ttl. A non-positive ttl defaults to a minute.
func NewSuggestionCache(ttl time.Duration) *SuggestionCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SuggestionCache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]candidateEntry),
	}
}

// Get returns cached candidates when fresh, otherwise it loads them through source and stores
// the result. Failed loads are not cached.
func (c *SuggestionCache) Get(ctx context.Context, userID string, source CandidateSource) ([]models.SuggestedFriend, error) {
	if c == nil {
		return source(ctx, userID)
	}

	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[userID]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.candidates, nil
	}

	candidates, err := source(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items[userID] = candidateEntry{candidates: candidates, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return candidates, nil
}

// Invalidate drops the cached candidates of the given users.
func (c *SuggestionCache) Invalidate(userIDs ...string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	for _, id := range userIDs {
		delete(c.items, id)
	}
	c.mu.Unlock()
}
