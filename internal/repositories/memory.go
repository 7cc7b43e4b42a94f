package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/playmates/backend/internal/models"
)

// PlaySession is a completed session fed by the matchmaking side; read-only for the friends subsystem.
type PlaySession struct {
	ID           string
	Sport        models.Sport
	PlayedAt     time.Time
	Participants []string
}

// MemoryStore is an in-process implementation of the user and relationship stores. It mirrors
// the PostgreSQL semantics, including the one-edge-per-pair constraint, and produces records
// with the same column keys.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]models.User
	relationships map[string]models.Relationship
	privacy       map[string]models.PrivacySettings
	sessions      map[string]PlaySession
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		relationships: make(map[string]models.Relationship),
		privacy:       make(map[string]models.PrivacySettings),
		sessions:      make(map[string]PlaySession),
	}
}

// Create stores a new user, rejecting duplicate ids, usernames and emails.
func (m *MemoryStore) Create(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.ID == user.ID || existing.Email == user.Email || strings.EqualFold(existing.Username, user.Username) {
			return ErrConflict
		}
	}
	m.users[user.ID] = user
	return nil
}

// FindByEmail looks a user up by email.
func (m *MemoryStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

// Update replaces an existing user.
func (m *MemoryStore) Update(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

// AddPlaySession records a session and its participants.
func (m *MemoryStore) AddPlaySession(session PlaySession) {
	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
}

// FindUser returns the public profile record for a user.
func (m *MemoryStore) FindUser(_ context.Context, userID string) (models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return profileRecord(user), nil
}

// GetRelationship loads a relationship by id.
func (m *MemoryStore) GetRelationship(_ context.Context, id string) (models.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rel, ok := m.relationships[id]
	if !ok {
		return models.Relationship{}, ErrNotFound
	}
	return rel, nil
}

// FindRelationship loads the relationship between two users regardless of direction.
func (m *MemoryStore) FindRelationship(_ context.Context, userA, userB string) (models.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rel, ok := m.pairLocked(userA, userB); ok {
		return rel, nil
	}
	return models.Relationship{}, ErrNotFound
}

// ListRelationships returns every edge touching the user.
func (m *MemoryStore) ListRelationships(_ context.Context, userID string) ([]models.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Relationship
	for _, rel := range m.relationships {
		if rel.Involves(userID) {
			out = append(out, rel)
		}
	}
	return out, nil
}

// CreateRelationship inserts a new edge. A second edge for the same pair fails with ErrConflict.
func (m *MemoryStore) CreateRelationship(_ context.Context, rel models.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[rel.RequesterID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.users[rel.AddresseeID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.pairLocked(rel.RequesterID, rel.AddresseeID); ok {
		return ErrConflict
	}
	if _, ok := m.relationships[rel.ID]; ok {
		return ErrConflict
	}
	m.relationships[rel.ID] = rel
	return nil
}

// AcceptRelationship transitions a pending request addressed to addresseeID into an accepted
// friendship. It reports changed=false when the request was already accepted.
func (m *MemoryStore) AcceptRelationship(_ context.Context, id, addresseeID string, at time.Time) (models.Relationship, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel, ok := m.relationships[id]
	if !ok || rel.AddresseeID != addresseeID {
		return models.Relationship{}, false, ErrNotFound
	}

	switch rel.Status {
	case models.RelationshipAccepted:
		return rel, false, nil
	case models.RelationshipPending:
	default:
		return models.Relationship{}, false, ErrNotFound
	}

	respondedAt := at.UTC()
	rel.Status = models.RelationshipAccepted
	rel.RespondedAt = &respondedAt
	m.relationships[id] = rel
	return rel, true, nil
}

// DeleteRelationship removes the edge only while it still has the expected status.
func (m *MemoryStore) DeleteRelationship(_ context.Context, id string, status models.RelationshipStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel, ok := m.relationships[id]
	if !ok || rel.Status != status {
		return ErrNotFound
	}
	delete(m.relationships, id)
	return nil
}

// UpsertBlock replaces whatever edge the pair has with a blocked edge owned by the blocker.
func (m *MemoryStore) UpsertBlock(_ context.Context, rel models.Relationship) (models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[rel.AddresseeID]; !ok {
		return models.Relationship{}, ErrNotFound
	}
	if existing, ok := m.pairLocked(rel.RequesterID, rel.AddresseeID); ok {
		delete(m.relationships, existing.ID)
	}
	rel.Status = models.RelationshipBlocked
	rel.RespondedAt = nil
	m.relationships[rel.ID] = rel
	return rel, nil
}

// HasMutualFriend reports whether the two users share at least one accepted friend.
func (m *MemoryStore) HasMutualFriend(_ context.Context, userA, userB string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	friendsOfA := make(map[string]struct{})
	for _, rel := range m.relationships {
		if rel.Status == models.RelationshipAccepted && rel.Involves(userA) {
			friendsOfA[rel.Counterpart(userA)] = struct{}{}
		}
	}
	for _, rel := range m.relationships {
		if rel.Status != models.RelationshipAccepted || !rel.Involves(userB) {
			continue
		}
		if _, ok := friendsOfA[rel.Counterpart(userB)]; ok {
			return true, nil
		}
	}
	return false, nil
}

// ListFriends returns accepted friends joined with profile and online-visibility preference.
func (m *MemoryStore) ListFriends(_ context.Context, userID string) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Record
	for _, rel := range m.relationships {
		if rel.Status != models.RelationshipAccepted || !rel.Involves(userID) {
			continue
		}
		friend, ok := m.users[rel.Counterpart(userID)]
		if !ok {
			continue
		}
		record := profileRecord(friend)
		record["relationship_id"] = rel.ID
		record["friends_since"] = rel.CreatedAt
		if rel.RespondedAt != nil {
			record["friends_since"] = *rel.RespondedAt
		}
		record["show_online_status"] = nil
		if settings, ok := m.privacy[friend.ID]; ok {
			record["show_online_status"] = settings.ShowOnlineStatus
		}
		out = append(out, record)
	}
	return out, nil
}

// ListPendingRequests returns pending requests in both directions joined with the counterpart profile.
func (m *MemoryStore) ListPendingRequests(_ context.Context, userID string) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []models.Relationship
	for _, rel := range m.relationships {
		if rel.Status == models.RelationshipPending && rel.Involves(userID) {
			pending = append(pending, rel)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.After(pending[j].CreatedAt) })

	out := make([]models.Record, 0, len(pending))
	for _, rel := range pending {
		other, ok := m.users[rel.Counterpart(userID)]
		if !ok {
			continue
		}
		record := profileRecord(other)
		record["request_id"] = rel.ID
		record["requester_id"] = rel.RequesterID
		record["addressee_id"] = rel.AddresseeID
		record["created_at"] = rel.CreatedAt
		out = append(out, record)
	}
	return out, nil
}

// SuggestBySessions returns users who played in the same sessions as the user.
func (m *MemoryStore) SuggestBySessions(_ context.Context, userID string, limit int) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := m.mutualSessionsLocked(userID)
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})

	var out []models.Record
	for _, id := range ids {
		user, ok := m.users[id]
		if !ok {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		record := profileRecord(user)
		record["mutual_sessions"] = int64(counts[id])
		out = append(out, record)
	}
	return out, nil
}

// SuggestBySports returns users sharing at least one favourite sport with the provided set.
func (m *MemoryStore) SuggestBySports(_ context.Context, userID string, sports []models.Sport, limit int) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(sports) == 0 {
		return nil, nil
	}
	wanted := make(map[models.Sport]struct{}, len(sports))
	for _, s := range sports {
		wanted[s] = struct{}{}
	}

	counts := m.mutualSessionsLocked(userID)
	var ids []string
	for id, user := range m.users {
		if id == userID {
			continue
		}
		for _, s := range user.FavoriteSports {
			if _, ok := wanted[s]; ok {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		record := profileRecord(m.users[id])
		record["mutual_sessions"] = int64(counts[id])
		out = append(out, record)
	}
	return out, nil
}

// ListRecentMembers returns users met in play sessions since the cut-off with the latest shared session.
func (m *MemoryStore) ListRecentMembers(_ context.Context, userID string, since time.Time) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[string]PlaySession)
	for _, session := range m.sessions {
		if session.PlayedAt.Before(since) || !containsString(session.Participants, userID) {
			continue
		}
		for _, other := range session.Participants {
			if other == userID {
				continue
			}
			if prev, ok := latest[other]; !ok || session.PlayedAt.After(prev.PlayedAt) {
				latest[other] = session
			}
		}
	}

	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		user, ok := m.users[id]
		if !ok {
			continue
		}
		session := latest[id]
		record := profileRecord(user)
		record["session_id"] = session.ID
		record["session_type"] = string(session.Sport)
		record["occurred_at"] = session.PlayedAt
		out = append(out, record)
	}
	return out, nil
}

// SearchUsers matches usernames and full names by case-insensitive substring, prefix matches first.
func (m *MemoryStore) SearchUsers(_ context.Context, viewerID, query string, limit int) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blockedBy := make(map[string]struct{})
	for _, rel := range m.relationships {
		if rel.Status == models.RelationshipBlocked && rel.AddresseeID == viewerID {
			blockedBy[rel.RequesterID] = struct{}{}
		}
	}

	needle := strings.ToLower(query)
	var matches []models.User
	for _, user := range m.users {
		if _, hidden := blockedBy[user.ID]; hidden || user.ID == viewerID {
			continue
		}
		if strings.Contains(strings.ToLower(user.Username), needle) || strings.Contains(strings.ToLower(user.FullName), needle) {
			matches = append(matches, user)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		pi := strings.HasPrefix(strings.ToLower(matches[i].Username), needle)
		pj := strings.HasPrefix(strings.ToLower(matches[j].Username), needle)
		if pi != pj {
			return pi
		}
		if matches[i].Username != matches[j].Username {
			return matches[i].Username < matches[j].Username
		}
		return matches[i].ID < matches[j].ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]models.Record, 0, len(matches))
	for _, user := range matches {
		out = append(out, profileRecord(user))
	}
	return out, nil
}

// FindPrivacySettings loads the stored settings for a user.
func (m *MemoryStore) FindPrivacySettings(_ context.Context, userID string) (models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	settings, ok := m.privacy[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return models.Record{
		"friend_request_permission": string(settings.FriendRequestPermission),
		"show_online_status":        settings.ShowOnlineStatus,
	}, nil
}

// SavePrivacySettings upserts the settings for a user.
func (m *MemoryStore) SavePrivacySettings(_ context.Context, userID string, settings models.PrivacySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	m.privacy[userID] = settings
	return nil
}

func (m *MemoryStore) pairLocked(userA, userB string) (models.Relationship, bool) {
	for _, rel := range m.relationships {
		if rel.Involves(userA) && rel.Involves(userB) && userA != userB {
			return rel, true
		}
	}
	return models.Relationship{}, false
}

func (m *MemoryStore) mutualSessionsLocked(userID string) map[string]int {
	counts := make(map[string]int)
	for _, session := range m.sessions {
		if !containsString(session.Participants, userID) {
			continue
		}
		for _, other := range session.Participants {
			if other != userID {
				counts[other]++
			}
		}
	}
	return counts
}

func profileRecord(user models.User) models.Record {
	var avatar any
	if user.AvatarURL != nil {
		avatar = *user.AvatarURL
	}
	return models.Record{
		"id":              user.ID,
		"username":        user.Username,
		"full_name":       user.FullName,
		"avatar_url":      avatar,
		"favorite_sports": sportStrings(user.FavoriteSports),
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

var _ UserRepository = (*MemoryStore)(nil)
