// Package client keeps a per-user cache of the friends collections in front of the
// relationship service, applying write results as keyed patches instead of refetching.
package client

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/playmates/backend/internal/friends"
	"github.com/playmates/backend/internal/models"
)

// Service is the subset of the relationship service the cache drives.
type Service interface {
	SendFriendRequest(ctx context.Context, senderID, receiverID string) (models.FriendActionResult, error)
	AcceptFriendRequest(ctx context.Context, actorID, requestID string) (models.FriendActionResult, error)
	DeclineFriendRequest(ctx context.Context, actorID, requestID string) (models.FriendActionResult, error)
	RemoveFriend(ctx context.Context, actorID, friendID string) (models.FriendActionResult, error)
	BlockUser(ctx context.Context, actorID, targetID string) (models.FriendActionResult, error)
	GetPrivacySettings(ctx context.Context, userID string) (models.PrivacySettings, error)
	UpdatePrivacySettings(ctx context.Context, userID string, partial map[string]any) (models.PrivacySettings, error)
	FetchSuggestedFriends(ctx context.Context, userID string) ([]models.SuggestedFriend, error)
	FetchRecentMembers(ctx context.Context, userID string) ([]models.RecentMember, error)
	FetchFriends(ctx context.Context, userID string) ([]models.Friend, error)
	FetchFriendRequests(ctx context.Context, userID string) (models.FriendRequests, error)
	SearchUsers(ctx context.Context, actorID, query string) ([]models.SearchResult, error)
}

// Collection names a cached slot with its own loading and error state.
type Collection string

const (
	CollectionSuggested Collection = "suggested"
	CollectionRecent    Collection = "recent"
	CollectionRequests  Collection = "requests"
	CollectionFriends   Collection = "friends"
	CollectionSearch    Collection = "search"
	CollectionPrivacy   Collection = "privacy"
)

// DefaultTimeout bounds every service call made by the cache.
const DefaultTimeout = 10 * time.Second

// Options tunes a Friends cache.
type Options struct {
	Timeout time.Duration
	Retry   *RetryPolicy
}

// Friends is the client-side view of one user's friends data.
type Friends struct {
	userID  string
	svc     Service
	timeout time.Duration
	retry   RetryPolicy

	mu        sync.Mutex
	suggested map[string]models.SuggestedFriend
	recent    map[string]models.RecentMember
	friends   map[string]models.Friend
	received  map[string]models.FriendRequest
	sent      map[string]models.FriendRequest
	loading   map[Collection]bool
	errs      map[Collection]error

	searchSeq     uint64
	searchQuery   string
	searchResults []models.SearchResult

	// privacy is what callers see: confirmed with every in-flight patch applied on top.
	privacy          *models.PrivacySettings
	privacyConfirmed *models.PrivacySettings
	privacyPending   map[uint64]friends.PrivacySettingsPatch
	privacyVersion   uint64
	confirmedVersion uint64
}

// New binds a cache to the acting user.
func New(userID string, svc Service, opts Options) *Friends {
	f := &Friends{
		userID:    userID,
		svc:       svc,
		timeout:   opts.Timeout,
		retry:     DefaultRetryPolicy(),
		suggested: make(map[string]models.SuggestedFriend),
		recent:    make(map[string]models.RecentMember),
		friends:   make(map[string]models.Friend),
		received:  make(map[string]models.FriendRequest),
		sent:      make(map[string]models.FriendRequest),
		loading:   make(map[Collection]bool),
		errs:      make(map[Collection]error),

		privacyPending: make(map[uint64]friends.PrivacySettingsPatch),
	}
	if opts.Retry != nil {
		f.retry = *opts.Retry
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	return f
}

// Data holds the four cached collections in display order.
type Data struct {
	Suggested []models.SuggestedFriend `json:"suggested"`
	Recent    []models.RecentMember    `json:"recent"`
	Friends   []models.Friend          `json:"friends"`
	Requests  models.FriendRequests    `json:"requests"`
}

// Snapshot is a consistent copy of the cache for rendering.
type Snapshot struct {
	Data          Data                    `json:"data"`
	Loading       map[Collection]bool     `json:"loading"`
	Errors        map[Collection]error    `json:"-"`
	SearchQuery   string                  `json:"searchQuery"`
	SearchResults []models.SearchResult   `json:"searchResults"`
	Privacy       *models.PrivacySettings `json:"privacy,omitempty"`
}

// Snapshot copies the current state. Collections come back sorted.
func (f *Friends) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := Snapshot{
		Data: Data{
			Suggested: friends.SortSuggestedFriends(values(f.suggested)),
			Recent:    friends.SortRecentMembers(values(f.recent)),
			Friends:   friends.SortFriends(values(f.friends)),
			Requests: models.FriendRequests{
				Received: friends.SortFriendRequests(values(f.received)),
				Sent:     friends.SortFriendRequests(values(f.sent)),
			},
		},
		Loading:       make(map[Collection]bool, len(f.loading)),
		Errors:        make(map[Collection]error, len(f.errs)),
		SearchQuery:   f.searchQuery,
		SearchResults: append([]models.SearchResult(nil), f.searchResults...),
	}
	for k, v := range f.loading {
		if v {
			snap.Loading[k] = true
		}
	}
	for k, v := range f.errs {
		if v != nil {
			snap.Errors[k] = v
		}
	}
	if f.privacy != nil {
		p := *f.privacy
		snap.Privacy = &p
	}
	return snap
}

// RefreshAll reloads the four collections in parallel. Each collection records its own
// error; one failure does not stop the others from updating. The first error is returned.
func (f *Friends) RefreshAll(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return f.LoadSuggested(ctx) })
	g.Go(func() error { return f.LoadRecent(ctx) })
	g.Go(func() error { return f.LoadFriends(ctx) })
	g.Go(func() error { return f.LoadRequests(ctx) })
	return g.Wait()
}

// LoadSuggested refreshes suggested friends.
func (f *Friends) LoadSuggested(ctx context.Context) error {
	return load(ctx, f, CollectionSuggested, func(ctx context.Context) ([]models.SuggestedFriend, error) {
		return f.svc.FetchSuggestedFriends(ctx, f.userID)
	}, func(list []models.SuggestedFriend) {
		f.suggested = byUserID(list)
	})
}

// LoadRecent refreshes recently met members.
func (f *Friends) LoadRecent(ctx context.Context) error {
	return load(ctx, f, CollectionRecent, func(ctx context.Context) ([]models.RecentMember, error) {
		return f.svc.FetchRecentMembers(ctx, f.userID)
	}, func(list []models.RecentMember) {
		f.recent = byUserID(list)
	})
}

// LoadFriends refreshes the friend list.
func (f *Friends) LoadFriends(ctx context.Context) error {
	return load(ctx, f, CollectionFriends, func(ctx context.Context) ([]models.Friend, error) {
		return f.svc.FetchFriends(ctx, f.userID)
	}, func(list []models.Friend) {
		f.friends = byUserID(list)
	})
}

// LoadRequests refreshes pending requests in both directions.
func (f *Friends) LoadRequests(ctx context.Context) error {
	return load(ctx, f, CollectionRequests, func(ctx context.Context) (models.FriendRequests, error) {
		return f.svc.FetchFriendRequests(ctx, f.userID)
	}, func(requests models.FriendRequests) {
		f.received = byRequestID(requests.Received)
		f.sent = byRequestID(requests.Sent)
	})
}

// load runs a read for one collection and stores the result under the lock. On failure the
// previous data is kept and the error recorded in the collection's slot.
func load[T any](ctx context.Context, f *Friends, slot Collection, fetch func(context.Context) (T, error), store func(T)) error {
	f.mu.Lock()
	f.loading[slot] = true
	f.mu.Unlock()

	result, err := readWithRetry(ctx, f.timeout, f.retry, fetch)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading[slot] = false
	if err != nil {
		f.errs[slot] = err
		return err
	}
	delete(f.errs, slot)
	store(result)
	return nil
}

// HandleSearch runs a search for query. A response arriving after a newer search was issued
// is discarded. An empty query clears the results without calling the service.
func (f *Friends) HandleSearch(ctx context.Context, query string) error {
	f.mu.Lock()
	f.searchSeq++
	seq := f.searchSeq
	f.searchQuery = query
	if strings.TrimSpace(query) == "" {
		f.searchResults = nil
		f.loading[CollectionSearch] = false
		delete(f.errs, CollectionSearch)
		f.mu.Unlock()
		return nil
	}
	f.loading[CollectionSearch] = true
	f.mu.Unlock()

	results, err := readWithRetry(ctx, f.timeout, f.retry, func(ctx context.Context) ([]models.SearchResult, error) {
		return f.svc.SearchUsers(ctx, f.userID, query)
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq != f.searchSeq {
		return nil
	}
	f.loading[CollectionSearch] = false
	if err != nil {
		f.errs[CollectionSearch] = err
		return err
	}
	delete(f.errs, CollectionSearch)
	f.searchResults = results
	return nil
}

// SendFriendRequest sends a request and records it as outgoing. The received requests and
// friends are left alone.
func (f *Friends) SendFriendRequest(ctx context.Context, receiverID string) (models.FriendActionResult, error) {
	result, err := withTimeout(ctx, f.timeout, func(ctx context.Context) (models.FriendActionResult, error) {
		return f.svc.SendFriendRequest(ctx, f.userID, receiverID)
	})
	if err != nil {
		return models.FriendActionResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rel := result.Relationship
	f.sent[rel.ID] = models.FriendRequest{
		ID:        rel.ID,
		User:      f.profileLocked(receiverID),
		Direction: models.DirectionSent,
		CreatedAt: rel.CreatedAt,
	}
	delete(f.suggested, receiverID)
	f.setSearchStatusLocked(receiverID, models.FriendshipPendingSent)
	return result, nil
}

// AcceptFriendRequest accepts a received request and moves its sender into the friend list.
func (f *Friends) AcceptFriendRequest(ctx context.Context, requestID string) (models.FriendActionResult, error) {
	result, err := withTimeout(ctx, f.timeout, func(ctx context.Context) (models.FriendActionResult, error) {
		return f.svc.AcceptFriendRequest(ctx, f.userID, requestID)
	})
	if err != nil {
		return models.FriendActionResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rel := result.Relationship
	otherID := rel.Counterpart(f.userID)
	profile := f.profileLocked(otherID)
	if req, ok := f.received[requestID]; ok {
		profile = req.User
	}
	delete(f.received, requestID)

	since := rel.CreatedAt
	if rel.RespondedAt != nil {
		since = *rel.RespondedAt
	}
	if existing, ok := f.friends[otherID]; ok {
		existing.RelationshipID = rel.ID
		f.friends[otherID] = existing
	} else {
		f.friends[otherID] = models.Friend{Profile: profile, RelationshipID: rel.ID, FriendsSince: since}
	}
	delete(f.suggested, otherID)
	f.setSearchStatusLocked(otherID, models.FriendshipFriends)
	return result, nil
}

// DeclineFriendRequest declines a received request or cancels a sent one.
func (f *Friends) DeclineFriendRequest(ctx context.Context, requestID string) (models.FriendActionResult, error) {
	result, err := withTimeout(ctx, f.timeout, func(ctx context.Context) (models.FriendActionResult, error) {
		return f.svc.DeclineFriendRequest(ctx, f.userID, requestID)
	})
	if err != nil {
		return models.FriendActionResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.received, requestID)
	delete(f.sent, requestID)
	f.setSearchStatusLocked(result.Relationship.Counterpart(f.userID), models.FriendshipNone)
	return result, nil
}

// RemoveFriend ends a friendship.
func (f *Friends) RemoveFriend(ctx context.Context, friendID string) (models.FriendActionResult, error) {
	result, err := withTimeout(ctx, f.timeout, func(ctx context.Context) (models.FriendActionResult, error) {
		return f.svc.RemoveFriend(ctx, f.userID, friendID)
	})
	if err != nil {
		return models.FriendActionResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.friends, friendID)
	f.setSearchStatusLocked(friendID, models.FriendshipNone)
	return result, nil
}

// BlockUser blocks a user and drops them from every cached collection.
func (f *Friends) BlockUser(ctx context.Context, targetID string) (models.FriendActionResult, error) {
	result, err := withTimeout(ctx, f.timeout, func(ctx context.Context) (models.FriendActionResult, error) {
		return f.svc.BlockUser(ctx, f.userID, targetID)
	})
	if err != nil {
		return models.FriendActionResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.friends, targetID)
	delete(f.suggested, targetID)
	delete(f.recent, targetID)
	for id, req := range f.received {
		if req.User.ID == targetID {
			delete(f.received, id)
		}
	}
	for id, req := range f.sent {
		if req.User.ID == targetID {
			delete(f.sent, id)
		}
	}
	f.setSearchStatusLocked(targetID, models.FriendshipBlocked)
	return result, nil
}

// LoadPrivacySettings fetches the user's privacy settings.
func (f *Friends) LoadPrivacySettings(ctx context.Context) error {
	f.mu.Lock()
	version := f.privacyVersion
	f.loading[CollectionPrivacy] = true
	f.mu.Unlock()

	settings, err := readWithRetry(ctx, f.timeout, f.retry, func(ctx context.Context) (models.PrivacySettings, error) {
		return f.svc.GetPrivacySettings(ctx, f.userID)
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading[CollectionPrivacy] = false
	if err != nil {
		f.errs[CollectionPrivacy] = err
		return err
	}
	delete(f.errs, CollectionPrivacy)
	// An update issued meanwhile is newer than this read.
	if version == f.privacyVersion {
		f.privacyConfirmed = &settings
		f.confirmedVersion = version
		f.rebuildPrivacyLocked()
	}
	return nil
}

// UpdatePrivacySettings applies partial locally before the service confirms it. The
// canonical response becomes the confirmed value; a failed update is dropped and the
// cache falls back to the confirmed value plus the updates still in flight.
func (f *Friends) UpdatePrivacySettings(ctx context.Context, partial map[string]any) (models.PrivacySettings, error) {
	patch, err := friends.ValidatePrivacySettingsUpdate(partial)
	if err != nil {
		return models.PrivacySettings{}, err
	}

	f.mu.Lock()
	f.privacyVersion++
	version := f.privacyVersion
	f.privacyPending[version] = patch
	f.rebuildPrivacyLocked()
	f.mu.Unlock()

	settings, err := withTimeout(ctx, f.timeout, func(ctx context.Context) (models.PrivacySettings, error) {
		return f.svc.UpdatePrivacySettings(ctx, f.userID, partial)
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.privacyPending, version)
	if err != nil {
		if version == f.privacyVersion {
			f.errs[CollectionPrivacy] = err
		}
		f.rebuildPrivacyLocked()
		return models.PrivacySettings{}, err
	}
	// A response to an older update never overwrites a newer confirmation.
	if version > f.confirmedVersion {
		f.privacyConfirmed = &settings
		f.confirmedVersion = version
	}
	if version == f.privacyVersion {
		delete(f.errs, CollectionPrivacy)
	}
	f.rebuildPrivacyLocked()
	return settings, nil
}

// rebuildPrivacyLocked replays the pending patches, oldest first, over the confirmed settings.
func (f *Friends) rebuildPrivacyLocked() {
	if len(f.privacyPending) == 0 {
		if f.privacyConfirmed == nil {
			f.privacy = nil
			return
		}
		confirmed := *f.privacyConfirmed
		f.privacy = &confirmed
		return
	}

	settings := models.DefaultPrivacySettings()
	if f.privacyConfirmed != nil {
		settings = *f.privacyConfirmed
	}
	versions := make([]uint64, 0, len(f.privacyPending))
	for v := range f.privacyPending {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	for _, v := range versions {
		settings = f.privacyPending[v].Apply(settings)
	}
	f.privacy = &settings
}

// profileLocked finds the best known profile for a user across the cached collections.
func (f *Friends) profileLocked(userID string) models.Profile {
	for _, r := range f.searchResults {
		if r.ID == userID {
			return r.Profile
		}
	}
	if s, ok := f.suggested[userID]; ok {
		return s.Profile
	}
	if m, ok := f.recent[userID]; ok {
		return m.Profile
	}
	for _, req := range f.received {
		if req.User.ID == userID {
			return req.User
		}
	}
	return models.Profile{ID: userID, FavoriteSports: []models.Sport{}}
}

func (f *Friends) setSearchStatusLocked(userID string, status models.FriendshipStatus) {
	for i := range f.searchResults {
		if f.searchResults[i].ID == userID {
			f.searchResults[i].Status = status
		}
	}
}

func values[T any](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func byUserID[T interface{ UserID() string }](list []T) map[string]T {
	out := make(map[string]T, len(list))
	for _, item := range list {
		out[item.UserID()] = item
	}
	return out
}

func byRequestID(list []models.FriendRequest) map[string]models.FriendRequest {
	out := make(map[string]models.FriendRequest, len(list))
	for _, req := range list {
		out[req.ID] = req
	}
	return out
}
