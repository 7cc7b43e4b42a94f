package friends

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/playmates/backend/internal/logging"
	"github.com/playmates/backend/internal/models"
	"github.com/playmates/backend/internal/repositories"
)

const (
	defaultSearchLimit     = 20
	defaultSuggestionLimit = 50
	defaultRecentWindow    = 30 * 24 * time.Hour
)

// Options tunes a Service. Zero values select defaults.
type Options struct {
	// Presence feeds Friend.Online. Without it friends carry no online flag.
	Presence PresenceTracker
	// Cache holds merged suggestion candidates per user.
	Cache *SuggestionCache

	SearchLimit     int
	SuggestionLimit int
	// RecentWindow bounds how far back recently-met members are listed.
	RecentWindow time.Duration

	Now   func() time.Time
	NewID func() string
}

// Service implements the friend relationship operations on top of a Store.
type Service struct {
	store    Store
	presence PresenceTracker
	cache    *SuggestionCache

	searchLimit     int
	suggestionLimit int
	recentWindow    time.Duration

	now   func() time.Time
	newID func() string
}

// NewService constructs a Service. It panics when store is nil.
func NewService(store Store, opts Options) *Service {
	if store == nil {
		panic("friends: store must not be nil")
	}
	s := &Service{
		store:           store,
		presence:        opts.Presence,
		cache:           opts.Cache,
		searchLimit:     opts.SearchLimit,
		suggestionLimit: opts.SuggestionLimit,
		recentWindow:    opts.RecentWindow,
		now:             opts.Now,
		newID:           opts.NewID,
	}
	if s.searchLimit <= 0 {
		s.searchLimit = defaultSearchLimit
	}
	if s.suggestionLimit <= 0 {
		s.suggestionLimit = defaultSuggestionLimit
	}
	if s.recentWindow <= 0 {
		s.recentWindow = defaultRecentWindow
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// SendFriendRequest creates a pending request from sender to receiver.
func (s *Service) SendFriendRequest(ctx context.Context, senderID, receiverID string) (result models.FriendActionResult, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.send_request",
		slog.String("sender_id", senderID), slog.String("receiver_id", receiverID))
	defer func() { span.EndErr(err) }()

	if senderID, receiverID, err = validatePair(senderID, receiverID); err != nil {
		return models.FriendActionResult{}, err
	}

	if _, err := s.store.FindUser(ctx, receiverID); err != nil {
		return models.FriendActionResult{}, TransformAPIError(err, "user not found")
	}

	existing, err := s.findRelationship(ctx, senderID, receiverID)
	if err != nil {
		return models.FriendActionResult{}, err
	}
	privacy, err := s.privacySettings(ctx, receiverID)
	if err != nil {
		return models.FriendActionResult{}, err
	}

	state := RequestState{Existing: existing, ReceiverPrivacy: privacy}
	if existing == nil && privacy.FriendRequestPermission == models.PermissionFriendsOfFriends {
		mutual, err := s.store.HasMutualFriend(ctx, senderID, receiverID)
		if err != nil {
			return models.FriendActionResult{}, TransformAPIError(err, "could not check mutual friends")
		}
		state.MutualFriend = mutual
	}
	if err := ValidateFriendRequest(senderID, receiverID, state); err != nil {
		return models.FriendActionResult{}, err
	}

	rel := models.Relationship{
		ID:          s.newID(),
		RequesterID: senderID,
		AddresseeID: receiverID,
		Status:      models.RelationshipPending,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateRelationship(ctx, rel); err != nil {
		return models.FriendActionResult{}, TransformAPIError(err, "a friend request between these users was just created")
	}
	s.cache.Invalidate(senderID, receiverID)

	logging.FromContext(ctx).Info("friend request sent", slog.String("request_id", rel.ID))
	return models.FriendActionResult{Relationship: rel, Status: models.FriendshipPendingSent}, nil
}

// AcceptFriendRequest accepts a pending request addressed to actorID. Accepting an already
// accepted request succeeds with Noop set.
func (s *Service) AcceptFriendRequest(ctx context.Context, actorID, requestID string) (result models.FriendActionResult, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.accept_request",
		slog.String("actor_id", actorID), slog.String("request_id", requestID))
	defer func() { span.EndErr(err) }()

	if actorID, requestID, err = validateIDs(actorID, requestID); err != nil {
		return models.FriendActionResult{}, err
	}

	rel, changed, err := s.store.AcceptRelationship(ctx, requestID, actorID, s.now())
	if err != nil {
		return models.FriendActionResult{}, TransformAPIError(err, "friend request not found")
	}
	if changed {
		s.cache.Invalidate(rel.RequesterID, rel.AddresseeID)
	}
	return models.FriendActionResult{Relationship: rel, Status: models.FriendshipFriends, Noop: !changed}, nil
}

// DeclineFriendRequest deletes a pending request. The addressee declines it; the requester
// may use it to cancel their own request.
func (s *Service) DeclineFriendRequest(ctx context.Context, actorID, requestID string) (result models.FriendActionResult, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.decline_request",
		slog.String("actor_id", actorID), slog.String("request_id", requestID))
	defer func() { span.EndErr(err) }()

	if actorID, requestID, err = validateIDs(actorID, requestID); err != nil {
		return models.FriendActionResult{}, err
	}

	rel, err := s.store.GetRelationship(ctx, requestID)
	if err != nil {
		return models.FriendActionResult{}, TransformAPIError(err, "friend request not found")
	}
	if !rel.Involves(actorID) || rel.Status != models.RelationshipPending {
		return models.FriendActionResult{}, newError(KindNotFound, "friend request not found")
	}
	if err := s.store.DeleteRelationship(ctx, rel.ID, models.RelationshipPending); err != nil {
		return models.FriendActionResult{}, TransformAPIError(err, "friend request not found")
	}
	s.cache.Invalidate(rel.RequesterID, rel.AddresseeID)

	rel.Status = models.RelationshipDeclined
	return models.FriendActionResult{Relationship: rel, Status: models.FriendshipNone}, nil
}

// RemoveFriend deletes an accepted friendship.
func (s *Service) RemoveFriend(ctx context.Context, actorID, friendID string) (result models.FriendActionResult, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.remove",
		slog.String("actor_id", actorID), slog.String("friend_id", friendID))
	defer func() { span.EndErr(err) }()

	if actorID, friendID, err = validatePair(actorID, friendID); err != nil {
		return models.FriendActionResult{}, err
	}

	rel, err := s.findRelationship(ctx, actorID, friendID)
	if err != nil {
		return models.FriendActionResult{}, err
	}
	if rel == nil || rel.Status != models.RelationshipAccepted {
		return models.FriendActionResult{}, newError(KindNotFound, "you are not friends with this user")
	}
	if err := s.store.DeleteRelationship(ctx, rel.ID, models.RelationshipAccepted); err != nil {
		return models.FriendActionResult{}, TransformAPIError(err, "friendship not found")
	}
	s.cache.Invalidate(actorID, friendID)
	return models.FriendActionResult{Relationship: *rel, Status: models.FriendshipNone}, nil
}

// BlockUser replaces any relationship with target by a block owned by actorID.
func (s *Service) BlockUser(ctx context.Context, actorID, targetID string) (result models.FriendActionResult, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.block",
		slog.String("actor_id", actorID), slog.String("target_id", targetID))
	defer func() { span.EndErr(err) }()

	if actorID, targetID, err = validatePair(actorID, targetID); err != nil {
		return models.FriendActionResult{}, err
	}
	if _, err := s.store.FindUser(ctx, targetID); err != nil {
		return models.FriendActionResult{}, TransformAPIError(err, "user not found")
	}

	existing, err := s.findRelationship(ctx, actorID, targetID)
	if err != nil {
		return models.FriendActionResult{}, err
	}
	if existing != nil && existing.Status == models.RelationshipBlocked {
		if existing.RequesterID == actorID {
			return models.FriendActionResult{Relationship: *existing, Status: models.FriendshipBlocked, Noop: true}, nil
		}
		return models.FriendActionResult{}, newError(KindPermissionDenied, "this user is not available")
	}

	rel, err := s.store.UpsertBlock(ctx, models.Relationship{
		ID:          s.newID(),
		RequesterID: actorID,
		AddresseeID: targetID,
		Status:      models.RelationshipBlocked,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return models.FriendActionResult{}, TransformAPIError(err, "could not block user")
	}
	s.cache.Invalidate(actorID, targetID)
	return models.FriendActionResult{Relationship: rel, Status: models.FriendshipBlocked}, nil
}

// UnblockUser lifts a block previously placed by actorID.
func (s *Service) UnblockUser(ctx context.Context, actorID, targetID string) (result models.FriendActionResult, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.unblock",
		slog.String("actor_id", actorID), slog.String("target_id", targetID))
	defer func() { span.EndErr(err) }()

	if actorID, targetID, err = validatePair(actorID, targetID); err != nil {
		return models.FriendActionResult{}, err
	}

	rel, err := s.findRelationship(ctx, actorID, targetID)
	if err != nil {
		return models.FriendActionResult{}, err
	}
	if rel == nil || rel.Status != models.RelationshipBlocked || rel.RequesterID != actorID {
		return models.FriendActionResult{}, newError(KindNotFound, "you have not blocked this user")
	}
	if err := s.store.DeleteRelationship(ctx, rel.ID, models.RelationshipBlocked); err != nil {
		return models.FriendActionResult{}, TransformAPIError(err, "block not found")
	}
	s.cache.Invalidate(actorID, targetID)
	return models.FriendActionResult{Relationship: *rel, Status: models.FriendshipNone}, nil
}

// GetPrivacySettings returns the stored settings of userID, or the defaults when none exist.
func (s *Service) GetPrivacySettings(ctx context.Context, userID string) (settings models.PrivacySettings, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.get_privacy", slog.String("user_id", userID))
	defer func() { span.EndErr(err) }()

	if userID, err = NormalizeUserID("", userID); err != nil {
		return models.PrivacySettings{}, err
	}
	return s.privacySettings(ctx, userID)
}

// UpdatePrivacySettings validates partial, merges it into the stored settings and persists
// the result, which is returned.
func (s *Service) UpdatePrivacySettings(ctx context.Context, userID string, partial map[string]any) (settings models.PrivacySettings, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.update_privacy", slog.String("user_id", userID))
	defer func() { span.EndErr(err) }()

	if userID, err = NormalizeUserID("", userID); err != nil {
		return models.PrivacySettings{}, err
	}
	patch, err := ValidatePrivacySettingsUpdate(partial)
	if err != nil {
		return models.PrivacySettings{}, err
	}

	current, err := s.privacySettings(ctx, userID)
	if err != nil {
		return models.PrivacySettings{}, err
	}
	merged := patch.Apply(current)
	if err := s.store.SavePrivacySettings(ctx, userID, merged); err != nil {
		return models.PrivacySettings{}, TransformAPIError(err, "could not save privacy settings")
	}
	return merged, nil
}

// FetchSuggestedFriends merges session and sport recommendations, dropping anyone the user
// already has a relationship with.
func (s *Service) FetchSuggestedFriends(ctx context.Context, userID string) (list []models.SuggestedFriend, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.fetch_suggested", slog.String("user_id", userID))
	defer func() { span.EndErr(err) }()

	if userID, err = NormalizeUserID("", userID); err != nil {
		return nil, err
	}

	candidates, err := s.cache.Get(ctx, userID, s.loadCandidates)
	if err != nil {
		return nil, err
	}

	related, err := s.relatedUsers(ctx, userID)
	if err != nil {
		return nil, err
	}
	kept := FilterSuggestedFriends(candidates, func(c models.SuggestedFriend) bool {
		_, taken := related[c.ID]
		return !taken && c.ID != userID
	})
	return SortSuggestedFriends(kept), nil
}

func (s *Service) loadCandidates(ctx context.Context, userID string) ([]models.SuggestedFriend, error) {
	record, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return nil, TransformAPIError(err, "user not found")
	}
	viewer, err := TransformProfile(record)
	if err != nil {
		return nil, &Error{Kind: KindUnknownStore, Message: "could not read user profile", Err: err}
	}

	var bySessions, bySports []models.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bySessions, err = s.store.SuggestBySessions(gctx, userID, s.suggestionLimit)
		return err
	})
	g.Go(func() error {
		var err error
		bySports, err = s.store.SuggestBySports(gctx, userID, viewer.FavoriteSports, s.suggestionLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, TransformAPIError(err, "could not load suggestions")
	}

	decode := func(r models.Record) (models.SuggestedFriend, error) {
		return TransformSuggestedFriend(r, viewer.FavoriteSports)
	}
	merged := append(
		transformRecords(ctx, "suggestion", bySessions, decode),
		transformRecords(ctx, "suggestion", bySports, decode)...,
	)
	return DeduplicateUsers(merged), nil
}

// FetchRecentMembers lists users met in recent play sessions, most recent first. Blocked users
// in either direction are hidden.
func (s *Service) FetchRecentMembers(ctx context.Context, userID string) (list []models.RecentMember, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.fetch_recent", slog.String("user_id", userID))
	defer func() { span.EndErr(err) }()

	if userID, err = NormalizeUserID("", userID); err != nil {
		return nil, err
	}

	now := s.now()
	records, err := s.store.ListRecentMembers(ctx, userID, now.Add(-s.recentWindow))
	if err != nil {
		return nil, TransformAPIError(err, "could not load recent members")
	}
	blocked, err := s.blockedUsers(ctx, userID)
	if err != nil {
		return nil, err
	}

	members := transformRecords(ctx, "recent_member", records, func(r models.Record) (models.RecentMember, error) {
		return TransformRecentMember(r, now)
	})
	members = FilterRecentMembers(DeduplicateUsers(members), func(m models.RecentMember) bool {
		_, hidden := blocked[m.ID]
		return !hidden && m.ID != userID
	})
	return SortRecentMembers(members), nil
}

// FetchFriends lists accepted friends ordered by display name.
func (s *Service) FetchFriends(ctx context.Context, userID string) (list []models.Friend, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.fetch_friends", slog.String("user_id", userID))
	defer func() { span.EndErr(err) }()

	if userID, err = NormalizeUserID("", userID); err != nil {
		return nil, err
	}

	records, err := s.store.ListFriends(ctx, userID)
	if err != nil {
		return nil, TransformAPIError(err, "could not load friends")
	}

	online := s.onlineStatus(ctx, records)
	friends := transformRecords(ctx, "friend", records, func(r models.Record) (models.Friend, error) {
		return TransformFriend(r, online)
	})
	return SortFriends(DeduplicateUsers(friends)), nil
}

// onlineStatus looks up presence for the friends in records. Presence is best effort: a
// failing tracker yields no online flags rather than failing the listing.
func (s *Service) onlineStatus(ctx context.Context, records []models.Record) map[string]bool {
	if s.presence == nil || len(records) == 0 {
		return nil
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if id, ok := r["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	online, err := s.presence.Online(ctx, ids)
	if err != nil {
		logging.FromContext(ctx).Warn("presence lookup failed", slog.Any("error", err))
		return nil
	}
	if online == nil {
		online = make(map[string]bool)
	}
	return online
}

// FetchFriendRequests lists pending requests split by direction, newest first.
func (s *Service) FetchFriendRequests(ctx context.Context, userID string) (requests models.FriendRequests, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.fetch_requests", slog.String("user_id", userID))
	defer func() { span.EndErr(err) }()

	if userID, err = NormalizeUserID("", userID); err != nil {
		return models.FriendRequests{}, err
	}

	records, err := s.store.ListPendingRequests(ctx, userID)
	if err != nil {
		return models.FriendRequests{}, TransformAPIError(err, "could not load friend requests")
	}

	all := transformRecords(ctx, "friend_request", records, func(r models.Record) (models.FriendRequest, error) {
		return TransformFriendRequest(r, userID)
	})
	requests = models.FriendRequests{
		Received: make([]models.FriendRequest, 0),
		Sent:     make([]models.FriendRequest, 0),
	}
	for _, req := range all {
		if req.Direction == models.DirectionSent {
			requests.Sent = append(requests.Sent, req)
		} else {
			requests.Received = append(requests.Received, req)
		}
	}
	requests.Received = SortFriendRequests(requests.Received)
	requests.Sent = SortFriendRequests(requests.Sent)
	return requests, nil
}

// SearchUsers matches users by username or name and annotates each result with the actor's
// friendship status. The actor and users who blocked the actor are never returned.
func (s *Service) SearchUsers(ctx context.Context, actorID, query string) (results []models.SearchResult, err error) {
	ctx, span := logging.StartSpan(ctx, "friends.search", slog.String("actor_id", actorID))
	defer func() { span.EndErr(err) }()

	if actorID, err = NormalizeUserID("", actorID); err != nil {
		return nil, err
	}
	query, err = ValidateSearchQuery(query)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return []models.SearchResult{}, nil
	}

	records, err := s.store.SearchUsers(ctx, actorID, query, s.searchLimit)
	if err != nil {
		return nil, TransformAPIError(err, "search failed")
	}
	rels, err := s.store.ListRelationships(ctx, actorID)
	if err != nil {
		return nil, TransformAPIError(err, "search failed")
	}
	byUser := make(map[string]models.Relationship, len(rels))
	for _, rel := range rels {
		byUser[rel.Counterpart(actorID)] = rel
	}

	results = make([]models.SearchResult, 0, len(records))
	for _, record := range records {
		profile, err := TransformProfile(record)
		if err != nil {
			logging.FromContext(ctx).Warn("skipping malformed record",
				slog.String("record_kind", "search_result"), slog.Any("error", err))
			continue
		}
		if strings.EqualFold(profile.ID, actorID) {
			continue
		}
		var relPtr *models.Relationship
		if rel, ok := byUser[profile.ID]; ok {
			if rel.Status == models.RelationshipBlocked && rel.RequesterID != actorID {
				continue
			}
			relPtr = &rel
		}
		results = append(results, models.SearchResult{Profile: profile, Status: models.StatusFor(relPtr, actorID)})
		if len(results) == s.searchLimit {
			break
		}
	}
	return DeduplicateUsers(results), nil
}

func (s *Service) findRelationship(ctx context.Context, userA, userB string) (*models.Relationship, error) {
	rel, err := s.store.FindRelationship(ctx, userA, userB)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, TransformAPIError(err, "could not load relationship")
	}
	return &rel, nil
}

func (s *Service) privacySettings(ctx context.Context, userID string) (models.PrivacySettings, error) {
	record, err := s.store.FindPrivacySettings(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.DefaultPrivacySettings(), nil
		}
		return models.PrivacySettings{}, TransformAPIError(err, "could not load privacy settings")
	}
	return TransformPrivacySettings(record), nil
}

// relatedUsers returns every user sharing any relationship with userID.
func (s *Service) relatedUsers(ctx context.Context, userID string) (map[string]models.Relationship, error) {
	rels, err := s.store.ListRelationships(ctx, userID)
	if err != nil {
		return nil, TransformAPIError(err, "could not load relationships")
	}
	related := make(map[string]models.Relationship, len(rels))
	for _, rel := range rels {
		related[rel.Counterpart(userID)] = rel
	}
	return related, nil
}

func (s *Service) blockedUsers(ctx context.Context, userID string) (map[string]struct{}, error) {
	related, err := s.relatedUsers(ctx, userID)
	if err != nil {
		return nil, err
	}
	blocked := make(map[string]struct{})
	for id, rel := range related {
		if rel.Status == models.RelationshipBlocked {
			blocked[id] = struct{}{}
		}
	}
	return blocked, nil
}

func validatePair(actorID, otherID string) (string, string, error) {
	actor, err := NormalizeUserID("", actorID)
	if err != nil {
		return "", "", err
	}
	other, err := NormalizeUserID(actor, otherID)
	if err != nil {
		return "", "", err
	}
	return actor, other, nil
}

func validateIDs(actorID, requestID string) (string, string, error) {
	actor, err := NormalizeUserID("", actorID)
	if err != nil {
		return "", "", err
	}
	parsed, err := uuid.Parse(strings.TrimSpace(requestID))
	if err != nil {
		return "", "", &Error{Kind: KindInvalidIdentifier, Message: "request id is malformed", Err: err}
	}
	return actor, parsed.String(), nil
}
