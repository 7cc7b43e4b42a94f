package models

import "time"

// Record is a loosely typed persisted row keyed by column name.
type Record = map[string]any

// Sport identifies a favourite-sport tag on a user profile.
type Sport string

const (
	SportFootball   Sport = "football"
	SportBasketball Sport = "basketball"
	SportTennis     Sport = "tennis"
	SportPadel      Sport = "padel"
	SportVolleyball Sport = "volleyball"
	SportRunning    Sport = "running"
	SportCycling    Sport = "cycling"
	SportSwimming   Sport = "swimming"
	SportBadminton  Sport = "badminton"
	SportSquash     Sport = "squash"
)

var knownSports = map[Sport]struct{}{
	SportFootball: {}, SportBasketball: {}, SportTennis: {}, SportPadel: {}, SportVolleyball: {},
	SportRunning: {}, SportCycling: {}, SportSwimming: {}, SportBadminton: {}, SportSquash: {},
}

// Valid reports whether the sport belongs to the closed set of supported tags.
func (s Sport) Valid() bool {
	_, ok := knownSports[s]
	return ok
}

// User represents an account within the Playmates platform.
type User struct {
	ID             string
	Username       string
	FullName       string
	Email          string
	Password       string
	AvatarURL      *string
	FavoriteSports []Sport
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile is the public subset of a user shown to other members.
type Profile struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	FullName       string  `json:"fullName"`
	AvatarURL      *string `json:"avatarUrl"`
	FavoriteSports []Sport `json:"favoriteSports"`
}

// UserID returns the profile identifier. Views embedding Profile inherit it, which lets
// collections of different view models be deduplicated by user.
func (p Profile) UserID() string { return p.ID }

// DisplayName returns the full name, falling back to the username.
func (p Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Username
}

// RelationshipStatus is the state of the single edge stored for a user pair.
type RelationshipStatus string

const (
	RelationshipPending  RelationshipStatus = "pending"
	RelationshipAccepted RelationshipStatus = "accepted"
	RelationshipDeclined RelationshipStatus = "declined"
	RelationshipBlocked  RelationshipStatus = "blocked"
)

// Relationship is the edge between two users. For blocked edges the requester is the blocker.
type Relationship struct {
	ID          string             `json:"id"`
	RequesterID string             `json:"requesterId"`
	AddresseeID string             `json:"addresseeId"`
	Status      RelationshipStatus `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	RespondedAt *time.Time         `json:"respondedAt,omitempty"`
}

// Involves reports whether the user is one side of the relationship.
func (r Relationship) Involves(userID string) bool {
	return r.RequesterID == userID || r.AddresseeID == userID
}

// Counterpart returns the other side of the relationship from userID's perspective.
func (r Relationship) Counterpart(userID string) string {
	if r.RequesterID == userID {
		return r.AddresseeID
	}
	return r.RequesterID
}

// FriendshipStatus annotates another user from the acting user's perspective.
type FriendshipStatus string

const (
	FriendshipNone            FriendshipStatus = "none"
	FriendshipPendingSent     FriendshipStatus = "pending_sent"
	FriendshipPendingReceived FriendshipStatus = "pending_received"
	FriendshipFriends         FriendshipStatus = "friends"
	FriendshipBlocked         FriendshipStatus = "blocked"
)

// StatusFor derives the friendship status of a relationship as seen by viewerID.
// A nil relationship means no edge exists.
func StatusFor(rel *Relationship, viewerID string) FriendshipStatus {
	if rel == nil {
		return FriendshipNone
	}
	switch rel.Status {
	case RelationshipAccepted:
		return FriendshipFriends
	case RelationshipBlocked:
		return FriendshipBlocked
	case RelationshipPending:
		if rel.RequesterID == viewerID {
			return FriendshipPendingSent
		}
		return FriendshipPendingReceived
	default:
		return FriendshipNone
	}
}

// RequestDirection tells whether a pending request was sent or received by the viewer.
type RequestDirection string

const (
	DirectionSent     RequestDirection = "sent"
	DirectionReceived RequestDirection = "received"
)

// Friend is an accepted relationship viewed from one side.
type Friend struct {
	Profile
	RelationshipID string    `json:"relationshipId"`
	FriendsSince   time.Time `json:"friendsSince"`
	Online         *bool     `json:"online,omitempty"`
}

// FriendRequest is a pending relationship viewed from the sender or receiver.
type FriendRequest struct {
	ID        string           `json:"id"`
	User      Profile          `json:"user"`
	Direction RequestDirection `json:"direction"`
	CreatedAt time.Time        `json:"createdAt"`
}

// FriendRequests groups both directions of pending requests for a user.
type FriendRequests struct {
	Received []FriendRequest `json:"received"`
	Sent     []FriendRequest `json:"sent"`
}

// SuggestedFriend is a recommended user with its relevance signals.
type SuggestedFriend struct {
	Profile
	MutualSessions int     `json:"mutualSessions"`
	SharedSports   []Sport `json:"sharedSports"`
	Score          int     `json:"score"`
}

// InteractionContext describes the last play session shared with another member.
type InteractionContext struct {
	SessionID   string    `json:"sessionId"`
	SessionType Sport     `json:"sessionType"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// RecentMember is a user recently met in a play session.
type RecentMember struct {
	Profile
	Interaction InteractionContext `json:"interaction"`
	Summary     string             `json:"summary"`
}

// SearchResult is a user matched by search, annotated with the viewer's relationship to them.
type SearchResult struct {
	Profile
	Status FriendshipStatus `json:"status"`
}

// FriendRequestPermission controls who may send a user friend requests.
type FriendRequestPermission string

const (
	PermissionEveryone         FriendRequestPermission = "everyone"
	PermissionFriendsOfFriends FriendRequestPermission = "friends_of_friends"
	PermissionNoOne            FriendRequestPermission = "no_one"
)

// Valid reports whether the permission belongs to the closed set.
func (p FriendRequestPermission) Valid() bool {
	switch p {
	case PermissionEveryone, PermissionFriendsOfFriends, PermissionNoOne:
		return true
	}
	return false
}

// PrivacySettings holds per-user visibility preferences.
type PrivacySettings struct {
	FriendRequestPermission FriendRequestPermission `json:"friendRequestPermission"`
	ShowOnlineStatus        bool                    `json:"showOnlineStatus"`
}

// DefaultPrivacySettings returns the settings applied when a user has none stored.
func DefaultPrivacySettings() PrivacySettings {
	return PrivacySettings{
		FriendRequestPermission: PermissionEveryone,
		ShowOnlineStatus:        true,
	}
}

// FriendActionResult reports the outcome of a relationship mutation.
type FriendActionResult struct {
	Relationship Relationship     `json:"relationship"`
	Status       FriendshipStatus `json:"status"`
	Noop         bool             `json:"noop,omitempty"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
