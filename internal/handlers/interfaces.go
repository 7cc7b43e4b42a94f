package handlers

import (
	"context"

	"github.com/playmates/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// SessionManager issues, refreshes and revokes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
}

// FriendService is the relationship service behind the friends, search and privacy endpoints.
type FriendService interface {
	SendFriendRequest(ctx context.Context, senderID, receiverID string) (models.FriendActionResult, error)
	AcceptFriendRequest(ctx context.Context, actorID, requestID string) (models.FriendActionResult, error)
	DeclineFriendRequest(ctx context.Context, actorID, requestID string) (models.FriendActionResult, error)
	RemoveFriend(ctx context.Context, actorID, friendID string) (models.FriendActionResult, error)
	BlockUser(ctx context.Context, actorID, targetID string) (models.FriendActionResult, error)
	UnblockUser(ctx context.Context, actorID, targetID string) (models.FriendActionResult, error)
	GetPrivacySettings(ctx context.Context, userID string) (models.PrivacySettings, error)
	UpdatePrivacySettings(ctx context.Context, userID string, partial map[string]any) (models.PrivacySettings, error)
	FetchSuggestedFriends(ctx context.Context, userID string) ([]models.SuggestedFriend, error)
	FetchRecentMembers(ctx context.Context, userID string) ([]models.RecentMember, error)
	FetchFriends(ctx context.Context, userID string) ([]models.Friend, error)
	FetchFriendRequests(ctx context.Context, userID string) (models.FriendRequests, error)
	SearchUsers(ctx context.Context, actorID, query string) ([]models.SearchResult, error)
}
