package friends

import (
	"context"
	"time"

	"github.com/playmates/backend/internal/models"
)

// Store is the persistence contract the service needs. Both the PostgreSQL and the in-memory
// repositories satisfy it; reads return loosely typed records that the transformers shape.
type Store interface {
	FindUser(ctx context.Context, userID string) (models.Record, error)

	GetRelationship(ctx context.Context, id string) (models.Relationship, error)
	FindRelationship(ctx context.Context, userA, userB string) (models.Relationship, error)
	ListRelationships(ctx context.Context, userID string) ([]models.Relationship, error)
	CreateRelationship(ctx context.Context, rel models.Relationship) error
	AcceptRelationship(ctx context.Context, id, addresseeID string, at time.Time) (models.Relationship, bool, error)
	DeleteRelationship(ctx context.Context, id string, status models.RelationshipStatus) error
	UpsertBlock(ctx context.Context, rel models.Relationship) (models.Relationship, error)
	HasMutualFriend(ctx context.Context, userA, userB string) (bool, error)

	ListFriends(ctx context.Context, userID string) ([]models.Record, error)
	ListPendingRequests(ctx context.Context, userID string) ([]models.Record, error)
	SuggestBySessions(ctx context.Context, userID string, limit int) ([]models.Record, error)
	SuggestBySports(ctx context.Context, userID string, sports []models.Sport, limit int) ([]models.Record, error)
	ListRecentMembers(ctx context.Context, userID string, since time.Time) ([]models.Record, error)
	// SearchUsers matches users by name on behalf of viewerID, leaving out the viewer and
	// anyone who blocked the viewer so a page is never short on their account.
	SearchUsers(ctx context.Context, viewerID, query string, limit int) ([]models.Record, error)

	FindPrivacySettings(ctx context.Context, userID string) (models.Record, error)
	SavePrivacySettings(ctx context.Context, userID string, settings models.PrivacySettings) error
}

// PresenceTracker reports which users are currently online.
type PresenceTracker interface {
	Online(ctx context.Context, userIDs []string) (map[string]bool, error)
}
