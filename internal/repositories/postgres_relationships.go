package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/playmates/backend/internal/db"
	"github.com/playmates/backend/internal/models"
)

const relationshipColumns = `id, requester_id, addressee_id, status, created_at, responded_at`

const profileColumns = `u.id, u.username, u.full_name, u.avatar_url, u.favorite_sports`

// PostgresRelationshipStore persists the friend graph. Each unordered user pair owns at most
// one row, enforced by the (user_low, user_high) unique constraint.
type PostgresRelationshipStore struct {
	pool db.Pool
}

// NewPostgresRelationshipStore constructs a relationship store backed by PostgreSQL.
func NewPostgresRelationshipStore(pool db.Pool) *PostgresRelationshipStore {
	return &PostgresRelationshipStore{pool: pool}
}

// FindUser returns the public profile record for a user.
func (s *PostgresRelationshipStore) FindUser(ctx context.Context, userID string) (models.Record, error) {
	records, err := s.queryRecords(ctx, "select user", `
        SELECT `+profileColumns+`
        FROM users u
        WHERE u.id = $1
    `, userID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// GetRelationship loads a relationship by id.
func (s *PostgresRelationshipStore) GetRelationship(ctx context.Context, id string) (models.Relationship, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.Relationship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rel, err := scanRelationship(conn.QueryRow(ctx, `
        SELECT `+relationshipColumns+`
        FROM relationships
        WHERE id = $1
    `, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Relationship{}, ErrNotFound
		}
		return models.Relationship{}, fmt.Errorf("select relationship: %w", err)
	}
	return rel, nil
}

// FindRelationship loads the relationship between two users regardless of direction.
func (s *PostgresRelationshipStore) FindRelationship(ctx context.Context, userA, userB string) (models.Relationship, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.Relationship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	low, high := orderedPair(userA, userB)
	rel, err := scanRelationship(conn.QueryRow(ctx, `
        SELECT `+relationshipColumns+`
        FROM relationships
        WHERE user_low = $1 AND user_high = $2
    `, low, high))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Relationship{}, ErrNotFound
		}
		return models.Relationship{}, fmt.Errorf("select relationship by pair: %w", err)
	}
	return rel, nil
}

// ListRelationships returns every edge touching the user.
func (s *PostgresRelationshipStore) ListRelationships(ctx context.Context, userID string) ([]models.Relationship, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+relationshipColumns+`
        FROM relationships
        WHERE user_low = $1 OR user_high = $1
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var out []models.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relationships: %w", err)
	}
	return out, nil
}

// CreateRelationship inserts a new edge. A second edge for the same pair fails with ErrConflict.
func (s *PostgresRelationshipStore) CreateRelationship(ctx context.Context, rel models.Relationship) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	low, high := orderedPair(rel.RequesterID, rel.AddresseeID)
	_, err = conn.Exec(ctx, `
        INSERT INTO relationships (id, user_low, user_high, requester_id, addressee_id, status, created_at, responded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, rel.ID, low, high, rel.RequesterID, rel.AddresseeID, string(rel.Status), rel.CreatedAt, rel.RespondedAt)
	if err != nil {
		return classifyWriteError("insert relationship", err)
	}
	return nil
}

// AcceptRelationship transitions a pending request addressed to addresseeID into an accepted
// friendship. It reports changed=false when the request was already accepted.
func (s *PostgresRelationshipStore) AcceptRelationship(ctx context.Context, id, addresseeID string, at time.Time) (models.Relationship, bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.Relationship{}, false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Relationship{}, false, fmt.Errorf("begin accept transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rel, err := scanRelationship(tx.QueryRow(ctx, `
        SELECT `+relationshipColumns+`
        FROM relationships
        WHERE id = $1
        FOR UPDATE
    `, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Relationship{}, false, ErrNotFound
		}
		return models.Relationship{}, false, fmt.Errorf("lock relationship: %w", err)
	}

	if rel.AddresseeID != addresseeID {
		return models.Relationship{}, false, ErrNotFound
	}

	switch rel.Status {
	case models.RelationshipAccepted:
		return rel, false, tx.Commit(ctx)
	case models.RelationshipPending:
	default:
		return models.Relationship{}, false, ErrNotFound
	}

	respondedAt := at.UTC()
	if _, err := tx.Exec(ctx, `
        UPDATE relationships
        SET status = $2, responded_at = $3
        WHERE id = $1
    `, id, string(models.RelationshipAccepted), respondedAt); err != nil {
		return models.Relationship{}, false, fmt.Errorf("accept relationship: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Relationship{}, false, fmt.Errorf("commit accept: %w", err)
	}

	rel.Status = models.RelationshipAccepted
	rel.RespondedAt = &respondedAt
	return rel, true, nil
}

// DeleteRelationship removes the edge only while it still has the expected status.
func (s *PostgresRelationshipStore) DeleteRelationship(ctx context.Context, id string, status models.RelationshipStatus) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM relationships WHERE id = $1 AND status = $2`, id, string(status))
	if err != nil {
		return fmt.Errorf("delete relationship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertBlock replaces whatever edge the pair has with a blocked edge owned by the blocker.
func (s *PostgresRelationshipStore) UpsertBlock(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.Relationship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	low, high := orderedPair(rel.RequesterID, rel.AddresseeID)
	out, err := scanRelationship(conn.QueryRow(ctx, `
        INSERT INTO relationships (id, user_low, user_high, requester_id, addressee_id, status, created_at, responded_at)
        VALUES ($1, $2, $3, $4, $5, 'blocked', $6, NULL)
        ON CONFLICT (user_low, user_high)
        DO UPDATE SET id = EXCLUDED.id,
                      requester_id = EXCLUDED.requester_id,
                      addressee_id = EXCLUDED.addressee_id,
                      status = 'blocked',
                      created_at = EXCLUDED.created_at,
                      responded_at = NULL
        RETURNING `+relationshipColumns+`
    `, rel.ID, low, high, rel.RequesterID, rel.AddresseeID, rel.CreatedAt))
	if err != nil {
		return models.Relationship{}, classifyWriteError("upsert block", err)
	}
	return out, nil
}

// HasMutualFriend reports whether the two users share at least one accepted friend.
func (s *PostgresRelationshipStore) HasMutualFriend(ctx context.Context, userA, userB string) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1
            FROM relationships a
            JOIN relationships b
              ON (CASE WHEN a.requester_id = $1 THEN a.addressee_id ELSE a.requester_id END)
               = (CASE WHEN b.requester_id = $2 THEN b.addressee_id ELSE b.requester_id END)
            WHERE a.status = 'accepted' AND b.status = 'accepted'
              AND (a.requester_id = $1 OR a.addressee_id = $1)
              AND (b.requester_id = $2 OR b.addressee_id = $2)
        )
    `, userA, userB).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query mutual friends: %w", err)
	}
	return exists, nil
}

// ListFriends returns accepted friends of the user joined with their profile and the
// friend's online-visibility preference.
func (s *PostgresRelationshipStore) ListFriends(ctx context.Context, userID string) ([]models.Record, error) {
	return s.queryRecords(ctx, "query friends", `
        SELECT r.id AS relationship_id,
               COALESCE(r.responded_at, r.created_at) AS friends_since,
               `+profileColumns+`,
               p.show_online_status
        FROM relationships r
        JOIN users u ON u.id = CASE WHEN r.requester_id = $1 THEN r.addressee_id ELSE r.requester_id END
        LEFT JOIN privacy_settings p ON p.user_id = u.id
        WHERE r.status = 'accepted'
          AND (r.requester_id = $1 OR r.addressee_id = $1)
    `, userID)
}

// ListPendingRequests returns pending requests in both directions joined with the counterpart profile.
func (s *PostgresRelationshipStore) ListPendingRequests(ctx context.Context, userID string) ([]models.Record, error) {
	return s.queryRecords(ctx, "query friend requests", `
        SELECT r.id AS request_id, r.requester_id, r.addressee_id, r.created_at,
               `+profileColumns+`
        FROM relationships r
        JOIN users u ON u.id = CASE WHEN r.requester_id = $1 THEN r.addressee_id ELSE r.requester_id END
        WHERE r.status = 'pending'
          AND (r.requester_id = $1 OR r.addressee_id = $1)
        ORDER BY r.created_at DESC
    `, userID)
}

// SuggestBySessions returns users who played in the same sessions as the user.
func (s *PostgresRelationshipStore) SuggestBySessions(ctx context.Context, userID string, limit int) ([]models.Record, error) {
	return s.queryRecords(ctx, "query session suggestions", `
        SELECT `+profileColumns+`, COUNT(DISTINCT mine.session_id) AS mutual_sessions
        FROM play_session_participants mine
        JOIN play_session_participants theirs
          ON theirs.session_id = mine.session_id AND theirs.user_id <> mine.user_id
        JOIN users u ON u.id = theirs.user_id
        WHERE mine.user_id = $1
        GROUP BY u.id, u.username, u.full_name, u.avatar_url, u.favorite_sports
        ORDER BY mutual_sessions DESC, u.id
        LIMIT $2
    `, userID, limit)
}

// SuggestBySports returns users sharing at least one favourite sport with the provided set.
func (s *PostgresRelationshipStore) SuggestBySports(ctx context.Context, userID string, sports []models.Sport, limit int) ([]models.Record, error) {
	if len(sports) == 0 {
		return nil, nil
	}
	return s.queryRecords(ctx, "query sport suggestions", `
        SELECT `+profileColumns+`,
               (SELECT COUNT(DISTINCT mine.session_id)
                FROM play_session_participants mine
                JOIN play_session_participants theirs ON theirs.session_id = mine.session_id
                WHERE mine.user_id = $1 AND theirs.user_id = u.id) AS mutual_sessions
        FROM users u
        WHERE u.id <> $1 AND u.favorite_sports && $2::TEXT[]
        ORDER BY u.id
        LIMIT $3
    `, userID, sportStrings(sports), limit)
}

// ListRecentMembers returns users met in play sessions since the cut-off, one row per user
// carrying the latest shared session.
func (s *PostgresRelationshipStore) ListRecentMembers(ctx context.Context, userID string, since time.Time) ([]models.Record, error) {
	return s.queryRecords(ctx, "query recent members", `
        SELECT DISTINCT ON (u.id)
               `+profileColumns+`,
               ps.id AS session_id, ps.sport AS session_type, ps.played_at AS occurred_at
        FROM play_session_participants mine
        JOIN play_session_participants theirs
          ON theirs.session_id = mine.session_id AND theirs.user_id <> mine.user_id
        JOIN play_sessions ps ON ps.id = mine.session_id
        JOIN users u ON u.id = theirs.user_id
        WHERE mine.user_id = $1 AND ps.played_at >= $2
        ORDER BY u.id, ps.played_at DESC
    `, userID, since.UTC())
}

// SearchUsers matches usernames and full names by substring, ranking prefix matches first.
// The viewer and users who blocked the viewer are excluded before the limit applies.
func (s *PostgresRelationshipStore) SearchUsers(ctx context.Context, viewerID, query string, limit int) ([]models.Record, error) {
	escaped := escapeLike(query)
	return s.queryRecords(ctx, "search users", `
        SELECT `+profileColumns+`
        FROM users u
        WHERE (u.username ILIKE $1 OR u.full_name ILIKE $1)
          AND u.id <> $4
          AND NOT EXISTS (
              SELECT 1 FROM relationships r
              WHERE r.status = 'blocked' AND r.requester_id = u.id AND r.addressee_id = $4
          )
        ORDER BY CASE WHEN u.username ILIKE $2 THEN 0 ELSE 1 END, u.username, u.id
        LIMIT $3
    `, "%"+escaped+"%", escaped+"%", limit, viewerID)
}

// FindPrivacySettings loads the stored settings for a user.
func (s *PostgresRelationshipStore) FindPrivacySettings(ctx context.Context, userID string) (models.Record, error) {
	records, err := s.queryRecords(ctx, "select privacy settings", `
        SELECT friend_request_permission, show_online_status
        FROM privacy_settings
        WHERE user_id = $1
    `, userID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// SavePrivacySettings upserts the settings for a user.
func (s *PostgresRelationshipStore) SavePrivacySettings(ctx context.Context, userID string, settings models.PrivacySettings) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO privacy_settings (user_id, friend_request_permission, show_online_status, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (user_id)
        DO UPDATE SET friend_request_permission = EXCLUDED.friend_request_permission,
                      show_online_status = EXCLUDED.show_online_status,
                      updated_at = EXCLUDED.updated_at
    `, userID, string(settings.FriendRequestPermission), settings.ShowOnlineStatus)
	if err != nil {
		return classifyWriteError("upsert privacy settings", err)
	}
	return nil
}

func (s *PostgresRelationshipStore) queryRecords(ctx context.Context, op, sql string, args ...any) ([]models.Record, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("%s: collect rows: %w", op, err)
	}
	return records, nil
}

func scanRelationship(row pgx.Row) (models.Relationship, error) {
	var (
		rel    models.Relationship
		status string
	)
	if err := row.Scan(&rel.ID, &rel.RequesterID, &rel.AddresseeID, &status, &rel.CreatedAt, &rel.RespondedAt); err != nil {
		return models.Relationship{}, err
	}
	rel.Status = models.RelationshipStatus(status)
	rel.CreatedAt = rel.CreatedAt.UTC()
	if rel.RespondedAt != nil {
		t := rel.RespondedAt.UTC()
		rel.RespondedAt = &t
	}
	return rel, nil
}

func orderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
