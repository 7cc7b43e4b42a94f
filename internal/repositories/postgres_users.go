package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/playmates/backend/internal/auth"
	"github.com/playmates/backend/internal/db"
	"github.com/playmates/backend/internal/models"
)

// UserRepository defines the data access contract for accounts.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, username, full_name, email, password_hash, avatar_url, favorite_sports, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, user.ID, user.Username, user.FullName, user.Email, user.Password, user.AvatarURL,
		sportStrings(user.FavoriteSports), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return classifyWriteError("insert user", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, username, full_name, email, password_hash, avatar_url, favorite_sports, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)

	var (
		user   models.User
		sports []string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.FullName, &user.Email, &user.Password,
		&user.AvatarURL, &sports, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}
	user.FavoriteSports = toSports(sports)

	return user, nil
}

// Update modifies the mutable profile fields of an existing user.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET username = $2, full_name = $3, email = $4, password_hash = $5,
            avatar_url = $6, favorite_sports = $7, updated_at = $8
        WHERE id = $1
    `, user.ID, user.Username, user.FullName, user.Email, user.Password, user.AvatarURL,
		sportStrings(user.FavoriteSports), user.UpdatedAt)
	if err != nil {
		return classifyWriteError("update user", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresSessionStore persists refresh tokens to PostgreSQL. Only a SHA-256 digest of
// each token is stored.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save stores or updates a session record.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO sessions (token_hash, user_id, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (token_hash)
        DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
    `, hashToken(session.RefreshToken), session.UserID, session.ExpiresAt.UTC())
	if err != nil {
		return classifyWriteError("upsert session", err)
	}

	return nil
}

// Find loads a session by its refresh token.
func (s *PostgresSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		userID    string
		expiresAt time.Time
	)
	err = conn.QueryRow(ctx, `
        SELECT user_id, expires_at
        FROM sessions
        WHERE token_hash = $1
    `, hashToken(refreshToken)).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("select session: %w", err)
	}

	return auth.Session{RefreshToken: refreshToken, UserID: userID, ExpiresAt: expiresAt.UTC()}, nil
}

// Delete removes a session by its refresh token.
func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, hashToken(refreshToken))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}

	return nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func sportStrings(sports []models.Sport) []string {
	out := make([]string, 0, len(sports))
	for _, s := range sports {
		out = append(out, string(s))
	}
	return out
}

func toSports(values []string) []models.Sport {
	out := make([]models.Sport, 0, len(values))
	for _, v := range values {
		out = append(out, models.Sport(v))
	}
	return out
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ auth.SessionStore = (*PostgresSessionStore)(nil)
