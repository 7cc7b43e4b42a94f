package app

import (
	"context"
	"errors"
	"time"

	"github.com/playmates/backend/internal/auth"
	"github.com/playmates/backend/internal/client"
	"github.com/playmates/backend/internal/config"
	"github.com/playmates/backend/internal/db"
	"github.com/playmates/backend/internal/friends"
	"github.com/playmates/backend/internal/handlers"
	"github.com/playmates/backend/internal/middleware"
	"github.com/playmates/backend/internal/presence"
	"github.com/playmates/backend/internal/repositories"
)

// presenceTracker is what the service and the auth middleware need from a presence backend.
type presenceTracker interface {
	friends.PresenceTracker
	middleware.PresenceToucher
}

// buildDependencies wires together concrete implementations used by the HTTP handlers. A nil
// pool selects the in-memory store. The returned cleanup releases connections opened here.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, func() error, error) {
	var (
		users    handlers.UserStore
		store    friends.Store
		sessions auth.SessionStore
		checks   = make(map[string]handlers.Pinger)
	)
	if pool != nil {
		users = repositories.NewPostgresUserRepository(pool)
		store = repositories.NewPostgresRelationshipStore(pool)
		sessions = repositories.NewPostgresSessionStore(pool)
		checks["database"] = pool
	} else {
		memory := repositories.NewMemoryStore()
		users = memory
		store = memory
		sessions = auth.NewInMemorySessionStore()
	}

	cleanup := func() error { return nil }

	var tracker presenceTracker
	if cfg.Redis.Addr != "" {
		redisTracker, err := presence.NewRedisTracker(ctx, presence.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.PresenceTTL,
		})
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}
		tracker = redisTracker
		checks["presence"] = redisTracker
		cleanup = redisTracker.Close
	} else {
		tracker = presence.NewMemoryTracker(cfg.PresenceTTL)
	}

	if len(cfg.JWTSecret) == 0 {
		_ = cleanup()
		return handlers.Dependencies{}, nil, errors.New("jwt secret must be configured")
	}
	manager := auth.NewManager([]byte(cfg.JWTSecret), cfg.AccessTokenTTL, cfg.RefreshTokenTTL, sessions)

	service := friends.NewService(store, friends.Options{
		Presence:     tracker,
		Cache:        friends.NewSuggestionCache(cfg.SuggestionCacheTTL),
		SearchLimit:  cfg.SearchResultLimit,
		RecentWindow: cfg.RecentMemberWindow,
	})

	deps := handlers.Dependencies{
		Users:    users,
		Sessions: manager,
		Tokens:   manager,
		Presence: tracker,
		Friends:  service,

		AuthLimiter:   newLimiter(cfg.AuthRateLimit),
		FriendLimiter: newLimiter(cfg.FriendRateLimit),

		HealthChecks: checks,
	}
	return deps, cleanup, nil
}

func newLimiter(cfg config.RateLimitConfig) handlers.RateLimiter {
	if cfg.Requests <= 0 {
		return nil
	}
	return middleware.NewKeyedRateLimiter(cfg.Requests, cfg.Window, cfg.Burst, 10*time.Minute)
}

var (
	_ friends.Store          = (*repositories.PostgresRelationshipStore)(nil)
	_ friends.Store          = (*repositories.MemoryStore)(nil)
	_ handlers.FriendService = (*friends.Service)(nil)
	_ client.Service         = (*friends.Service)(nil)
	_ presenceTracker        = (*presence.RedisTracker)(nil)
	_ presenceTracker        = (*presence.MemoryTracker)(nil)
)
