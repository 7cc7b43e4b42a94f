package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis connection backing presence.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisTracker stores one key per active user, renewed on every touch and expired by Redis.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTracker connects to Redis and verifies the connection with a ping.
func NewRedisTracker(ctx context.Context, cfg RedisConfig) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisTrackerFromClient(client, cfg.TTL), nil
}

// NewRedisTrackerFromClient wraps an existing client.
func NewRedisTrackerFromClient(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisTracker{client: client, ttl: ttl}
}

func presenceKey(userID string) string { return "playmates:presence:" + userID }

// Touch sets the user's presence key and renews its TTL.
func (r *RedisTracker) Touch(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := r.client.Set(ctx, presenceKey(userID), time.Now().UTC().Unix(), r.ttl).Err(); err != nil {
		return fmt.Errorf("touch presence: %w", err)
	}
	return nil
}

// Offline deletes the user's presence key.
func (r *RedisTracker) Offline(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear presence: %w", err)
	}
	return nil
}

// Online looks all users up with a single MGET.
func (r *RedisTracker) Online(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = presenceKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup presence: %w", err)
	}
	for i, id := range userIDs {
		out[id] = i < len(values) && values[i] != nil
	}
	return out, nil
}

// Ping checks the Redis connection.
func (r *RedisTracker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (r *RedisTracker) Close() error {
	return r.client.Close()
}
