package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryTracker(t *testing.T) {
	tracker := NewMemoryTracker(time.Minute)
	now := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }
	ctx := context.Background()

	if err := tracker.Touch(ctx, "alice"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	online, err := tracker.Online(ctx, []string{"alice", "bruno"})
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if !online["alice"] || online["bruno"] {
		t.Fatalf("unexpected presence: %v", online)
	}
	if _, ok := online["bruno"]; !ok {
		t.Fatal("expected every requested user in the result")
	}

	now = now.Add(2 * time.Minute)
	online, _ = tracker.Online(ctx, []string{"alice"})
	if online["alice"] {
		t.Fatal("expected presence to expire after ttl")
	}

	_ = tracker.Touch(ctx, "alice")
	_ = tracker.Offline(ctx, "alice")
	online, _ = tracker.Online(ctx, []string{"alice"})
	if online["alice"] {
		t.Fatal("expected offline user to be reported offline")
	}
}

func TestMemoryTrackerDefaultTTL(t *testing.T) {
	if tracker := NewMemoryTracker(0); tracker.ttl != defaultTTL {
		t.Fatalf("expected default ttl got %v", tracker.ttl)
	}
}

func TestRedisTracker(t *testing.T) {
	addr := os.Getenv("PLAYMATES_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PLAYMATES_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	tracker, err := NewRedisTracker(ctx, RedisConfig{Addr: addr, TTL: time.Minute})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = tracker.Close() })

	active, idle := uuid.NewString(), uuid.NewString()
	if err := tracker.Touch(ctx, active); err != nil {
		t.Fatalf("touch: %v", err)
	}
	t.Cleanup(func() { _ = tracker.Offline(context.Background(), active) })

	online, err := tracker.Online(ctx, []string{active, idle})
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if !online[active] || online[idle] {
		t.Fatalf("unexpected presence: %v", online)
	}

	if err := tracker.Offline(ctx, active); err != nil {
		t.Fatalf("offline: %v", err)
	}
	online, err = tracker.Online(ctx, []string{active})
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if online[active] {
		t.Fatal("expected user offline after Offline")
	}
}
