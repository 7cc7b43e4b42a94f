package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playmates/backend/internal/config"
	"github.com/playmates/backend/internal/repositories"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Ping(context.Context) error { return nil }

func (fakePool) Close() {}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:          "test-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		PresenceTTL:        time.Minute,
		SuggestionCacheTTL: time.Minute,
		SearchResultLimit:  10,
		AuthRateLimit:      config.RateLimitConfig{Requests: 5, Window: time.Minute, Burst: 5},
	}
}

func TestBuildDependenciesPostgres(t *testing.T) {
	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = cleanup() }()

	if _, ok := deps.Users.(*repositories.PostgresUserRepository); !ok {
		t.Fatalf("expected postgres user repository got %T", deps.Users)
	}
	if deps.Sessions == nil || deps.Tokens == nil {
		t.Fatal("expected session manager to be configured")
	}
	if deps.Friends == nil || deps.Presence == nil {
		t.Fatal("expected friends service and presence to be configured")
	}
	if deps.AuthLimiter == nil {
		t.Fatal("expected auth limiter to be configured")
	}
	if deps.FriendLimiter != nil {
		t.Fatal("expected friend limiter to be disabled without a request budget")
	}
	if _, ok := deps.HealthChecks["database"]; !ok {
		t.Fatal("expected database health check")
	}
}

func TestBuildDependenciesMemory(t *testing.T) {
	deps, cleanup, err := buildDependencies(context.Background(), nil, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = cleanup() }()

	if _, ok := deps.Users.(*repositories.MemoryStore); !ok {
		t.Fatalf("expected memory store got %T", deps.Users)
	}
	if len(deps.HealthChecks) != 0 {
		t.Fatalf("expected no health checks got %v", deps.HealthChecks)
	}
}

func TestBuildDependenciesRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""
	if _, _, err := buildDependencies(context.Background(), nil, cfg); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}

func TestMigrationFilesAreOrdered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.sql", "0001_a.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0000_dir.sql"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(files) != 2 || files[0] != "0001_a.sql" || files[1] != "0002_b.sql" {
		t.Fatalf("unexpected migrations %v", files)
	}

	repoFiles, err := migrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("read repository migrations: %v", err)
	}
	if len(repoFiles) == 0 {
		t.Fatal("expected repository migrations")
	}
}

func TestShouldRetryMigration(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "syntax", err: &pgconn.PgError{Code: "42601"}, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetryMigration(tt.err); got != tt.want {
				t.Fatalf("expected %v got %v", tt.want, got)
			}
		})
	}
}

func TestMigrationBackoff(t *testing.T) {
	if got := migrationBackoff(1); got != migrationBaseBackoff {
		t.Fatalf("expected base backoff got %v", got)
	}
	if got := migrationBackoff(10); got != migrationMaxBackoff {
		t.Fatalf("expected capped backoff got %v", got)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	logger := newLogger("debug")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug to be enabled")
	}
	logger = newLogger("error")
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info to be disabled at error level")
	}
}
