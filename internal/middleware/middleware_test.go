package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playmates/backend/internal/auth"
	"github.com/playmates/backend/internal/logging"
)

type stubTokens map[string]string

func (s stubTokens) Authenticate(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", auth.ErrInvalidAccessToken
}

type recordingPresence struct {
	touched []string
	err     error
}

func (p *recordingPresence) Touch(_ context.Context, userID string) error {
	p.touched = append(p.touched, userID)
	return p.err
}

func TestAuthenticateStoresUser(t *testing.T) {
	presence := &recordingPresence{}
	var seen string
	handler := Authenticate(stubTokens{"good": "user-1"}, presence)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/friends", nil)
	req.Header.Set("Authorization", "bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if seen != "user-1" {
		t.Fatalf("expected user-1 on context got %q", seen)
	}
	if len(presence.touched) != 1 || presence.touched[0] != "user-1" {
		t.Fatalf("expected presence touch got %v", presence.touched)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	called := false
	handler := Authenticate(stubTokens{"good": "user-1"}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	for _, header := range []string{"", "Bearer", "Bearer bad", "Basic good"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401 got %d", header, rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%q: expected challenge header", header)
		}
	}
	if called {
		t.Fatal("next handler must not run for rejected tokens")
	}
}

func TestAuthenticatePresenceFailureIsNotFatal(t *testing.T) {
	presence := &recordingPresence{err: errors.New("redis down")}
	handler := Authenticate(stubTokens{"good": "user-1"}, presence)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestRequestLoggerAssignsRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var fromCtx string
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = logging.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if fromCtx == "" || rec.Header().Get(RequestIDHeader) != fromCtx {
		t.Fatalf("expected generated request id, ctx=%q header=%q", fromCtx, rec.Header().Get(RequestIDHeader))
	}

	const incoming = "0b6a3d9e-5f0c-4a43-9a0e-59d3c1f1b0d2"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if fromCtx != incoming {
		t.Fatalf("expected incoming request id to be kept got %q", fromCtx)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "not a uuid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if fromCtx == "not a uuid" {
		t.Fatal("expected malformed request id to be replaced")
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}

func TestKeyedRateLimiter(t *testing.T) {
	limiter := NewKeyedRateLimiter(1, time.Minute, 2, time.Minute)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatal("expected burst of two to be allowed")
	}
	if limiter.Allow("a") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.Allow("b") {
		t.Fatal("expected independent bucket per key")
	}

	if wait := limiter.RetryAfter("a"); wait <= 0 || wait > time.Minute+time.Second {
		t.Fatalf("expected a wait of about one minute got %s", wait)
	}
	if wait := limiter.RetryAfter("never-seen"); wait != 0 {
		t.Fatalf("expected no wait for unknown key got %s", wait)
	}

	now = now.Add(time.Minute)
	if !limiter.Allow("a") {
		t.Fatal("expected token to be replenished after the window")
	}

	now = now.Add(2 * time.Minute)
	limiter.Allow("c")
	if got := limiter.Len(); got != 1 {
		t.Fatalf("expected idle keys to be collected, tracking %d", got)
	}
}
