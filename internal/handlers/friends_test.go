package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playmates/backend/internal/friends"
	"github.com/playmates/backend/internal/middleware"
	"github.com/playmates/backend/internal/models"
	"github.com/playmates/backend/internal/repositories"
)

const (
	aliceID = "11111111-1111-4111-8111-111111111111"
	brunoID = "22222222-2222-4222-8222-222222222222"
	chenID  = "33333333-3333-4333-8333-333333333333"
)

type friendsEnv struct {
	mux    *http.ServeMux
	tokens map[string]string
}

func newFriendsEnv(t *testing.T, deps Dependencies) *friendsEnv {
	t.Helper()
	ctx := context.Background()

	store := repositories.NewMemoryStore()
	for _, u := range []models.User{
		{ID: aliceID, Username: "alice", FullName: "Alice Martin", Email: "alice@example.com", FavoriteSports: []models.Sport{models.SportTennis}},
		{ID: brunoID, Username: "bruno", FullName: "Bruno Costa", Email: "bruno@example.com", FavoriteSports: []models.Sport{models.SportFootball}},
		{ID: chenID, Username: "chen", FullName: "Chen Wei", Email: "chen@example.com", FavoriteSports: []models.Sport{models.SportTennis}},
	} {
		if err := store.Create(ctx, u); err != nil {
			t.Fatalf("seed %s: %v", u.Username, err)
		}
	}

	sessions := newTestSessions()
	deps.Users = store
	deps.Sessions = sessions
	deps.Tokens = sessions
	if deps.Friends == nil {
		deps.Friends = friends.NewService(store, friends.Options{})
	}

	env := &friendsEnv{mux: http.NewServeMux(), tokens: make(map[string]string)}
	RegisterRoutes(env.mux, deps)
	for _, id := range []string{aliceID, brunoID, chenID} {
		issued, err := sessions.Issue(ctx, id)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		env.tokens[id] = issued.AccessToken
	}
	return env
}

func (e *friendsEnv) do(t *testing.T, userID, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[userID])
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind friends.Kind) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := decodeBody[errorResponse](t, rec); got.Kind != string(kind) {
		t.Fatalf("expected kind %s got %+v", kind, got)
	}
}

func TestFriendRoutesRequireAuthentication(t *testing.T) {
	env := newFriendsEnv(t, Dependencies{})

	for _, path := range []string{"/api/v1/friends", "/api/v1/friends/requests", "/api/v1/users/search?q=al", "/api/v1/privacy"} {
		rec := env.do(t, "", http.MethodGet, path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, rec.Code)
		}
	}
}

func TestFriendRequestLifecycle(t *testing.T) {
	env := newFriendsEnv(t, Dependencies{})

	rec := env.do(t, aliceID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": brunoID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	sent := decodeBody[models.FriendActionResult](t, rec)
	if sent.Status != models.FriendshipPendingSent {
		t.Fatalf("expected pending_sent got %s", sent.Status)
	}

	rec = env.do(t, aliceID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": brunoID})
	expectError(t, rec, http.StatusConflict, friends.KindDuplicateRequest)

	rec = env.do(t, brunoID, http.MethodGet, "/api/v1/friends/requests", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	requests := decodeBody[models.FriendRequests](t, rec)
	if len(requests.Received) != 1 || requests.Received[0].ID != sent.Relationship.ID || len(requests.Sent) != 0 {
		t.Fatalf("unexpected requests %+v", requests)
	}

	rec = env.do(t, chenID, http.MethodPost, "/api/v1/friends/requests/accept", map[string]string{"requestId": sent.Relationship.ID})
	expectError(t, rec, http.StatusNotFound, friends.KindNotFound)

	rec = env.do(t, brunoID, http.MethodPost, "/api/v1/friends/requests/accept", map[string]string{"requestId": sent.Relationship.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if accepted := decodeBody[models.FriendActionResult](t, rec); accepted.Status != models.FriendshipFriends {
		t.Fatalf("expected friends got %s", accepted.Status)
	}

	rec = env.do(t, aliceID, http.MethodGet, "/api/v1/friends", nil)
	list := decodeBody[listResponse[models.Friend]](t, rec)
	if len(list.Items) != 1 || list.Items[0].ID != brunoID {
		t.Fatalf("expected bruno as friend got %+v", list.Items)
	}

	rec = env.do(t, brunoID, http.MethodPost, "/api/v1/friends/remove", map[string]string{"userId": aliceID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	rec = env.do(t, aliceID, http.MethodGet, "/api/v1/friends", nil)
	if list := decodeBody[listResponse[models.Friend]](t, rec); len(list.Items) != 0 {
		t.Fatalf("expected no friends after removal got %+v", list.Items)
	}
}

func TestFriendRequestDecline(t *testing.T) {
	env := newFriendsEnv(t, Dependencies{})

	rec := env.do(t, aliceID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": chenID})
	sent := decodeBody[models.FriendActionResult](t, rec)

	rec = env.do(t, chenID, http.MethodPost, "/api/v1/friends/requests/decline", map[string]string{"requestId": sent.Relationship.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = env.do(t, aliceID, http.MethodGet, "/api/v1/friends/requests", nil)
	if requests := decodeBody[models.FriendRequests](t, rec); len(requests.Sent) != 0 {
		t.Fatalf("expected declined request to disappear got %+v", requests.Sent)
	}
}

func TestFriendRequestValidation(t *testing.T) {
	env := newFriendsEnv(t, Dependencies{})

	rec := env.do(t, aliceID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": "not-a-uuid"})
	expectError(t, rec, http.StatusBadRequest, friends.KindInvalidIdentifier)

	rec = env.do(t, aliceID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": aliceID})
	expectError(t, rec, http.StatusBadRequest, friends.KindInvalidIdentifier)

	rec = env.do(t, aliceID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": "44444444-4444-4444-8444-444444444444"})
	expectError(t, rec, http.StatusNotFound, friends.KindNotFound)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/friends/block", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+env.tokens[aliceID])
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusBadRequest, friends.KindInvalidInput)

	rec = env.do(t, aliceID, http.MethodDelete, "/api/v1/friends/block", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rec.Code)
	}
}

func TestSearchAndBlock(t *testing.T) {
	env := newFriendsEnv(t, Dependencies{})

	rec := env.do(t, chenID, http.MethodGet, "/api/v1/users/search?q=ali", nil)
	results := decodeBody[listResponse[models.SearchResult]](t, rec)
	if len(results.Items) != 1 || results.Items[0].ID != aliceID || results.Items[0].Status != models.FriendshipNone {
		t.Fatalf("expected alice with status none got %+v", results.Items)
	}

	rec = env.do(t, aliceID, http.MethodPost, "/api/v1/friends/block", map[string]string{"userId": chenID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	rec = env.do(t, aliceID, http.MethodPost, "/api/v1/friends/block", map[string]string{"userId": chenID})
	if again := decodeBody[models.FriendActionResult](t, rec); !again.Noop {
		t.Fatalf("expected repeated block to be a noop got %+v", again)
	}

	rec = env.do(t, chenID, http.MethodGet, "/api/v1/users/search?q=ali", nil)
	if results := decodeBody[listResponse[models.SearchResult]](t, rec); len(results.Items) != 0 {
		t.Fatalf("expected blocker to be hidden got %+v", results.Items)
	}

	rec = env.do(t, chenID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": aliceID})
	expectError(t, rec, http.StatusForbidden, friends.KindPermissionDenied)

	rec = env.do(t, chenID, http.MethodPost, "/api/v1/friends/unblock", map[string]string{"userId": aliceID})
	expectError(t, rec, http.StatusNotFound, friends.KindNotFound)

	rec = env.do(t, aliceID, http.MethodPost, "/api/v1/friends/unblock", map[string]string{"userId": chenID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = env.do(t, chenID, http.MethodGet, "/api/v1/users/search?q=ali", nil)
	if results := decodeBody[listResponse[models.SearchResult]](t, rec); len(results.Items) != 1 {
		t.Fatalf("expected alice visible after unblock got %+v", results.Items)
	}
}

func TestPrivacyRoutes(t *testing.T) {
	env := newFriendsEnv(t, Dependencies{})

	rec := env.do(t, brunoID, http.MethodGet, "/api/v1/privacy", nil)
	if got := decodeBody[models.PrivacySettings](t, rec); got != models.DefaultPrivacySettings() {
		t.Fatalf("expected defaults got %+v", got)
	}

	rec = env.do(t, brunoID, http.MethodPatch, "/api/v1/privacy", map[string]any{"friendRequestPermission": "no_one"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[models.PrivacySettings](t, rec)
	if updated.FriendRequestPermission != models.PermissionNoOne || !updated.ShowOnlineStatus {
		t.Fatalf("expected merged settings got %+v", updated)
	}

	rec = env.do(t, aliceID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": brunoID})
	expectError(t, rec, http.StatusForbidden, friends.KindPermissionDenied)

	rec = env.do(t, brunoID, http.MethodPatch, "/api/v1/privacy", map[string]any{"theme": "dark"})
	expectError(t, rec, http.StatusBadRequest, friends.KindUnknownField)

	rec = env.do(t, brunoID, http.MethodPatch, "/api/v1/privacy", map[string]any{"friendRequestPermission": "anyone"})
	expectError(t, rec, http.StatusBadRequest, friends.KindInvalidEnumValue)

	rec = env.do(t, brunoID, http.MethodPatch, "/api/v1/privacy", map[string]any{})
	expectError(t, rec, http.StatusBadRequest, friends.KindInvalidInput)
}

func TestFriendRequestRateLimit(t *testing.T) {
	env := newFriendsEnv(t, Dependencies{FriendLimiter: denyLimiter{}})

	rec := env.do(t, aliceID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": brunoID})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	rec = env.do(t, aliceID, http.MethodGet, "/api/v1/users/search?q=bru", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
}

func TestFriendRequestRateLimitSetsRetryAfter(t *testing.T) {
	limiter := middleware.NewKeyedRateLimiter(1, time.Minute, 1, time.Minute)
	env := newFriendsEnv(t, Dependencies{FriendLimiter: limiter})

	rec := env.do(t, aliceID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": brunoID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, aliceID, http.MethodPost, "/api/v1/friends/requests", map[string]string{"receiverId": chenID})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got == "" || got == "0" {
		t.Fatalf("expected Retry-After header got %q", got)
	}

	// Search draws from its own bucket.
	rec = env.do(t, aliceID, http.MethodGet, "/api/v1/users/search?q=bru", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected search to be allowed got %d", rec.Code)
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{err: friends.ErrInvalidIdentifier, status: http.StatusBadRequest, message: "invalid user identifier"},
		{err: friends.ErrPermissionDenied, status: http.StatusForbidden, message: "permission denied"},
		{err: friends.ErrDuplicateRequest, status: http.StatusConflict},
		{err: friends.ErrAlreadyExists, status: http.StatusConflict},
		{err: friends.ErrNotFound, status: http.StatusNotFound},
		{err: friends.ErrNetwork, status: http.StatusServiceUnavailable, message: "service temporarily unavailable"},
		{err: friends.ErrUnknownStore, status: http.StatusInternalServerError, message: "internal error"},
		{err: errors.New("pq: secret table name"), status: http.StatusInternalServerError, message: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(context.Background(), rec, tt.err)
			if rec.Code != tt.status {
				t.Fatalf("expected %d got %d", tt.status, rec.Code)
			}
			body := decodeBody[errorResponse](t, rec)
			if tt.message != "" && body.Error != tt.message {
				t.Fatalf("expected message %q got %q", tt.message, body.Error)
			}
		})
	}
}
