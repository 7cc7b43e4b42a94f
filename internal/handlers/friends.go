package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/playmates/backend/internal/auth"
	"github.com/playmates/backend/internal/models"
)

const maxBodyBytes = 1 << 16

// FriendHandler exposes the relationship service over REST. Every route expects the
// authenticated caller on the request context.
type FriendHandler struct {
	Friends FriendService
	Limiter RateLimiter
}

// List handles GET /api/v1/friends.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, func(ctx context.Context, userID string) (any, error) {
		list, err := h.Friends.FetchFriends(ctx, userID)
		return listResponse[models.Friend]{Items: list}, err
	})
}

// Requests handles GET (list) and POST (send) on /api/v1/friends/requests.
func (h FriendHandler) Requests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.read(w, r, func(ctx context.Context, userID string) (any, error) {
			return h.Friends.FetchFriendRequests(ctx, userID)
		})
	case http.MethodPost:
		var req struct {
			ReceiverID string `json:"receiverId"`
		}
		h.write(w, r, "friend-request", &req, func(ctx context.Context, userID string) (models.FriendActionResult, error) {
			return h.Friends.SendFriendRequest(ctx, userID, req.ReceiverID)
		}, http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Accept handles POST /api/v1/friends/requests/accept.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req requestIDBody
	h.post(w, r, &req, func(ctx context.Context, userID string) (models.FriendActionResult, error) {
		return h.Friends.AcceptFriendRequest(ctx, userID, req.RequestID)
	})
}

// Decline handles POST /api/v1/friends/requests/decline.
func (h FriendHandler) Decline(w http.ResponseWriter, r *http.Request) {
	var req requestIDBody
	h.post(w, r, &req, func(ctx context.Context, userID string) (models.FriendActionResult, error) {
		return h.Friends.DeclineFriendRequest(ctx, userID, req.RequestID)
	})
}

// Remove handles POST /api/v1/friends/remove.
func (h FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req userIDBody
	h.post(w, r, &req, func(ctx context.Context, userID string) (models.FriendActionResult, error) {
		return h.Friends.RemoveFriend(ctx, userID, req.UserID)
	})
}

// Block handles POST /api/v1/friends/block.
func (h FriendHandler) Block(w http.ResponseWriter, r *http.Request) {
	var req userIDBody
	h.post(w, r, &req, func(ctx context.Context, userID string) (models.FriendActionResult, error) {
		return h.Friends.BlockUser(ctx, userID, req.UserID)
	})
}

// Unblock handles POST /api/v1/friends/unblock.
func (h FriendHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	var req userIDBody
	h.post(w, r, &req, func(ctx context.Context, userID string) (models.FriendActionResult, error) {
		return h.Friends.UnblockUser(ctx, userID, req.UserID)
	})
}

// Suggested handles GET /api/v1/friends/suggested.
func (h FriendHandler) Suggested(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, func(ctx context.Context, userID string) (any, error) {
		list, err := h.Friends.FetchSuggestedFriends(ctx, userID)
		return listResponse[models.SuggestedFriend]{Items: list}, err
	})
}

// Recent handles GET /api/v1/friends/recent.
func (h FriendHandler) Recent(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, func(ctx context.Context, userID string) (any, error) {
		list, err := h.Friends.FetchRecentMembers(ctx, userID)
		return listResponse[models.RecentMember]{Items: list}, err
	})
}

type requestIDBody struct {
	RequestID string `json:"requestId"`
}

type userIDBody struct {
	UserID string `json:"userId"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func (h FriendHandler) read(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, userID string) (any, error)) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	if h.Friends == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "friends service unavailable"})
		return
	}

	payload, err := fetch(ctx, userID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, payload)
}

func (h FriendHandler) post(w http.ResponseWriter, r *http.Request, body any, mutate func(ctx context.Context, userID string) (models.FriendActionResult, error)) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.write(w, r, "", body, mutate, http.StatusOK)
}

// write decodes body, applies the optional per-user limit for scope and runs mutate.
// Noop results are reported with 200 regardless of created.
func (h FriendHandler) write(w http.ResponseWriter, r *http.Request, scope string, body any, mutate func(ctx context.Context, userID string) (models.FriendActionResult, error), created int) {
	ctx := r.Context()
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	if h.Friends == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "friends service unavailable"})
		return
	}
	if scope != "" && !allowUser(w, h.Limiter, r, scope) {
		respondJSON(ctx, w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
		return
	}
	if err := decodeJSON(r, body); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "invalid_input"})
		return
	}

	result, err := mutate(ctx, userID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	status := created
	if result.Noop {
		status = http.StatusOK
	}
	respondJSON(ctx, w, status, result)
}

func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		respondJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Error: "authentication required", Kind: "unauthenticated"})
		return "", false
	}
	return userID, true
}

func decodeJSON(r *http.Request, out any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(out)
}
