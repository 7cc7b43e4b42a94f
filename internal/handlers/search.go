package handlers

import (
	"net/http"

	"github.com/playmates/backend/internal/models"
)

// SearchHandler serves user search annotated with friendship status.
type SearchHandler struct {
	Friends FriendService
	Limiter RateLimiter
}

// Search handles GET /api/v1/users/search?q=.
func (h SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
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
	if !allowUser(w, h.Limiter, r, "search") {
		respondJSON(ctx, w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
		return
	}

	results, err := h.Friends.SearchUsers(ctx, userID, r.URL.Query().Get("q"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, listResponse[models.SearchResult]{Items: results})
}
