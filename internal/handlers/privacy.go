package handlers

import (
	"net/http"
)

// PrivacyHandler reads and patches the caller's privacy settings.
type PrivacyHandler struct {
	Friends FriendService
}

// Handle serves GET and PATCH on /api/v1/privacy. PATCH bodies are partial: only the keys
// present are changed, and unknown keys are rejected.
func (h PrivacyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPatch {
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

	if r.Method == http.MethodGet {
		settings, err := h.Friends.GetPrivacySettings(ctx, userID)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		respondJSON(ctx, w, http.StatusOK, settings)
		return
	}

	var patch map[string]any
	if err := decodeJSON(r, &patch); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "invalid_input"})
		return
	}
	settings, err := h.Friends.UpdatePrivacySettings(ctx, userID, patch)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, settings)
}
