package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/playmates/backend/internal/friends"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func statusForKind(kind friends.Kind) int {
	switch kind {
	case friends.KindInvalidIdentifier, friends.KindInvalidInput, friends.KindInvalidEnumValue, friends.KindUnknownField:
		return http.StatusBadRequest
	case friends.KindPermissionDenied:
		return http.StatusForbidden
	case friends.KindNotFound:
		return http.StatusNotFound
	case friends.KindDuplicateRequest, friends.KindAlreadyExists:
		return http.StatusConflict
	case friends.KindNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a relationship service error as {"error", "kind"} with the status its
// kind maps to. Store failures never leak their underlying message.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := friends.KindOf(err)
	status := statusForKind(kind)

	message := "internal error"
	var fe *friends.Error
	switch {
	case status < http.StatusInternalServerError && errors.As(err, &fe):
		message = fe.Message
	case status == http.StatusServiceUnavailable:
		message = "service temporarily unavailable"
	}

	respondJSON(ctx, w, status, errorResponse{Error: message, Kind: string(kind)})
}
