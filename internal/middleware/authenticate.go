package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/playmates/backend/internal/auth"
	"github.com/playmates/backend/internal/logging"
)

// TokenAuthenticator resolves a bearer access token to a user id.
type TokenAuthenticator interface {
	Authenticate(accessToken string) (string, error)
}

// PresenceToucher records that a user was just active.
type PresenceToucher interface {
	Touch(ctx context.Context, userID string) error
}

// Authenticate rejects requests without a valid bearer token and stores the caller on the
// request context. A non-nil presence tracker is touched on every authenticated request.
func Authenticate(tokens TokenAuthenticator, presence PresenceToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID, err := tokens.Authenticate(bearerToken(r))
			if err != nil {
				logging.FromContext(ctx).Info("rejected bearer token", slog.Any("error", err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="playmates"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required", "kind": "unauthenticated"})
				return
			}

			ctx = auth.WithUserID(ctx, userID)
			ctx = logging.WithAttrs(ctx, slog.String("user_id", userID))

			if presence != nil {
				if err := presence.Touch(ctx, userID); err != nil {
					logging.FromContext(ctx).Warn("presence touch failed", slog.Any("error", err))
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}
