package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/playmates/backend/internal/auth"
	"github.com/playmates/backend/internal/logging"
	"github.com/playmates/backend/internal/models"
	"github.com/playmates/backend/internal/repositories"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,32}$`)

// AuthHandler implements user authentication endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	Limiter  RateLimiter
	NowFunc  func() time.Time
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(w, h.Limiter, r, "login") {
		respondJSON(ctx, w, http.StatusTooManyRequests, errorResponse{Error: "too many login attempts"})
		return
	}

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "authentication services unavailable"})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "email and password are required"})
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("login user lookup failed", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "unable to sign in"})
			return
		}
		respondJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to create session"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{UserID: user.ID, Tokens: tokens})
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(w, h.Limiter, r, "signup") {
		respondJSON(ctx, w, http.StatusTooManyRequests, errorResponse{Error: "too many sign-up attempts"})
		return
	}

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "authentication services unavailable"})
		return
	}

	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	user, msg := req.user()
	if msg != "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("signup failed to hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to secure password"})
		return
	}

	now := h.now()
	user.ID = uuid.NewString()
	user.Password = string(hashed)
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("signup conflict", "username", user.Username)
			respondJSON(ctx, w, http.StatusConflict, errorResponse{Error: "account already exists"})
			return
		}
		logger.Error("signup failed to create user", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to create account"})
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("signup failed to issue session", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to create session"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, authResponse{UserID: user.ID, Tokens: tokens})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "session service unavailable"})
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "refresh token is required"})
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			status = http.StatusUnauthorized
		}
		logger.Warn("refresh failed", "error", err, "status", status)
		respondJSON(ctx, w, status, errorResponse{Error: "unable to refresh session"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Logout handles POST /api/v1/auth/logout by revoking the supplied refresh token.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(r.Context(), w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if h.Sessions != nil {
		h.Sessions.Revoke(r.Context(), strings.TrimSpace(req.RefreshToken))
	}
	w.WriteHeader(http.StatusNoContent)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Username       string         `json:"username"`
	FullName       string         `json:"fullName"`
	Email          string         `json:"email"`
	Password       string         `json:"password"`
	FavoriteSports []models.Sport `json:"favoriteSports"`
}

// user validates the request and returns the account to create, or a client-facing message.
func (req signUpRequest) user() (models.User, string) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	username := strings.TrimSpace(req.Username)
	fullName := strings.TrimSpace(req.FullName)

	switch {
	case email == "" || req.Password == "":
		return models.User{}, "email and password are required"
	case !usernamePattern.MatchString(username):
		return models.User{}, "username must be 3-32 letters, digits, dots or underscores"
	case len(req.Password) < 8:
		return models.User{}, "password must be at least 8 characters"
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, "invalid email address"
	}

	sports := make([]models.Sport, 0, len(req.FavoriteSports))
	seen := make(map[models.Sport]struct{}, len(req.FavoriteSports))
	for _, s := range req.FavoriteSports {
		s = models.Sport(strings.ToLower(strings.TrimSpace(string(s))))
		if !s.Valid() {
			return models.User{}, "unknown sport " + string(s)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		sports = append(sports, s)
	}

	return models.User{
		Username:       username,
		FullName:       fullName,
		Email:          email,
		FavoriteSports: sports,
	}, ""
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	UserID string               `json:"userId,omitempty"`
	Tokens models.SessionTokens `json:"tokens"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}
