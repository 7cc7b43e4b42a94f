package handlers

import (
	"net/http"

	"github.com/playmates/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux. Friends, search and privacy
// routes sit behind bearer authentication.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Checks: deps.HealthChecks}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	friends := FriendHandler{Friends: deps.Friends, Limiter: deps.FriendLimiter}
	search := SearchHandler{Friends: deps.Friends, Limiter: deps.FriendLimiter}
	privacy := PrivacyHandler{Friends: deps.Friends}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", auth.Logout)

	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.Authenticate(deps.Tokens, deps.Presence)(h)
	}

	mux.Handle("/api/v1/friends", protected(friends.List))
	mux.Handle("/api/v1/friends/requests", protected(friends.Requests))
	mux.Handle("/api/v1/friends/requests/accept", protected(friends.Accept))
	mux.Handle("/api/v1/friends/requests/decline", protected(friends.Decline))
	mux.Handle("/api/v1/friends/remove", protected(friends.Remove))
	mux.Handle("/api/v1/friends/block", protected(friends.Block))
	mux.Handle("/api/v1/friends/unblock", protected(friends.Unblock))
	mux.Handle("/api/v1/friends/suggested", protected(friends.Suggested))
	mux.Handle("/api/v1/friends/recent", protected(friends.Recent))
	mux.Handle("/api/v1/users/search", protected(search.Search))
	mux.Handle("/api/v1/privacy", protected(privacy.Handle))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users    UserStore
	Sessions SessionManager
	Tokens   middleware.TokenAuthenticator
	Presence middleware.PresenceToucher
	Friends  FriendService

	AuthLimiter   RateLimiter
	FriendLimiter RateLimiter

	HealthChecks map[string]Pinger
}
