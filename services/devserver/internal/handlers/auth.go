package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/api"
	"github.com/example/comment-sync/internal/platform/auth"
	"github.com/example/comment-sync/internal/platform/httpserver"
	"github.com/example/comment-sync/services/devserver/internal/store"
)

const minPasswordLength = 6

// Auth serves the /auth routes. Sessions are HS256 tokens delivered both
// as the token cookie and in the response body.
type Auth struct {
	Users  store.UserStore
	Tokens auth.Tokens
	Log    *zap.Logger
	// Now is overridable in tests.
	Now func() time.Time
}

// Register handles POST /auth/register.
func (h Auth) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req contract.RegisterRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.TrimSpace(req.Email)
		switch {
		case req.Name == "":
			api.BadRequest(w, "INVALID_NAME", "Name is required", rid)
			return
		case !validEmail(req.Email):
			api.BadRequest(w, "INVALID_EMAIL", "A valid email is required", rid)
			return
		case len(req.Password) < minPasswordLength:
			api.BadRequest(w, "INVALID_PASSWORD", "Password must be at least 6 characters", rid)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			h.Log.Error("hash password failed", zap.Error(err))
			api.Internal(w, rid)
			return
		}
		u, err := h.Users.CreateUser(r.Context(), store.CreateUserParams{
			Name: req.Name, Email: req.Email, PasswordHash: string(hash),
		})
		if errors.Is(err, store.ErrConflict) {
			api.Conflict(w, "EMAIL_TAKEN", "Email already registered", rid)
			return
		}
		if err != nil {
			h.Log.Error("create user failed", zap.Error(err), zap.String("request_id", rid))
			api.Internal(w, rid)
			return
		}
		h.issue(w, r, http.StatusCreated, u)
	}
}

// Login handles POST /auth/login.
func (h Auth) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req contract.LoginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid)
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			api.BadRequest(w, "MISSING_CREDENTIALS", "Email and password are required", rid)
			return
		}

		row, err := h.Users.UserByEmail(r.Context(), req.Email)
		if err != nil && !errors.Is(err, store.ErrUserNotFound) {
			h.Log.Error("lookup user failed", zap.Error(err), zap.String("request_id", rid))
			api.Internal(w, rid)
			return
		}
		if err != nil || bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(req.Password)) != nil {
			api.Unauthorized(w, "INVALID_CREDENTIALS", "Invalid email or password", rid)
			return
		}
		h.issue(w, r, http.StatusOK, row.User)
	}
}

// Me handles GET /auth/me behind auth.RequireUser.
func (h Auth) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}
		u, err := h.Users.UserByID(r.Context(), userID)
		if err != nil {
			api.Unauthorized(w, "AUTH_INVALID", "user no longer exists", rid)
			return
		}
		api.WriteSuccess(w, http.StatusOK, contract.UserData{User: &u})
	}
}

// Logout handles POST /auth/logout. It always succeeds.
func (h Auth) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		auth.ClearCookie(w)
		api.WriteSuccess(w, http.StatusOK, nil)
	}
}

func (h Auth) issue(w http.ResponseWriter, r *http.Request, status int, u contract.User) {
	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now()
	}
	token, exp, err := h.Tokens.Issue(u.ID, u.Name, now)
	if err != nil {
		h.Log.Error("issue token failed", zap.Error(err))
		api.Internal(w, httpserver.RequestIDFromContext(r.Context()))
		return
	}
	auth.SetCookie(w, token, int(exp.Sub(now).Seconds()))
	api.WriteSuccess(w, status, contract.UserData{User: &u, Token: token})
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
