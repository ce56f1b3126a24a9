package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/api/auth"
	"github.com/reelcache/reelcache/pkg/api/middleware"
	"github.com/reelcache/reelcache/pkg/models"
	"github.com/reelcache/reelcache/pkg/store"
)

// AuthHandler serves login, token refresh and the current-user endpoint.
type AuthHandler struct {
	store store.Store
	jwt   *auth.JWTService
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(st store.Store, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{store: st, jwt: jwtService}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid_body", "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		BadRequest(w, "missing_field", "email and password are required")
		return
	}

	user, err := h.store.ValidateCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	pair, err := h.jwt.GenerateTokenPair(user)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.store.UpdateLastLogin(r.Context(), user.ID, time.Now()); err != nil {
		logger.Warn("Failed to record last login", "user_id", user.ID, "error", err)
	}

	OK(w, map[string]any{"user": user, "tokens": pair})
}

// Refresh handles POST /api/v1/auth/refresh: exchanges a refresh token for a
// new token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid_body", "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		BadRequest(w, "missing_field", "refresh_token is required")
		return
	}

	claims, err := h.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		Error(w, http.StatusUnauthorized, "invalid_token", "invalid or expired refresh token", nil)
		return
	}

	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if !user.Enabled {
		WriteError(w, models.ErrUserDisabled)
		return
	}

	pair, err := h.jwt.GenerateTokenPair(user)
	if err != nil {
		WriteError(w, err)
		return
	}

	OK(w, map[string]any{"tokens": pair})
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUserByID(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, user)
}
