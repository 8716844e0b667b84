package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/services"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

type AuthHandler struct {
	auth  ports.AuthService
	links ports.LinkService
}

func NewAuthHandler(auth ports.AuthService, links ports.LinkService) *AuthHandler {
	return &AuthHandler{auth: auth, links: links}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ClaimLinksRequest struct {
	AnonymousID string `json:"anonymous_id"`
}

type AuthResponse struct {
	domain.AuthResult
	Message string `json:"message"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, AuthResponse{AuthResult: *res, Message: "Registration successful"})
	case errors.Is(err, services.ErrUserExists):
		writeError(w, http.StatusConflict, "Username or email already exists")
	case errors.Is(err, services.ErrMissingFields), errors.Is(err, domain.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("register failed")
		writeError(w, http.StatusInternalServerError, "Registration failed")
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, AuthResponse{AuthResult: *res, Message: "Login successful"})
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "Login failed")
	}
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, pair)
	case errors.Is(err, services.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("refresh failed")
		writeError(w, http.StatusInternalServerError, "Failed to refresh token")
	}
}

// ClaimLinks must run behind RequireJWT.
func (h *AuthHandler) ClaimLinks(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req ClaimLinksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AnonymousID == "" {
		writeError(w, http.StatusBadRequest, "anonymous_id is required")
		return
	}

	n, err := h.links.ClaimAnonymousLinks(r.Context(), p.UserID, req.AnonymousID)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("claim failed")
		writeError(w, http.StatusInternalServerError, "Failed to claim links")
		return
	}

	zerolog.Ctx(r.Context()).Info().Int64("user_id", p.UserID).Int64("claimed", n).Msg("links claimed")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Links claimed successfully",
		"user_id": p.UserID,
		"claimed": n,
	})
}
