package handler

import (
	"net/http"

	"go-admin-portal/internal/middleware"
	"go-admin-portal/internal/model"
	"go-admin-portal/internal/service"
	"go-admin-portal/internal/validation"
)

type AuthHandler struct {
	service *service.AuthService
	csrf    *service.CSRFService
	cookie  middleware.CookieConfig
}

func NewAuthHandler(service *service.AuthService, csrf *service.CSRFService, cookie middleware.CookieConfig) *AuthHandler {
	return &AuthHandler{service: service, csrf: csrf, cookie: cookie}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := validation.Struct(payload); err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	middleware.SetRefreshCookie(w, h.cookie, pair.RefreshToken, pair.RefreshExpiresAt)
	writeSuccess(w, http.StatusOK, pair, nil)
}

// Refresh rotates the refresh cookie. Any failure clears the cookie so the
// browser stops presenting a dead credential.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	value := middleware.RefreshCookieValue(r)
	if value == "" {
		middleware.ClearRefreshCookie(w, h.cookie)
		writeError(w, model.ErrTokenInvalid)
		return
	}

	pair, err := h.service.Refresh(r.Context(), value)
	if err != nil {
		middleware.ClearRefreshCookie(w, h.cookie)
		writeError(w, err)
		return
	}

	middleware.SetRefreshCookie(w, h.cookie, pair.RefreshToken, pair.RefreshExpiresAt)
	writeSuccess(w, http.StatusOK, model.RefreshData{
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
		ExpiresIn:   pair.ExpiresIn,
	}, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, claims, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.Logout(r.Context(), user, claims.SessionID); err != nil {
		writeError(w, err)
		return
	}

	middleware.ClearRefreshCookie(w, h.cookie)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, _, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.LogoutAll(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	middleware.ClearRefreshCookie(w, h.cookie)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	_, claims, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.CSRFTokenData{CSRFToken: h.csrf.Issue(claims.SessionID)}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, _, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	me, err := h.service.Me(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, me, nil)
}
