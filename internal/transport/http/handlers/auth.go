package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/go-goal-tracker/internal/transport/http/errors"
	"github.com/pribylovaa/go-goal-tracker/internal/transport/http/middleware"
)

// SignInApple — POST /auth/apple.
func (h *Handlers) SignInApple(w http.ResponseWriter, r *http.Request) {
	var in signInRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	res, err := h.Auth.SignIn(r.Context(), in.toAssertion(), in.DeviceID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authFromModel(res))
}

// Refresh — POST /auth/refresh.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	res, err := h.Auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authFromModel(res))
}

// Logout — POST /auth/logout, требует Bearer access-токен.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context(), middleware.BearerFrom(r.Context())); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, logoutResponse{Success: true})
}

// LogoutAll — POST /auth/logout-all, требует Bearer access-токен.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.Auth.LogoutAll(r.Context(), middleware.BearerFrom(r.Context()))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, logoutAllResponse{DevicesLoggedOut: n})
}

// Me — GET /auth/me: содержимое access-токена.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := h.Auth.Authenticate(r.Context(), middleware.BearerFrom(r.Context()))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UserID:    claims.UserID.String(),
		Email:     claims.Email,
		SessionID: claims.SessionID.String(),
		ExpiresAt: claims.ExpiresAt.Unix(),
	})
}
