package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/middleware"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/response"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/service"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

const (
	msgInvalidCredentials = "Usuario o contraseña incorrectos"
	msgRecoverSent        = "Si el correo está registrado, recibirás un enlace para restablecer tu contraseña."
	msgInvalidResetToken  = "Token inválido o expirado"
)

type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// PublicRoutes are mounted under /api behind the login rate limiter.
func (h *AuthHandler) PublicRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/recover", h.recover)
	r.Post("/reset-password", h.resetPassword)
}

// SessionRoutes need an authenticated session.
func (h *AuthHandler) SessionRoutes(r chi.Router) {
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var in domain.LoginRequest
	if !decode(w, r, &in) {
		return
	}

	sess, err := h.Auth.Login(r.Context(), in)
	if errors.Is(err, service.ErrInvalidCredentials) {
		response.Unauthorized(w, msgInvalidCredentials)
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Login failed", "error", err)
		response.InternalError(w, "Error al iniciar sesión")
		return
	}

	response.WriteJSON(w, http.StatusOK, domain.LoginResponse{
		OK:       true,
		Token:    sess.Token,
		Role:     sess.Role,
		Username: sess.Username,
	})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context(), middleware.BearerToken(r)); err != nil {
		logger.ErrorContext(r.Context(), "Logout failed", "error", err)
		response.InternalError(w, "Error al cerrar sesión")
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r.Context())
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"userId":    s.UserID,
		"username":  s.Username,
		"role":      s.Role,
		"expiresAt": s.ExpiresAt,
	})
}

func (h *AuthHandler) recover(w http.ResponseWriter, r *http.Request) {
	var in domain.RecoverRequest
	if !decode(w, r, &in) {
		return
	}
	if err := h.Auth.Recover(r.Context(), in); err != nil {
		// same answer either way so the endpoint cannot reveal which emails exist
		logger.ErrorContext(r.Context(), "Password recovery failed", "error", err)
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "mensaje": msgRecoverSent})
}

func (h *AuthHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in domain.ResetPasswordRequest
	if !decode(w, r, &in) {
		return
	}

	err := h.Auth.ResetPassword(r.Context(), in)
	switch {
	case err == nil:
		response.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "mensaje": "Contraseña actualizada"})
	case errors.Is(err, service.ErrPasswordTooShort):
		response.BadRequest(w, "La contraseña es demasiado corta")
	case errors.Is(err, service.ErrPasswordTooLong):
		response.BadRequest(w, "La contraseña es demasiado larga")
	case errors.Is(err, service.ErrInvalidResetToken):
		response.InvalidToken(w, msgInvalidResetToken)
	default:
		logger.ErrorContext(r.Context(), "Password reset failed", "error", err)
		response.InternalError(w, "Error al restablecer la contraseña")
	}
}
