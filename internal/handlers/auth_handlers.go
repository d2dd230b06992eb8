package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kinna/kinna-backend/internal/domain"
	"github.com/kinna/kinna-backend/internal/http/response"
)

const registerMailWarning = "Account created, but the verification email could not be sent. Request a new code to try again."

// Register handles user registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	body := map[string]any{
		"user":  res.User,
		"token": res.Token,
	}
	if !res.EmailSent {
		body["warning"] = registerMailWarning
	}
	response.JSON(w, http.StatusCreated, body)
}

// Login handles email or username login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"user":  session.User,
		"token": session.Token,
	})
}

// VerifyEmail redeems a verification code
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.authService.VerifyEmail(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"message": "Email verified successfully",
		"user":    user,
	})
}

// ResendVerification issues and mails a fresh code
func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendVerificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.ResendVerification(r.Context(), &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"message": "Verification code sent",
	})
}

// CheckUsername reports whether a username can still be registered
func (h *Handlers) CheckUsername(w http.ResponseWriter, r *http.Request) {
	available, err := h.authService.CheckUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"available": available})
}
