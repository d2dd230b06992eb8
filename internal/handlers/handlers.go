package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kinna/kinna-backend/internal/domain"
	httpmw "github.com/kinna/kinna-backend/internal/http/middleware"
	"github.com/kinna/kinna-backend/internal/http/response"
	"github.com/kinna/kinna-backend/internal/service"
	"github.com/kinna/kinna-backend/pkg/logger"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	authService         service.AuthService
	userService         service.UserService
	notificationService service.NotificationService
	tokens              httpmw.TokenValidator
	throttle            func(http.Handler) http.Handler
}

func New(
	authService service.AuthService,
	userService service.UserService,
	notificationService service.NotificationService,
	tokens httpmw.TokenValidator,
	throttle func(http.Handler) http.Handler,
) *Handlers {
	return &Handlers{
		authService:         authService,
		userService:         userService,
		notificationService: notificationService,
		tokens:              tokens,
		throttle:            throttle,
	}
}

// Routes returns the API router, meant to be mounted under /api.
func (h *Handlers) Routes() chi.Router {
	requireAuth := httpmw.RequireAuth(h.tokens)
	optionalAuth := httpmw.OptionalAuth(h.tokens)

	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		if h.throttle != nil {
			r.Use(h.throttle)
		}
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/verify-email", h.VerifyEmail)
		r.Post("/resend-verification", h.ResendVerification)
		r.Get("/check-username/{username}", h.CheckUsername)
	})

	r.Route("/users", func(r chi.Router) {
		r.Route("/me", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", h.Me)
			r.Put("/", h.UpdateProfile)
			r.Get("/privacy", h.PrivacySettings)
			r.Put("/privacy", h.UpdatePrivacy)
		})
		r.Route("/{user}", func(r chi.Router) {
			r.With(optionalAuth).Get("/", h.Profile)
			r.With(requireAuth).Post("/follow", h.Follow)
			r.With(requireAuth).Delete("/follow", h.Unfollow)
		})
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", h.ListNotifications)
		r.Get("/unread/count", h.UnreadNotificationCount)
		r.Put("/read/all", h.MarkAllNotificationsRead)
		r.Put("/{notification}/read", h.MarkNotificationRead)
	})

	return r
}

// decodeJSON reads a single JSON object into dst. It writes the 400 itself
// and returns false when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			response.BadRequest(w, "Request body too large")
		case errors.Is(err, io.EOF):
			response.BadRequest(w, "Request body is required")
		default:
			response.BadRequest(w, "Invalid JSON body")
		}
		return false
	}
	return true
}

// writeServiceError maps domain errors onto HTTP responses. Anything
// unrecognised is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *domain.ValidationError
		rl   *domain.RateLimitedError
	)
	switch {
	case errors.As(err, &verr):
		fields := make([]response.FieldError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, response.FieldError{Field: f.Field, Message: f.Message})
		}
		response.Validation(w, fields)
	case errors.As(err, &rl):
		response.RateLimit(w, fmt.Sprintf("Please wait %d seconds before requesting a new code", rl.Seconds()), rl.Seconds())
	case errors.Is(err, domain.ErrConflict):
		response.Conflict(w, "Username or email already taken")
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Unauthorized(w, "Invalid credentials")
	case errors.Is(err, domain.ErrCodeNotFound):
		response.BadRequest(w, "Invalid verification code")
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		response.BadRequest(w, "Verification code has already been used")
	case errors.Is(err, domain.ErrCodeExpired):
		response.BadRequest(w, "Verification code has expired")
	case errors.Is(err, domain.ErrAlreadyVerified):
		response.BadRequest(w, "Email is already verified")
	case errors.Is(err, domain.ErrCannotFollowSelf):
		response.BadRequest(w, "You cannot follow yourself")
	case errors.Is(err, domain.ErrNotificationNotFound):
		response.NotFound(w, "Notification not found")
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, domain.ErrUnauthenticated):
		response.Unauthorized(w, "Authentication required")
	case errors.Is(err, domain.ErrEmailDispatchFailed):
		logger.ErrorContext(r.Context(), "Email dispatch failed", "error", err, "path", r.URL.Path)
		response.InternalError(w, "Failed to send verification email")
	default:
		logger.ErrorContext(r.Context(), "Unhandled service error", "error", err, "path", r.URL.Path)
		response.InternalError(w, "Internal server error")
	}
}
