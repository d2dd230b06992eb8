package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kinna/kinna-backend/internal/domain"
	httpmw "github.com/kinna/kinna-backend/internal/http/middleware"
	"github.com/kinna/kinna-backend/internal/http/response"
)

// Me returns the authenticated user's own account
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id := httpmw.Identity(r.Context())
	if id == nil {
		writeServiceError(w, r, domain.ErrUnauthenticated)
		return
	}

	user, err := h.userService.Me(r.Context(), id.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"user": user})
}

// Profile returns a public profile; is_following is only present for
// authenticated callers
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	var viewer *uuid.UUID
	if id := httpmw.Identity(r.Context()); id != nil {
		viewer = &id.ID
	}

	profile, err := h.userService.Profile(r.Context(), chi.URLParam(r, "user"), viewer)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"user": profile})
}

// Follow makes the caller follow the user with the given id
func (h *Handlers) Follow(w http.ResponseWriter, r *http.Request) {
	id := httpmw.Identity(r.Context())
	target, ok := parseUserID(w, r)
	if !ok {
		return
	}

	if err := h.userService.Follow(r.Context(), id.ID, target); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Followed successfully"})
}

// Unfollow removes the caller's follow edge, if any
func (h *Handlers) Unfollow(w http.ResponseWriter, r *http.Request) {
	id := httpmw.Identity(r.Context())
	target, ok := parseUserID(w, r)
	if !ok {
		return
	}

	if err := h.userService.Unfollow(r.Context(), id.ID, target); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Unfollowed successfully"})
}

func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "user"))
	if err != nil {
		response.BadRequest(w, "Invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

// UpdateProfile applies a partial update to the caller's own profile
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := httpmw.Identity(r.Context())

	var req domain.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), id.ID, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handlers) PrivacySettings(w http.ResponseWriter, r *http.Request) {
	id := httpmw.Identity(r.Context())

	settings, err := h.userService.PrivacySettings(r.Context(), id.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"settings": settings})
}

// UpdatePrivacy changes only the settings present in the body
func (h *Handlers) UpdatePrivacy(w http.ResponseWriter, r *http.Request) {
	id := httpmw.Identity(r.Context())

	var req domain.UpdatePrivacyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	settings, err := h.userService.UpdatePrivacy(r.Context(), id.ID, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"settings": settings})
}
