package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpmw "github.com/kinna/kinna-backend/internal/http/middleware"
	"github.com/kinna/kinna-backend/internal/http/response"
)

// ListNotifications returns one page of the caller's notifications, newest first
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id := httpmw.Identity(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	result, err := h.notificationService.List(r.Context(), id.ID, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func (h *Handlers) UnreadNotificationCount(w http.ResponseWriter, r *http.Request) {
	id := httpmw.Identity(r.Context())

	n, err := h.notificationService.UnreadCount(r.Context(), id.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := httpmw.Identity(r.Context())

	notificationID, err := uuid.Parse(chi.URLParam(r, "notification"))
	if err != nil {
		response.BadRequest(w, "Invalid notification id")
		return
	}

	if err := h.notificationService.MarkRead(r.Context(), id.ID, notificationID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

func (h *Handlers) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	id := httpmw.Identity(r.Context())

	n, err := h.notificationService.MarkAllRead(r.Context(), id.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"message": "All notifications marked as read", "updated": n})
}
