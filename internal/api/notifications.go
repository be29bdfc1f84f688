package api

import (
	"net/http"

	"cicerone/pkg/notify"
)

// NotificationsHandler serves the collected user-facing notifications.
type NotificationsHandler struct {
	ring *notify.Ring
}

// NewNotificationsHandler creates a NotificationsHandler.
func NewNotificationsHandler(ring *notify.Ring) *NotificationsHandler {
	return &NotificationsHandler{ring: ring}
}

// HandleList returns the stored notifications, oldest first.
func (h *NotificationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	notifications := h.ring.Recent()
	writeJSON(w, map[string]any{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// HandleClear drops all stored notifications.
func (h *NotificationsHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	h.ring.Clear()
	w.WriteHeader(http.StatusNoContent)
}
