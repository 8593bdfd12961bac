package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StatusInfo is the static service description reported by the status endpoints.
type StatusInfo struct {
	Model       string
	ContactsURL string
	MaxContacts int
	WebSocket   bool
}

// StatusHandler serves health and client configuration.
type StatusHandler struct {
	info StatusInfo
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(info StatusInfo) *StatusHandler {
	return &StatusHandler{info: info}
}

// RegisterRoutes registers status routes.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.GetHealth)
	r.Get("/api/config", h.GetConfig)
}

// GetHealth reports that the service is up and which backends it talks to.
func (h *StatusHandler) GetHealth(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"model":        h.info.Model,
		"contacts_url": h.info.ContactsURL,
	})
}

// GetConfig returns the settings the chat UI needs.
func (h *StatusHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"max_contacts": h.info.MaxContacts,
		"websocket":    h.info.WebSocket,
	})
}
