package api

import (
	"encoding/json"
	"net/http"

	"cicerone/pkg/position"
)

// ModeHandler serves the persisted position-mode selection.
type ModeHandler struct {
	modes *position.ModeStore
}

// NewModeHandler creates a ModeHandler.
func NewModeHandler(modes *position.ModeStore) *ModeHandler {
	return &ModeHandler{modes: modes}
}

// HandleGet returns the current position mode.
func (h *ModeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"mode": h.modes.Get(r.Context())})
}

// HandleSet persists a new position mode.
func (h *ModeHandler) HandleSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode position.Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.modes.Set(r.Context(), req.Mode); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"mode": req.Mode})
}
