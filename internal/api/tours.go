package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cicerone/pkg/model"
	"cicerone/pkg/position"
	"cicerone/pkg/tour"
)

// TourHandler serves all per-tour endpoints. Sessions are created lazily
// through the registry on first access.
type TourHandler struct {
	registry *tour.Registry
	feed     *position.Feed
	acquirer *position.Acquirer
}

// NewTourHandler creates a TourHandler.
func NewTourHandler(registry *tour.Registry, feed *position.Feed, acquirer *position.Acquirer) *TourHandler {
	return &TourHandler{registry: registry, feed: feed, acquirer: acquirer}
}

func (h *TourHandler) session(w http.ResponseWriter, r *http.Request) (*tour.Session, string, bool) {
	tourID := r.PathValue("id")
	if tourID == "" {
		http.Error(w, "Missing tour ID", http.StatusBadRequest)
		return nil, "", false
	}
	sess, err := h.registry.Get(tourID)
	if err != nil {
		slog.Error("API: failed to create tour session", "tour", tourID, "error", err)
		http.Error(w, "Failed to create tour session", http.StatusInternalServerError)
		return nil, "", false
	}
	return sess, tourID, true
}

// HandleNext acquires the current position and feeds it to the tour,
// possibly starting a record fetch.
func (h *TourHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	sess, tourID, ok := h.session(w, r)
	if !ok {
		return
	}

	sample, err := h.acquirer.Acquire(r.Context())
	if err != nil {
		if errors.Is(err, position.ErrPermissionDenied) {
			http.Error(w, "Position access denied", http.StatusForbidden)
			return
		}
		slog.Warn("API: no position available", "tour", tourID, "error", err)
		http.Error(w, "No position available", http.StatusServiceUnavailable)
		return
	}

	// An explicit advance must work while stationary, so it skips the
	// movement gate that GPS updates go through
	triggered := sess.Advance(r.Context(), sample)
	writeJSON(w, map[string]any{
		"triggered": triggered,
		"state":     sess.State(),
	})
}

// HandleStatus returns the session snapshot.
func (h *TourHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, sess.Status())
}

// textResponse is the payload for the text endpoint.
type textResponse struct {
	Display         string `json:"display_text"`
	HighlightedHTML string `json:"highlighted_html"`
	SpokenSentence  string `json:"spoken_sentence"`
	Chunks          int    `json:"chunks"`
}

// HandleText returns the narration text with the spoken sentence highlighted.
func (h *TourHandler) HandleText(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}
	st := sess.Status()
	writeJSON(w, textResponse{
		Display:         st.Display,
		HighlightedHTML: st.HighlightedHTML,
		SpokenSentence:  st.SpokenSentence,
		Chunks:          st.Chunks,
	})
}

// controlRequest is the body for the control endpoint.
type controlRequest struct {
	Action   string `json:"action"`
	UserText string `json:"user_text,omitempty"`
}

// HandleControl executes a playback action: play, pause, resume, stop,
// rewind or reset. An optional user_text rides along with the next fetch.
func (h *TourHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	sess, tourID, ok := h.session(w, r)
	if !ok {
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.UserText != "" {
		sess.SetUserText(req.UserText)
	}

	var err error
	switch req.Action {
	case "play":
		err = sess.Play(r.Context())
	case "pause":
		err = sess.Pause(r.Context())
	case "resume":
		err = sess.Resume(r.Context())
	case "stop":
		err = sess.Stop(r.Context())
	case "rewind":
		err = sess.Rewind(r.Context())
	case "reset":
		err = sess.Reset(r.Context())
	case "":
		// user_text only, no playback action
	default:
		http.Error(w, "Unknown action: "+req.Action, http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("API: control action failed", "tour", tourID, "action", req.Action, "error", err)
		http.Error(w, "Action failed: "+err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, map[string]any{"state": sess.State()})
}

// HandlePosition accepts a manually placed position for a tour. The sample
// goes into the shared feed and the tour's trigger.
func (h *TourHandler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := h.session(w, r)
	if !ok {
		return
	}

	var sample model.PositionSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	h.feed.Publish(sample)
	triggered := sess.HandlePosition(r.Context(), sample)
	writeJSON(w, map[string]any{
		"triggered": triggered,
		"state":     sess.State(),
	})
}

// HandleLatestPosition returns the most recent position sample.
func (h *TourHandler) HandleLatestPosition(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.feed.Latest()
	if !ok {
		http.Error(w, "No position available", http.StatusNotFound)
		return
	}
	writeJSON(w, sample)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("API: failed to encode response", "error", err)
	}
}
