package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cicerone/pkg/model"
	"cicerone/pkg/position"
	"cicerone/pkg/tour"
)

// PositionWSHandler bridges a browser GPS watch into the position feed over
// a websocket. Each incoming message is one position sample; when the
// client names a tour, samples also drive that tour's trigger.
type PositionWSHandler struct {
	feed     *position.Feed
	registry *tour.Registry
	upgrader websocket.Upgrader
}

// NewPositionWSHandler creates a PositionWSHandler.
func NewPositionWSHandler(feed *position.Feed, registry *tour.Registry) *PositionWSHandler {
	return &PositionWSHandler{
		feed:     feed,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local single-user service, the UI is served from the same host
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection and consumes position samples until the
// client disconnects.
func (h *PositionWSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	tourID := r.URL.Query().Get("tour")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("API: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var sess *tour.Session
	if tourID != "" {
		sess, err = h.registry.Get(tourID)
		if err != nil {
			slog.Error("API: failed to create tour session", "tour", tourID, "error", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
				time.Now().Add(time.Second))
			return
		}
	}

	slog.Info("API: position feed connected", "tour", tourID, "remote", r.RemoteAddr)

	for {
		var sample model.PositionSample
		if err := conn.ReadJSON(&sample); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("API: position feed closed unexpectedly", "error", err)
			}
			return
		}
		if sample.Timestamp.IsZero() {
			sample.Timestamp = time.Now()
		}

		h.feed.Publish(sample)
		if sess != nil {
			sess.HandlePosition(context.Background(), sample)
		}
	}
}
