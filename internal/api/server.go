package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cicerone/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, tours *TourHandler, stats *StatsHandler, notif *NotificationsHandler, posWS *PositionWSHandler, mode *ModeHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health + Version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Stats + Notifications
	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/notifications", notif.HandleList)
	mux.HandleFunc("DELETE /api/notifications", notif.HandleClear)

	// 3. Tour Endpoints
	mux.HandleFunc("POST /api/tours/{id}/next", tours.HandleNext)
	mux.HandleFunc("GET /api/tours/{id}/status", tours.HandleStatus)
	mux.HandleFunc("GET /api/tours/{id}/text", tours.HandleText)
	mux.HandleFunc("POST /api/tours/{id}/control", tours.HandleControl)
	mux.HandleFunc("POST /api/tours/{id}/position", tours.HandlePosition)

	// 4. Live Position Feed (browser GPS bridge)
	mux.HandleFunc("GET /api/position/ws", posWS.Handle)
	mux.HandleFunc("GET /api/position", tours.HandleLatestPosition)
	mux.HandleFunc("GET /api/position/mode", mode.HandleGet)
	mux.HandleFunc("PUT /api/position/mode", mode.HandleSet)

	// 5. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
