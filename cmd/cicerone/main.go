package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cicerone/internal/api"
	"cicerone/pkg/audio"
	"cicerone/pkg/config"
	"cicerone/pkg/db"
	"cicerone/pkg/gateway"
	"cicerone/pkg/logging"
	"cicerone/pkg/model"
	"cicerone/pkg/notify"
	"cicerone/pkg/position"
	"cicerone/pkg/request"
	"cicerone/pkg/speech"
	"cicerone/pkg/store"
	"cicerone/pkg/tour"
	"cicerone/pkg/tracker"
	"cicerone/pkg/tts"
	"cicerone/pkg/version"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault("configs/cicerone.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/cicerone.yaml")
		return
	}

	if err := run(context.Background(), "configs/cicerone.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Secrets (CICERONE_API_TOKEN, CICERONE_API_URL) may come from a .env file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Cicerone Started", "version", version.Version)

	st, closeStore := initStore(appCfg)
	defer closeStore()

	tr := tracker.New()
	notifier := notify.NewRing(0)

	reqClient := request.New(st, tr, request.ClientConfig{
		Retries:   appCfg.Request.Retries,
		Timeout:   time.Duration(appCfg.Request.Timeout),
		BaseDelay: time.Duration(appCfg.Request.Backoff.BaseDelay),
	})
	gw := recordGateway{client: gateway.NewClient(reqClient, appCfg.Backend.BaseURL, appCfg.Backend.Token)}

	synth, err := tts.New(appCfg.TTS.Engine, appCfg.TTS.Command)
	if err != nil {
		return fmt.Errorf("failed to initialize TTS: %w", err)
	}

	player := audio.New()
	defer player.Shutdown()

	feed := position.NewFeed()
	acquirer := position.NewAcquirer(
		position.FeedSource{Feed: feed},
		appCfg.Position.Retries,
		time.Duration(appCfg.Position.RetryDelay),
	)

	registry := tour.NewRegistry(time.Duration(appCfg.Tour.SessionTTL), func(tourID string) (*tour.Session, error) {
		spk := speech.NewController(synth, player, speech.Options{
			Voice:            appCfg.TTS.Voice,
			BoundaryInterval: time.Duration(appCfg.Speech.BoundaryInterval),
		})
		sess := tour.NewSession(ctx, tourID, st, gw, spk, notifier, tr, tour.SessionConfig{
			DurationHint:   appCfg.Tour.Duration,
			Pace:           appCfg.Tour.Pace,
			LLMVariant:     appCfg.Tour.LLMVariant,
			VoiceVariant:   appCfg.Tour.VoiceVariant,
			AutoPlay:       appCfg.Speech.AutoPlay,
			StateExpiry:    time.Duration(appCfg.Tour.StateExpiry),
			MinMoveMeters:  appCfg.Position.MinMoveMeters,
			CellResolution: appCfg.Position.CellResolution,
		})
		return sess, nil
	})
	defer registry.Shutdown()

	modes := position.NewModeStore(st)

	return runServer(ctx, appCfg, registry, feed, acquirer, modes, tr, notifier)
}

// recordGateway adapts the backend client to the session's gateway seam.
type recordGateway struct {
	client *gateway.Client
}

var _ tour.RecordGateway = recordGateway{}

func (g recordGateway) NextRecord(ctx context.Context, tourID string, p tour.RecordParams) (*model.TourRecord, error) {
	return g.client.NextRecord(ctx, tourID, gateway.NextRecordParams{
		Lat:          p.Lat,
		Lng:          p.Lng,
		DurationHint: p.DurationHint,
		UserText:     p.UserText,
		Pace:         p.Pace,
		LLMVariant:   p.LLMVariant,
		VoiceVariant: p.VoiceVariant,
	})
}

// initStore opens the SQLite store, falling back to an in-memory store when
// the database cannot be opened. The service stays usable either way, it
// just loses persistence across restarts.
func initStore(appCfg *config.Config) (store.Store, func()) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		slog.Error("Failed to open database, falling back to in-memory store", "path", appCfg.DB.Path, "error", err)
		mem := store.NewMemoryStore()
		return mem, func() { _ = mem.Close() }
	}
	if err := dbConn.PruneCache(7 * 24 * time.Hour); err != nil {
		slog.Warn("Cache pruning failed", "error", err)
	}
	s := store.NewSQLiteStore(dbConn)
	return s, func() {
		if err := s.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}
}

func runServer(ctx context.Context, appCfg *config.Config, registry *tour.Registry, feed *position.Feed, acquirer *position.Acquirer, modes *position.ModeStore, tr *tracker.Tracker, notifier *notify.Ring) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	shutdownFunc := func() {
		quit <- syscall.SIGTERM
	}

	tours := api.NewTourHandler(registry, feed, acquirer)
	stats := api.NewStatsHandler(tr, registry)
	notifications := api.NewNotificationsHandler(notifier)
	posWS := api.NewPositionWSHandler(feed, registry)
	mode := api.NewModeHandler(modes)

	srv := api.NewServer(appCfg.Server.Address, tours, stats, notifications, posWS, mode, shutdownFunc)
	srv.Handler = loggingMiddleware(srv.Handler)

	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
