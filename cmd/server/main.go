package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mafia-game/backend/internal/auth"
	"github.com/mafia-game/backend/internal/clock"
	"github.com/mafia-game/backend/internal/config"
	"github.com/mafia-game/backend/internal/game"
	"github.com/mafia-game/backend/internal/handlers"
	"github.com/mafia-game/backend/internal/logging"
	"github.com/mafia-game/backend/internal/storage/memory"
	"github.com/mafia-game/backend/internal/storage/sqlite"
	"github.com/mafia-game/backend/internal/telemetry"
)

const (
	serviceName     = "mafia-backend"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("shutdown tracing")
		}
	}()

	var src clock.Source = clock.Local{}
	if cfg.ClockReferenceURL != "" {
		synced := clock.NewSynced(cfg.ClockReferenceURL)
		go synced.Run(ctx, cfg.ClockSyncInterval)
		src = synced
	}

	opts := game.Options{
		Store:               memory.New(),
		Clock:               src,
		InactivityThreshold: cfg.InactivityThreshold,
		Lobbies:             cfg.LobbyCatalogue(),
	}
	if cfg.DBPath != "" {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open game store %s: %w", cfg.DBPath, err)
		}
		defer store.Close()
		opts.Store = store
		log.Info().Str("path", cfg.DBPath).Msg("using sqlite game store")
	}

	tokens, err := auth.NewIssuer(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("create session issuer: %w", err)
	}
	if cfg.SessionSecret == "" {
		log.Warn().Msg("SESSION_SECRET not set, sessions will not survive a restart")
	}

	gameManager := game.NewGameManager(opts)
	defer gameManager.Close()
	if err := gameManager.Recover(ctx); err != nil {
		return fmt.Errorf("recover games: %w", err)
	}
	go gameManager.RunReaper(ctx, cfg.ReaperInterval)

	gin.SetMode(cfg.GinMode)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(gameManager, tokens, cfg.AllowedOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("port", cfg.Port).Msg("mafia game server starting")
	return serve(ctx, srv)
}

// serve runs srv until ctx is done or the listener fails, then shuts it
// down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
