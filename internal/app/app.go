package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/auth"
	"github.com/medianest/gateway/internal/config"
	"github.com/medianest/gateway/internal/core"
	"github.com/medianest/gateway/internal/status"
	"github.com/medianest/gateway/internal/store"
	"github.com/medianest/gateway/internal/store/sqlite"
	transporthttp "github.com/medianest/gateway/internal/transport/http"
)

// App wires the gateway core to its transports and collaborators. The
// broadcaster's lifecycle is owned here, by the bootstrap, never by
// ambient global state.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	poller          *status.Poller
	pollManager     *transporthttp.PollManager
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	verifier := auth.NewVerifier(st, jwtConfig)

	registry := core.NewRegistry()
	limiter := core.NewLimiter(cfg.EventRateLimit, cfg.EventRateWindow)
	gateway := core.NewGateway(registry, limiter, logger)
	dispatcher := core.NewDispatcher(limiter, logger)
	broadcaster := core.NewBroadcaster(registry, logger)

	tracker := status.NewTracker()
	poller := status.NewPoller(tracker, broadcaster, cfg.StatusTargets, cfg.StatusPollInterval, logger)

	handlers := core.NewHandlers(registry, broadcaster, st, poller, logger)

	server, pollManager := transporthttp.NewServer(
		gateway, dispatcher, handlers, verifier, broadcaster, tracker, st, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		poller:          poller,
		pollManager:     pollManager,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and background loops, blocking until
// context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.poller.Run(ctx)
	go a.pollManager.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
