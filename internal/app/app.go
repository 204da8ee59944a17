// Package app wires configuration, storage, the chat core and the HTTP
// transport into a runnable server.
package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/auth"
	"github.com/werchat/werchat/internal/config"
	"github.com/werchat/werchat/internal/core"
	"github.com/werchat/werchat/internal/session"
	"github.com/werchat/werchat/internal/store"
	"github.com/werchat/werchat/internal/store/jsonfile"
	"github.com/werchat/werchat/internal/store/sqlite"
	transporthttp "github.com/werchat/werchat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	registry        *core.Registry
	players         *core.PlayerStateStore
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration. Persisted
// channel and player data is loaded before the server is returned.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("storage", cfg.Storage).Str("data_dir", cfg.DataDir).Msg("storage initialized")

	registry := core.NewRegistry(st, logger, core.RegistryOptions{
		SaveDebounce:       cfg.SaveDebounce,
		DefaultChannelName: cfg.DefaultChannel,
	})
	players := core.NewPlayerStateStore(st, logger, cfg.SaveDebounce)
	registry.SetNameResolver(players.KnownName)

	ctx := context.Background()
	if err := players.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to load player data, keeping previous state")
	}
	if err := registry.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to load channel data, keeping previous state")
	}

	hub := session.NewHub(logger)
	router := core.NewRouter(registry, players, core.RouterProviders{
		Sessions:    hub,
		Permissions: core.BasicPermissions{},
		Worlds:      hub,
	}, routerSettings(cfg), logger)

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   "werchat",
		Audience: "werchat",
		TTL:      24 * time.Hour,
	}
	authService, err := auth.NewService(jwtConfig, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}
	if cfg.AdminPassword == "" {
		logger.Warn().Msg("admin_password is empty, admin API login is disabled")
	}

	server := transporthttp.NewServer(transporthttp.Deps{
		Registry: registry,
		Players:  players,
		Router:   router,
		Hub:      hub,
		Auth:     authService,
		Log:      logger,
	}, cfg)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		registry:        registry,
		players:         players,
		store:           st,
		log:             logger,
	}, nil
}

func openStore(cfg config.Config, logger *zerolog.Logger) (store.Store, error) {
	switch cfg.Storage {
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return sqlite.New(filepath.Join(cfg.DataDir, "werchat.db"), logger)
	case "", "json":
		return jsonfile.New(cfg.DataDir, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func routerSettings(cfg config.Config) core.RouterSettings {
	return core.RouterSettings{
		EnforcePermissions: cfg.EnforceChannelPermissions,
		AutoJoinDefault:    cfg.AutoJoinDefault,
		ShowJoinLeave:      cfg.ShowJoinLeaveMessages,
		Cooldown: core.CooldownSettings{
			Enabled:  cfg.Cooldown.Enabled,
			Duration: time.Duration(cfg.Cooldown.Seconds) * time.Second,
			Message:  cfg.Cooldown.Message,
		},
		WordFilter: core.WordFilterSettings{
			Enabled:        cfg.WordFilter.Enabled,
			Mode:           cfg.WordFilter.Mode,
			Words:          cfg.WordFilter.Words,
			Replacement:    cfg.WordFilter.Replacement,
			NotifyPlayer:   cfg.WordFilter.NotifyPlayer,
			WarningMessage: cfg.WordFilter.WarningMessage,
		},
		Mentions: core.MentionSettings{
			Enabled: cfg.Mentions.Enabled,
			Color:   cfg.Mentions.Color,
		},
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	a.log.Info().Str("addr", a.server.Addr).Msg("server listening")

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

// cleanup flushes pending saves and closes the store.
func (a *App) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.registry.Close(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to flush channel data")
	}
	if err := a.players.Close(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to flush player data")
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}
