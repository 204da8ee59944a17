package http

import (
	"context"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/auth"
	"github.com/werchat/werchat/internal/config"
	"github.com/werchat/werchat/internal/core"
	"github.com/werchat/werchat/internal/session"
	"github.com/werchat/werchat/internal/store/jsonfile"
)

// testEnv bundles a running server handler plus the pieces tests poke at
// directly.
type testEnv struct {
	server   *stdhttp.Server
	registry *core.Registry
	players  *core.PlayerStateStore
	hub      *session.Hub
	auth     *auth.Service
}

// newTestEnv builds a full server against a temp-dir JSON store, with the
// stock channel set loaded and admin login enabled.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	disabledLogger := zerolog.New(nil)

	st, err := jsonfile.New(t.TempDir(), &disabledLogger)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	registry := core.NewRegistry(st, &disabledLogger, core.RegistryOptions{
		SaveDebounce: time.Hour, // keep the debounce out of the test's way
	})
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}

	players := core.NewPlayerStateStore(st, &disabledLogger, time.Hour)
	hub := session.NewHub(&disabledLogger)

	router := core.NewRouter(registry, players, core.RouterProviders{
		Sessions:    hub,
		Permissions: core.BasicPermissions{},
		Worlds:      hub,
	}, core.RouterSettings{AutoJoinDefault: true}, &disabledLogger)

	authService, err := auth.NewService(&auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}, "admin", "password123")
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second

	server := NewServer(Deps{
		Registry: registry,
		Players:  players,
		Router:   router,
		Hub:      hub,
		Auth:     authService,
		Log:      &disabledLogger,
	}, cfg)

	return &testEnv{
		server:   server,
		registry: registry,
		players:  players,
		hub:      hub,
		auth:     authService,
	}
}

// login returns a bearer token for the test admin.
func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	token, err := e.auth.Login("admin", "password123")
	if err != nil {
		t.Fatalf("failed to log in: %v", err)
	}
	return token
}
