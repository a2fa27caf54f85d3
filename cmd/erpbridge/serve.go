package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexedwards/scs/pgxstore"
	"github.com/alexedwards/scs/v2"
	"github.com/erpbridge/erpbridge/internal/config"
	httpapp "github.com/erpbridge/erpbridge/internal/http"
	"github.com/erpbridge/erpbridge/internal/http/handlers"
	"github.com/erpbridge/erpbridge/internal/metrics"
	"github.com/spf13/cobra"
)

const sessionCookieName = "erpbridge_session"

var serveCmd = structuredLog(&cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
})

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.LoadOptionalDB()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{AllowMemoryStore: true, VerifyIdentity: true})
	if err != nil {
		return err
	}
	defer a.Close()

	sessions := newSessionManager(a)
	if store, ok := sessions.Store.(*pgxstore.PostgresStore); ok {
		defer store.StopCleanup()
	}

	var metricsErr <-chan error
	if cfg.MetricsEnabled() {
		_, metricsErr = metrics.StartServer(ctx, cfg.MetricsAddr, a.Ping)
	}

	srv := httpapp.NewEchoServer(&handlers.Handlers{
		Registry:    a.registry,
		Auth:        a.auth,
		Data:        a.data,
		Modules:     a.resolver,
		Credentials: a.store,
		Sessions:    sessions,
		Ping:        a.Ping,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.HTTPAddr, "providers", a.registry.ListSupported())
		errCh <- srv.Serve(ctx, cfg.HTTPAddr)
	}()

	select {
	case err := <-metricsErr:
		stop()
		<-errCh
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newSessionManager keeps OAuth state in Postgres when a pool is available.
func newSessionManager(a *app) *scs.SessionManager {
	sessions := scs.New()
	sessions.Lifetime = a.cfg.SessionLifetime
	sessions.Cookie.Name = sessionCookieName
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.SameSite = http.SameSiteLaxMode
	sessions.Cookie.Secure = a.cfg.CookieSecure
	if a.pool != nil {
		sessions.Store = pgxstore.New(a.pool)
	}
	return sessions
}
