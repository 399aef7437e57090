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

	"github.com/avramelo/spinstats/internal/auth"
	"github.com/avramelo/spinstats/internal/server"
	"github.com/avramelo/spinstats/internal/shared"
	"github.com/avramelo/spinstats/internal/tasks"
	"github.com/avramelo/spinstats/internal/web"
	"github.com/urfave/cli/v3"
)

// Serve wires the session manager, playlist engine, and page handlers into a
// router and runs the HTTP server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.resolveConfig(cmd.String("config"))
	if host := cmd.String("host"); host != "" {
		config.Server.Host = host
	}
	if port := cmd.Int("port"); port != 0 {
		config.Server.Port = port
	}

	manager, err := auth.NewManager(auth.ManagerOpts{
		Spotify:  config.Credentials.Spotify,
		Profiles: r.service,
		Logger:   r.logger,
	})
	if err != nil {
		return fmt.Errorf("run `spinstats setup config` and fill in your Spotify credentials: %w", err)
	}

	sessions := server.NewSessions(config.Session.Secret, config.Session.CookieName)
	engine := tasks.NewPlaylistEngine(r.service, r.logger)

	pages, err := web.NewHandlers(web.HandlerOpts{
		Manager:  manager,
		Sessions: sessions,
		Service:  r.service,
		Engine:   engine,
		Logger:   r.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize page handlers: %w", err)
	}

	router := server.NewBasicRouter()
	router.Use(server.LoggingMiddleware(r.logger))
	router.Handler(server.NewOAuthHandler(manager, sessions, r.logger))
	pages.Register(router)

	srv := &http.Server{
		Addr:              config.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("serving", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		r.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// resolveConfig prefers the config file at path over the runner's config.
// An absent file is fine; a file that exists but cannot be parsed is skipped
// with a warning so the user learns why their credentials are not applied.
func (r *Runner) resolveConfig(path string) *shared.Config {
	if path == "" {
		return r.config
	}
	if _, err := os.Stat(path); err != nil {
		return r.config
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("ignoring config file", "path", path, "err", err)
		return r.config
	}
	return config
}

// SetupConfig writes the embedded example configuration to disk.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	return r.writePlain("✓ Wrote %s, fill in your Spotify credentials\n", path)
}
