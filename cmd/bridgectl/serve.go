package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-router"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the login, callback and connection routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			app, err := NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := newHTTPServer(app)

			errc := make(chan error, 1)
			go func() {
				logger.Info("listening on %s", cfg.HTTP.Addr)
				if err := srv.Serve(cfg.HTTP.Addr); err != nil {
					errc <- err
				}
			}()

			select {
			case sig := <-exitSignal():
				logger.Info("received %s, shutting down", sig)
			case err := <-errc:
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Override the configured listen address")
	return cmd
}

func newHTTPServer(app *App) router.Server[*fiber.App] {
	engine := django.New(app.Config.HTTP.Views, ".html")
	engine.AddFuncMap(bridge.TemplateHelpers(app.Registry, app.Config.LocaleMap()))

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	r := srv.Router()
	r.Use(app.Controller.ResumeHandoff())
	r.Get("/healthz", func(ctx router.Context) error {
		if err := app.DB.PingContext(ctx.Context()); err != nil {
			return ctx.JSON(fiber.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		}
		return ctx.JSON(fiber.StatusOK, map[string]any{"status": "ok"})
	})
	app.Controller.RegisterRoutes(bridgeRoutes(r, app.Registry.Prefix()))

	return srv
}

// bridgeRoutes mounts the bridge routes under the site prefix, the same
// prefix the registry puts in the absolute URLs handed to providers.
// ResumeHandoff stays on the root router since handoff targets are site pages.
func bridgeRoutes(r router.Router[*fiber.App], prefix string) bridge.RouteRegistrar {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return r
	}
	return r.Group(prefix)
}

func exitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
