package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv("CONFIG_FILE")); err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and assembles the application.
func setup(ctx context.Context, configPath string) (*app.Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise application: %w", err)
	}
	return application, nil
}

func run(ctx context.Context, configPath string) error {
	application, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			application.Log.Error().Err(err).Msg("error releasing resources")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		application.Log.Info().Str("addr", application.Config.AppPort).Msg("starting server")
		if err := application.Fiber.Listen(application.Config.AppPort); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		application.ConsumeEvents(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		application.Log.Info().Msg("shutting down server")
		if err := application.Fiber.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	application.Log.Info().Msg("server gracefully stopped")
	return nil
}
