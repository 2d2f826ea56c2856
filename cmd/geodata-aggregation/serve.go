package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/i474232898/geodata-aggregation/internal/aggregate"
	httpapi "github.com/i474232898/geodata-aggregation/internal/api/http"
	"github.com/i474232898/geodata-aggregation/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the datasets over HTTP and keep the cache warm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	app, err := buildApplication(ctx, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.close(); err != nil {
			app.logger.Error("error during close", "error", err)
		}
	}()
	cfg := app.cfg

	warm, err := cfg.WarmList(aggregate.DatasetNames())
	if err != nil {
		return err
	}

	// Scheduler that periodically recomputes datasets into the cache.
	sched := scheduler.New(warm, cfg.WarmInterval, cfg.WarmTimeout, app.service, app.logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	server := fiber.New(fiber.Config{
		AppName:               "geodata-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          httpapi.NewErrorHandler(app.logger),
	})

	// Global middleware
	server.Use(logger.New())
	server.Use(recover.New())

	httpapi.RegisterRoutes(server, httpapi.Deps{
		Service:        app.service,
		History:        app.memory,
		Gatherer:       prometheus.DefaultGatherer,
		Datasets:       aggregate.DatasetNames(),
		DegradedMaxAge: cfg.CacheDegradedTTL,
	})

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- server.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		app.logger.Error("error during shutdown", "error", err)
	}
	return nil
}
