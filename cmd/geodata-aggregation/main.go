package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/i474232898/geodata-aggregation/internal/aggregate"
	"github.com/i474232898/geodata-aggregation/internal/cache"
	"github.com/i474232898/geodata-aggregation/internal/config"
	"github.com/i474232898/geodata-aggregation/internal/history"
	"github.com/i474232898/geodata-aggregation/internal/observability"
	"github.com/i474232898/geodata-aggregation/internal/source/providers"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "geodata-aggregation",
		Short:        "Aggregates Finnish open geodata into classified feature collections",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newFetchCmd())
	return root
}

// application holds the wired core shared by the commands.
type application struct {
	cfg      *config.AppConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	cache    *cache.Cache
	recorder *history.Recorder
	memory   *history.MemorySink
	service  *aggregate.Service
}

func buildApplication(ctx context.Context, reg prometheus.Registerer) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics(reg)

	// Shared HTTP client for outbound provider calls; every client bounds
	// its own attempts with the configured timeout.
	httpClient := &http.Client{}

	clients := make(map[string]*providers.Client)
	for name, s := range cfg.ProviderSettings() {
		clients[name] = providers.NewClient(httpClient, s, logger)
	}

	sources := aggregate.Sources{
		Snow:        providers.NewFMISnowProvider(clients[providers.NameFMI]),
		FMIWeather:  providers.NewFMIWeatherProvider(clients[providers.NameFMI]),
		RoadWeather: providers.NewRoadWeatherProvider(clients[providers.NameDigitrafficRoad]),
		Ice:         providers.NewIceProvider(clients[providers.NameSYKE]),
		Traffic:     providers.NewTrafficProvider(clients[providers.NameDigitrafficRoad], providers.TrafficSituationTypes),
		Trains:      providers.NewTrainProvider(clients[providers.NameDigitrafficRail]),
		Transit:     providers.NewTransitProvider(clients[providers.NameFoli]),
		Grid:        providers.NewGridProvider(clients[providers.NameFingrid], providers.DefaultGridDatasets),
		Statistics: providers.NewStatisticsProvider(
			clients[providers.NameStatFinGeo],
			clients[providers.NameStatFinData],
			providers.DefaultStatisticsTable,
		),
	}

	backend := cache.NewBackend(ctx, cfg.CacheBackendConfig(), logger)
	c := cache.New(backend, cfg.CacheOptions(), logger, metrics)
	logger.Info("cache configured", "backend", c.Backend())

	memory := history.NewMemorySink(cfg.HistoryMaxEntries, cfg.HistoryMaxAge, nil)
	sinks := []history.Sink{memory}
	if cfg.Influx.Enabled() {
		sinks = append(sinks, history.NewInfluxSink(cfg.Influx))
		logger.Info("history sink enabled", "sink", "influxdb", "bucket", cfg.Influx.Bucket)
	}
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, history.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaHistoryTopic))
		logger.Info("history sink enabled", "sink", "kafka", "topic", cfg.KafkaHistoryTopic)
	}
	recorder := history.NewRecorder(sinks, history.RecorderOptions{}, logger, metrics)

	svc := aggregate.NewService(sources, c, recorder, aggregate.Options{TTLs: cfg.DatasetTTLs}, logger, metrics)

	return &application{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		cache:    c,
		recorder: recorder,
		memory:   memory,
		service:  svc,
	}, nil
}

// close drains detached work and releases the backends.
func (a *application) close() error {
	return errors.Join(a.recorder.Close(), a.cache.Close())
}
