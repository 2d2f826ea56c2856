package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/geodata-aggregation/internal/aggregate"
	"github.com/i474232898/geodata-aggregation/internal/cache"
	"github.com/i474232898/geodata-aggregation/internal/history"
	"github.com/i474232898/geodata-aggregation/internal/source/providers"
)

var validate = validator.New()

// ProviderConfig overrides one provider's built-in settings.
type ProviderConfig struct {
	BaseURL       string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
	RatePerSecond float64       `yaml:"rate_per_second" validate:"gte=0"`
	Disabled      bool          `yaml:"disabled"`
}

type datasetConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// fileConfig is the optional YAML document named by CONFIG_FILE.
type fileConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Datasets  map[string]datasetConfig  `yaml:"datasets"`
}

type AppConfig struct {
	HTTPAddr        string        `validate:"required"`
	LogLevel        string        `validate:"required"`
	LogFormat       string        `validate:"oneof=json text"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	// HTTPTimeout bounds every single outbound provider call.
	HTTPTimeout time.Duration `validate:"gt=0"`
	UserAgent   string        `validate:"required"`

	CacheBackend          string `validate:"omitempty,oneof=redis badger memory disabled"`
	RedisURL              string
	BadgerPath            string
	CacheDegradedTTL      time.Duration `validate:"gt=0"`
	CacheMaxPendingWrites int           `validate:"gte=1"`

	WarmInterval time.Duration `validate:"gt=0"`
	WarmTimeout  time.Duration `validate:"gt=0"`
	// WarmDatasets is empty when every static dataset should be warmed.
	WarmDatasets []string

	FingridAPIKey string

	// In-memory history retention.
	HistoryMaxEntries int           `validate:"gte=0"` // max batches per dataset (0 = unlimited)
	HistoryMaxAge     time.Duration `validate:"gte=0"` // max age of batches (0 = unlimited)

	Influx            history.InfluxConfig
	KafkaBrokers      []string
	KafkaHistoryTopic string

	Providers   map[string]ProviderConfig `validate:"dive"`
	DatasetTTLs map[string]time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found or error loading it", "error", err)
	}
	cfg := &AppConfig{
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		LogFormat:         getenvDefault("LOG_FORMAT", "json"),
		UserAgent:         getenvDefault("USER_AGENT", "geodata-aggregation/1.0"),
		CacheBackend:      strings.ToLower(os.Getenv("CACHE_BACKEND")),
		RedisURL:          os.Getenv("REDIS_URL"),
		BadgerPath:        os.Getenv("BADGER_PATH"),
		WarmDatasets:      splitList(os.Getenv("WARM_DATASETS")),
		FingridAPIKey:     os.Getenv("FINGRID_API_KEY"),
		HistoryMaxEntries: getenvInt("HISTORY_MAX_ENTRIES", 96), // roughly 8h at 5-minute warm intervals
		Influx: history.InfluxConfig{
			URL:    os.Getenv("INFLUXDB_URL"),
			Token:  os.Getenv("INFLUXDB_TOKEN"),
			Org:    os.Getenv("INFLUXDB_ORG"),
			Bucket: os.Getenv("INFLUXDB_BUCKET"),
		},
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaHistoryTopic:     getenvDefault("KAFKA_HISTORY_TOPIC", "geodata.history"),
		CacheMaxPendingWrites: getenvInt("CACHE_MAX_PENDING_WRITES", 32),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
		{"HTTP_TIMEOUT", "8s", &cfg.HTTPTimeout},
		{"CACHE_DEGRADED_TTL", "30s", &cfg.CacheDegradedTTL},
		{"WARM_INTERVAL", "5m", &cfg.WarmInterval},
		{"WARM_TIMEOUT", "30s", &cfg.WarmTimeout},
		{"HISTORY_MAX_AGE", "24h", &cfg.HistoryMaxAge},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	known := providers.DefaultSettings()
	for name := range fc.Providers {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("config file %s: unknown provider %q", path, name)
		}
	}
	c.Providers = fc.Providers

	served := make(map[string]struct{}, len(aggregate.StaticDatasets)+1)
	for _, name := range append(aggregate.DatasetNames(), aggregate.DatasetStatistics) {
		served[name] = struct{}{}
	}
	c.DatasetTTLs = make(map[string]time.Duration, len(fc.Datasets))
	for name, d := range fc.Datasets {
		if _, ok := served[name]; !ok {
			return fmt.Errorf("config file %s: unknown dataset %q", path, name)
		}
		if d.TTL < 0 {
			return fmt.Errorf("config file %s: negative ttl for dataset %q", path, name)
		}
		c.DatasetTTLs[name] = d.TTL
	}
	return nil
}

// ProviderSettings returns the effective settings of every provider.
func (c *AppConfig) ProviderSettings() map[string]providers.Settings {
	settings := providers.DefaultSettings()
	for name, s := range settings {
		s.Timeout = c.HTTPTimeout
		s.UserAgent = c.UserAgent
		if name == providers.NameFingrid {
			s.APIKey = c.FingridAPIKey
		}

		if o, ok := c.Providers[name]; ok {
			if o.BaseURL != "" {
				s.BaseURL = o.BaseURL
			}
			if o.Timeout > 0 {
				s.Timeout = o.Timeout
			}
			if o.RatePerSecond > 0 {
				s.RatePerSecond = o.RatePerSecond
			}
			s.Disabled = o.Disabled
		}
		settings[name] = s
	}
	return settings
}

// CacheBackendConfig maps the cache settings onto a backend selection. Missing
// credentials resolve to the disabled backend at construction.
func (c *AppConfig) CacheBackendConfig() cache.BackendConfig {
	return cache.BackendConfig{
		Kind:       c.CacheBackend,
		RedisURL:   c.RedisURL,
		BadgerPath: c.BadgerPath,
	}
}

// CacheOptions returns the facade options.
func (c *AppConfig) CacheOptions() cache.Options {
	opts := cache.DefaultOptions()
	opts.DegradedTTL = c.CacheDegradedTTL
	opts.MaxPendingWrites = int64(c.CacheMaxPendingWrites)
	return opts
}

// WarmList resolves WarmDatasets against the served names.
func (c *AppConfig) WarmList(served []string) ([]string, error) {
	if len(c.WarmDatasets) == 0 {
		return served, nil
	}
	allowed := make(map[string]struct{}, len(served))
	for _, n := range served {
		allowed[n] = struct{}{}
	}
	out := make([]string, 0, len(c.WarmDatasets))
	for _, n := range c.WarmDatasets {
		if _, ok := allowed[n]; !ok {
			return nil, fmt.Errorf("invalid WARM_DATASETS: unknown dataset %q", n)
		}
		out = append(out, n)
	}
	return out, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
