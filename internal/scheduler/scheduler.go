package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sourcegraph/conc"

	"github.com/i474232898/geodata-aggregation/internal/feature"
)

const (
	defaultInterval = 5 * time.Minute
	defaultTimeout  = 30 * time.Second
)

// Warmer recomputes one dataset and writes it through the cache.
type Warmer interface {
	Warm(ctx context.Context, name string) (feature.Collection, error)
}

// Scheduler periodically warms the cache for the configured datasets.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    Warmer
	datasets  []string
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. A zero interval or timeout uses the default.
func New(datasets []string, interval, timeout time.Duration, warmer Warmer, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		warmer:    warmer,
		datasets:  datasets,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the warm job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.datasets) == 0 {
		s.logger.Info("scheduler: no datasets configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval, "datasets", s.datasets)
	return nil
}

// RunOnce warms every dataset in parallel, each under its own timeout.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()
	s.logger.Debug("scheduler: running warm job")

	var wg conc.WaitGroup
	for _, name := range s.datasets {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			c, err := s.warmer.Warm(ctx, name)
			if err != nil {
				s.logger.Warn("scheduler: warm failed", "dataset", name, "error", err)
				return
			}
			s.logger.Debug("scheduler: warmed",
				"dataset", name,
				"count", c.Meta.Count,
				"degraded", c.Meta.Degraded,
			)
		})
	}
	wg.Wait()

	s.logger.Info("scheduler: completed warm job", "datasets", len(s.datasets), "elapsed", time.Since(start))
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
