// Package history appends freshly computed collections to secondary stores.
// Appends run detached from the request path and their failures are only
// logged and counted.
package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/observability"
)

// ErrNotFound is returned when no history exists for a dataset or range.
var ErrNotFound = errors.New("no history for dataset")

// Batch is one recorded computation of a dataset.
type Batch struct {
	ID         uuid.UUID         `json:"id"`
	Dataset    string            `json:"dataset"`
	RecordedAt time.Time         `json:"recordedAt"`
	Degraded   bool              `json:"degraded"`
	Features   []feature.Feature `json:"features"`
}

// Sink stores batches.
type Sink interface {
	Append(ctx context.Context, b Batch) error
	Name() string
}

// RecorderOptions bounds detached appends.
type RecorderOptions struct {
	MaxPending int64
	Timeout    time.Duration
	Clock      clockwork.Clock
}

// Recorder fans every batch out to all sinks on detached goroutines.
type Recorder struct {
	sinks   []Sink
	sem     *semaphore.Weighted
	pending sync.WaitGroup
	timeout time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewRecorder(sinks []Sink, opts RecorderOptions, logger *slog.Logger, metrics *observability.Metrics) *Recorder {
	if opts.MaxPending <= 0 {
		opts.MaxPending = 16
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Recorder{
		sinks:   sinks,
		sem:     semaphore.NewWeighted(opts.MaxPending),
		timeout: opts.Timeout,
		clock:   opts.Clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Append records c without blocking the caller. Empty collections are not
// recorded.
func (r *Recorder) Append(c feature.Collection) {
	if r == nil || len(r.sinks) == 0 || len(c.Features) == 0 {
		return
	}

	b := Batch{
		ID:         uuid.New(),
		Dataset:    c.Meta.Dataset,
		RecordedAt: r.clock.Now().UTC(),
		Degraded:   c.Meta.Degraded,
		Features:   c.Features,
	}

	for _, sink := range r.sinks {
		if !r.sem.TryAcquire(1) {
			r.metrics.HistoryAppends.WithLabelValues(sink.Name(), "skipped").Inc()
			r.logger.Warn("too many pending history appends; skipping", "sink", sink.Name(), "dataset", b.Dataset)
			continue
		}
		r.pending.Add(1)
		go func() {
			defer r.pending.Done()
			defer r.sem.Release(1)

			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			if err := sink.Append(ctx, b); err != nil {
				r.metrics.HistoryAppends.WithLabelValues(sink.Name(), "error").Inc()
				r.logger.Warn("history append failed", "sink", sink.Name(), "dataset", b.Dataset, "batch", b.ID, "error", err)
				return
			}
			r.metrics.HistoryAppends.WithLabelValues(sink.Name(), "ok").Inc()
		}()
	}
}

// Wait blocks until pending appends finish.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.pending.Wait()
}

// Close waits for pending appends and closes sinks that hold connections.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.Wait()
	var errs []error
	for _, sink := range r.sinks {
		if c, ok := sink.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
