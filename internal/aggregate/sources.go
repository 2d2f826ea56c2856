package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/source"
	"github.com/i474232898/geodata-aggregation/internal/transform"
)

// Coarse source errors exposed in collection metadata. Upstream error text
// stays in the logs.
const (
	statusUnavailable = "unavailable"
	statusPartial     = "partial"
)

var errSourcePanic = errors.New("source panicked")

// slot is one source's contribution to a dataset, stored at its priority index.
type slot struct {
	status   feature.SourceStatus
	features []feature.Feature
	failed   bool
	skipped  bool
}

// runSource fetches one adapter and transforms its records. It never fails:
// errors and panics become a failed slot carrying whatever records arrived.
func runSource[T any](ctx context.Context, s *Service, dataset string, a source.Adapter[T], tf func([]T) transform.Result) (out slot) {
	if a == nil {
		return slot{skipped: true}
	}
	name := a.Name()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("source panicked", "dataset", dataset, "source", name, "panic", r)
			s.metrics.SourceFetches.WithLabelValues(name, "error").Inc()
			out = slot{
				status: feature.SourceStatus{Name: name, Error: statusUnavailable},
				failed: true,
			}
		}
	}()

	start := time.Now()
	records, err := a.Fetch(ctx)
	res := tf(records)
	status, failed := s.observe(dataset, name, start, len(records), err)
	status.Features = len(res.Features)
	status.Dropped = res.Dropped

	return slot{status: status, features: res.Features, failed: failed}
}

// guardFetch calls fetch and turns a panic into an error.
func guardFetch[T any](fetch func() ([]T, error)) (records []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("%w: %v", errSourcePanic, r)
		}
	}()
	return fetch()
}

// observe records fetch metrics and maps err to a coarse status.
func (s *Service) observe(dataset, name string, start time.Time, records int, err error) (feature.SourceStatus, bool) {
	s.metrics.SourceDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	status := feature.SourceStatus{Name: name}
	switch {
	case err == nil:
		s.metrics.SourceFetches.WithLabelValues(name, "ok").Inc()
		return status, false
	case records > 0:
		s.metrics.SourceFetches.WithLabelValues(name, "partial").Inc()
		status.Error = statusPartial
	default:
		s.metrics.SourceFetches.WithLabelValues(name, "error").Inc()
		status.Error = statusUnavailable
	}
	s.logger.Warn("source fetch failed",
		"dataset", dataset,
		"source", name,
		"records", records,
		"error", err,
	)
	return status, true
}
