package aggregate

import (
	"context"
	"time"

	"github.com/i474232898/geodata-aggregation/internal/cache"
	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/source"
	"github.com/i474232898/geodata-aggregation/internal/transform"
)

// boundarySet is the cached boundary geometry of one statistics year.
type boundarySet struct {
	Year       int                           `json:"year"`
	Boundaries []source.MunicipalityBoundary `json:"boundaries"`
	Status     feature.SourceStatus          `json:"status"`
	Failed     bool                          `json:"failed"`
}

func (b boundarySet) Degraded() bool { return b.Failed }

// MunicipalitiesTTL returns the effective cache lifetime of statistics
// collections.
func (s *Service) MunicipalitiesTTL() time.Duration {
	if d, ok := s.opts.TTLs[DatasetStatistics]; ok && d > 0 {
		return d
	}
	return StatisticsTTL
}

// Municipalities returns the classified indicator values of one year,
// placed on municipality points.
func (s *Service) Municipalities(ctx context.Context, year int, indicator string) feature.Collection {
	return cache.GetOrCompute(ctx, s.cache, StatisticsKey(year, indicator), s.MunicipalitiesTTL(), func(ctx context.Context) feature.Collection {
		c := s.computeMunicipalities(ctx, year, indicator)
		s.recorder.Append(c)
		return c
	})
}

// ComputeMunicipalities runs the statistics producer without caching the
// collection itself. Boundaries still go through the cache.
func (s *Service) ComputeMunicipalities(ctx context.Context, year int, indicator string) feature.Collection {
	return s.computeMunicipalities(ctx, year, indicator)
}

func (s *Service) boundaries(ctx context.Context, year int) boundarySet {
	return cache.GetOrCompute(ctx, s.cache, BoundariesKey(year), BoundariesTTL, func(ctx context.Context) boundarySet {
		src := s.sources.Statistics
		start := time.Now()
		bs, err := guardFetch(func() ([]source.MunicipalityBoundary, error) {
			return src.Boundaries(ctx, year)
		})
		status, failed := s.observe(DatasetStatistics, src.Name()+" boundaries", start, len(bs), err)
		status.Features = len(bs)
		return boundarySet{Year: year, Boundaries: bs, Status: status, Failed: failed}
	})
}

func (s *Service) computeMunicipalities(ctx context.Context, year int, indicator string) feature.Collection {
	src := s.sources.Statistics
	if src == nil {
		return s.build(DatasetStatistics, nil, false)
	}

	bs := s.boundaries(ctx, year)

	start := time.Now()
	values, err := guardFetch(func() ([]source.IndicatorValue, error) {
		return src.Indicator(ctx, year, indicator)
	})
	status, failed := s.observe(DatasetStatistics, src.Name(), start, len(values), err)

	ref := transform.IndicatorReference(values)
	classifier, cerr := feature.NewClassifier(ref)
	if cerr != nil {
		// Nothing to rank against: emit an empty, degraded collection.
		s.logger.Warn("no reference values for indicator",
			"year", year,
			"indicator", indicator,
			"values", len(values),
		)
		if status.Error == "" {
			status.Error = statusUnavailable
		}
		return s.build(DatasetStatistics, []slot{
			{status: bs.Status, failed: bs.Failed},
			{status: status, failed: true},
		}, false)
	}

	res := transform.Municipalities(bs.Boundaries, values, classifier, indicator)
	status.Features = len(res.Features)
	status.Dropped = res.Dropped

	return s.build(DatasetStatistics, []slot{
		{status: bs.Status, failed: bs.Failed},
		{status: status, features: res.Features, failed: failed},
	}, false)
}
