// Package aggregate produces the served datasets: it fans out to the source
// adapters, transforms and deduplicates their records, and memoizes the
// resulting collections behind the cache.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc"

	"github.com/i474232898/geodata-aggregation/internal/cache"
	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/history"
	"github.com/i474232898/geodata-aggregation/internal/observability"
	"github.com/i474232898/geodata-aggregation/internal/source"
	"github.com/i474232898/geodata-aggregation/internal/transform"
)

// StatisticsSource fetches municipality boundaries and indicator values.
type StatisticsSource interface {
	Name() string
	Boundaries(ctx context.Context, year int) ([]source.MunicipalityBoundary, error)
	Indicator(ctx context.Context, year int, indicator string) ([]source.IndicatorValue, error)
}

// Sources are the adapters behind each dataset. A nil adapter is skipped.
type Sources struct {
	Snow        source.Adapter[source.SnowObservation]
	FMIWeather  source.Adapter[source.WeatherObservation]
	RoadWeather source.Adapter[source.RoadWeatherObservation]
	Ice         source.Adapter[source.IceObservation]
	Traffic     source.Adapter[source.TrafficMessage]
	Trains      source.Adapter[source.TrainLocation]
	Transit     source.Adapter[source.TransitVehicle]
	Grid        source.Adapter[source.GridReading]
	Statistics  StatisticsSource
}

// Options tunes dataset production.
type Options struct {
	// TTLs overrides dataset lifetimes by dataset name.
	TTLs map[string]time.Duration
	// CellSize is the dedup grid cell in degrees.
	CellSize float64
	// GridAnchor is where national grid readings are placed.
	GridAnchor feature.Point
	Clock      clockwork.Clock
}

// DefaultGridAnchor sits near the geographic centre of Finland.
var DefaultGridAnchor = feature.Point{Lon: 25.75, Lat: 62.25}

// Service orchestrates sources, transforms, the cache and history.
type Service struct {
	sources  Sources
	cache    *cache.Cache
	recorder *history.Recorder
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewService creates a new Service. recorder may be nil.
func NewService(sources Sources, c *cache.Cache, recorder *history.Recorder, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if opts.CellSize <= 0 {
		opts.CellSize = feature.DefaultCellSize
	}
	if opts.GridAnchor == (feature.Point{}) {
		opts.GridAnchor = DefaultGridAnchor
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Service{
		sources:  sources,
		cache:    c,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

func (s *Service) ttl(spec DatasetSpec) time.Duration {
	if d, ok := s.opts.TTLs[spec.Name]; ok && d > 0 {
		return d
	}
	return spec.TTL
}

// TTL returns the effective cache lifetime of a static dataset.
func (s *Service) TTL(name string) (time.Duration, error) {
	spec, ok := lookupSpec(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}
	return s.ttl(spec), nil
}

// Dataset returns the cached or freshly computed collection of a static
// dataset. Only an unknown name is an error.
func (s *Service) Dataset(ctx context.Context, name string) (feature.Collection, error) {
	spec, producer, err := s.producer(name)
	if err != nil {
		return feature.Collection{}, err
	}
	return cache.GetOrCompute(ctx, s.cache, spec.Key, s.ttl(spec), producer), nil
}

// Compute runs a dataset's producer without the cache.
func (s *Service) Compute(ctx context.Context, name string) (feature.Collection, error) {
	_, producer, err := s.producer(name)
	if err != nil {
		return feature.Collection{}, err
	}
	return producer(ctx), nil
}

// Warm recomputes a dataset and writes it through the cache.
func (s *Service) Warm(ctx context.Context, name string) (feature.Collection, error) {
	spec, producer, err := s.producer(name)
	if err != nil {
		return feature.Collection{}, err
	}
	return cache.Refresh(ctx, s.cache, spec.Key, s.ttl(spec), producer), nil
}

func (s *Service) Snow(ctx context.Context) feature.Collection    { return s.must(ctx, DatasetSnow) }
func (s *Service) Weather(ctx context.Context) feature.Collection { return s.must(ctx, DatasetWeather) }
func (s *Service) Ice(ctx context.Context) feature.Collection     { return s.must(ctx, DatasetIce) }
func (s *Service) Traffic(ctx context.Context) feature.Collection { return s.must(ctx, DatasetTraffic) }
func (s *Service) Trains(ctx context.Context) feature.Collection  { return s.must(ctx, DatasetTrains) }
func (s *Service) Transit(ctx context.Context) feature.Collection { return s.must(ctx, DatasetTransit) }
func (s *Service) Grid(ctx context.Context) feature.Collection    { return s.must(ctx, DatasetGrid) }

func (s *Service) must(ctx context.Context, name string) feature.Collection {
	c, _ := s.Dataset(ctx, name)
	return c
}

func (s *Service) producer(name string) (DatasetSpec, func(context.Context) feature.Collection, error) {
	spec, ok := lookupSpec(name)
	if !ok {
		return DatasetSpec{}, nil, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}

	var compute func(context.Context) []slot
	switch name {
	case DatasetSnow:
		compute = func(ctx context.Context) []slot {
			return []slot{runSource(ctx, s, name, s.sources.Snow, transform.Snow)}
		}
	case DatasetWeather:
		compute = s.computeWeather
	case DatasetIce:
		compute = func(ctx context.Context) []slot {
			return []slot{runSource(ctx, s, name, s.sources.Ice, transform.Ice)}
		}
	case DatasetTraffic:
		compute = func(ctx context.Context) []slot {
			return []slot{runSource(ctx, s, name, s.sources.Traffic, transform.Traffic)}
		}
	case DatasetTrains:
		compute = func(ctx context.Context) []slot {
			return []slot{runSource(ctx, s, name, s.sources.Trains, transform.Trains)}
		}
	case DatasetTransit:
		compute = func(ctx context.Context) []slot {
			return []slot{runSource(ctx, s, name, s.sources.Transit, transform.Transit)}
		}
	case DatasetGrid:
		compute = func(ctx context.Context) []slot {
			grid := func(rs []source.GridReading) transform.Result { return transform.Grid(rs, s.opts.GridAnchor) }
			return []slot{runSource(ctx, s, name, s.sources.Grid, grid)}
		}
	}

	dedup := name == DatasetWeather
	return spec, func(ctx context.Context) feature.Collection {
		c := s.build(name, compute(ctx), dedup)
		s.recorder.Append(c)
		return c
	}, nil
}

// computeWeather queries FMI and road weather stations together. FMI is the
// authoritative source and comes first, so it wins shared grid cells.
func (s *Service) computeWeather(ctx context.Context) []slot {
	slots := make([]slot, 2)
	var wg conc.WaitGroup
	wg.Go(func() {
		slots[0] = runSource(ctx, s, DatasetWeather, s.sources.FMIWeather, transform.Weather)
	})
	wg.Go(func() {
		slots[1] = runSource(ctx, s, DatasetWeather, s.sources.RoadWeather, transform.RoadWeather)
	})
	wg.Wait()
	return slots
}

// build concatenates slots in priority order, deduplicates when asked and
// fills the collection metadata.
func (s *Service) build(dataset string, slots []slot, dedup bool) feature.Collection {
	c := feature.Empty(dataset, s.opts.Clock.Now().UTC())

	dropped := 0
	lists := make([][]feature.Feature, 0, len(slots))
	for _, sl := range slots {
		if sl.skipped {
			continue
		}
		lists = append(lists, sl.features)
		c.Meta.Sources = append(c.Meta.Sources, sl.status)
		dropped += sl.status.Dropped
		if sl.failed {
			c.Meta.Degraded = true
		}
	}

	features := feature.Concat(lists...)
	if dedup {
		var removed int
		features, removed = feature.Dedup(features, s.opts.CellSize)
		c.Meta.Deduplicated = removed
		if removed > 0 {
			s.metrics.FeaturesDeduplicated.WithLabelValues(dataset).Add(float64(removed))
		}
	}
	if features != nil {
		c.Features = features
	}
	c.Meta.Count = len(c.Features)

	if dropped > 0 {
		s.metrics.FeaturesDropped.WithLabelValues(dataset).Add(float64(dropped))
	}
	degraded := 0.0
	if c.Meta.Degraded {
		degraded = 1
		s.logger.Warn("dataset degraded", "dataset", dataset, "count", c.Meta.Count)
	}
	s.metrics.DatasetDegraded.WithLabelValues(dataset).Set(degraded)

	s.logger.Debug("dataset computed",
		"dataset", dataset,
		"count", c.Meta.Count,
		"dropped", dropped,
		"deduplicated", c.Meta.Deduplicated,
	)
	return c
}
