package aggregate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/geodata-aggregation/internal/cache"
	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/history"
	"github.com/i474232898/geodata-aggregation/internal/observability"
	"github.com/i474232898/geodata-aggregation/internal/source"
)

var testTime = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

type fakeAdapter[T any] struct {
	name    string
	records []T
	err     error
	panics  bool
	calls   atomic.Int32
}

func (a *fakeAdapter[T]) Name() string   { return a.name }
func (a *fakeAdapter[T]) Prefix() string { return "" }

func (a *fakeAdapter[T]) Fetch(context.Context) ([]T, error) {
	a.calls.Add(1)
	if a.panics {
		panic("unexpected payload")
	}
	return a.records, a.err
}

type fakeStatistics struct {
	boundaries    []source.MunicipalityBoundary
	values        []source.IndicatorValue
	err           error
	panics        string
	boundaryCalls atomic.Int32
}

func (s *fakeStatistics) Name() string { return "statfin" }

func (s *fakeStatistics) Boundaries(context.Context, int) ([]source.MunicipalityBoundary, error) {
	s.boundaryCalls.Add(1)
	if s.panics == "boundaries" {
		panic("unexpected feature collection")
	}
	return s.boundaries, nil
}

func (s *fakeStatistics) Indicator(context.Context, int, string) ([]source.IndicatorValue, error) {
	if s.panics == "indicator" {
		panic("unexpected json-stat shape")
	}
	return s.values, s.err
}

type fixture struct {
	svc     *Service
	cache   *cache.Cache
	sink    *history.MemorySink
	rec     *history.Recorder
	metrics *observability.Metrics
}

func newFixture(t *testing.T, sources Sources) fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testTime)
	m := observability.NewMetricsForTesting()
	logger := observability.NopLogger()

	c := cache.New(cache.NewMemoryBackend(clock), cache.DefaultOptions(), logger, m)
	sink := history.NewMemorySink(100, 0, clock)
	rec := history.NewRecorder([]history.Sink{sink}, history.RecorderOptions{Clock: clock}, logger, m)
	svc := NewService(sources, c, rec, Options{Clock: clock}, logger, m)

	t.Cleanup(func() {
		c.Wait()
		rec.Wait()
	})
	return fixture{svc: svc, cache: c, sink: sink, rec: rec, metrics: m}
}

func TestService_AllSourcesFailingYieldsEmptyDegraded(t *testing.T) {
	fmi := &fakeAdapter[source.WeatherObservation]{name: "fmi", err: errors.New("503 from upstream")}
	road := &fakeAdapter[source.RoadWeatherObservation]{name: "digitraffic", err: errors.New("timeout")}
	fx := newFixture(t, Sources{FMIWeather: fmi, RoadWeather: road})

	c := fx.svc.Weather(context.Background())

	require.NotNil(t, c.Features)
	assert.Empty(t, c.Features)
	assert.True(t, c.Meta.Degraded)
	assert.Equal(t, DatasetWeather, c.Meta.Dataset)
	require.Len(t, c.Meta.Sources, 2)
	assert.Equal(t, "fmi", c.Meta.Sources[0].Name)
	assert.Equal(t, statusUnavailable, c.Meta.Sources[0].Error)
	assert.Equal(t, statusUnavailable, c.Meta.Sources[1].Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.DatasetDegraded.WithLabelValues(DatasetWeather)))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.SourceFetches.WithLabelValues("fmi", "error")))
}

func TestService_WeatherDedupKeepsFMI(t *testing.T) {
	fmi := &fakeAdapter[source.WeatherObservation]{name: "fmi", records: []source.WeatherObservation{
		{StationID: "100971", StationName: "Helsinki Kaisaniemi", Lat: f(60.17), Lon: f(24.94), TemperatureC: f(-3), Time: testTime},
	}}
	road := &fakeAdapter[source.RoadWeatherObservation]{name: "digitraffic", records: []source.RoadWeatherObservation{
		{StationID: "1012", Lat: f(60.171), Lon: f(24.941), AirTempC: f(-2), Time: testTime},
		{StationID: "1013", Lat: f(61.5), Lon: f(23.76), AirTempC: f(-4), Time: testTime},
	}}
	fx := newFixture(t, Sources{FMIWeather: fmi, RoadWeather: road})

	c := fx.svc.Weather(context.Background())

	require.Len(t, c.Features, 2)
	assert.Equal(t, source.PrefixFMIWeather+"100971", c.Features[0].ID)
	assert.Equal(t, source.PrefixRoadWeather+"1013", c.Features[1].ID)
	assert.Equal(t, 1, c.Meta.Deduplicated)
	assert.Equal(t, 2, c.Meta.Count)
	assert.False(t, c.Meta.Degraded)
}

func TestService_PartialSourceKeepsRecords(t *testing.T) {
	grid := &fakeAdapter[source.GridReading]{
		name:    "fingrid",
		records: []source.GridReading{{DatasetID: source.GridFrequencyDatasetID, Value: f(50.01), Start: testTime}},
		err:     errors.New("dataset 192: 429"),
	}
	fx := newFixture(t, Sources{Grid: grid})

	c := fx.svc.Grid(context.Background())

	require.Len(t, c.Features, 1)
	assert.Equal(t, DefaultGridAnchor, c.Features[0].Geometry)
	assert.True(t, c.Meta.Degraded)
	assert.Equal(t, statusPartial, c.Meta.Sources[0].Error)
}

func TestService_SourcePanicIsContained(t *testing.T) {
	trains := &fakeAdapter[source.TrainLocation]{name: "digitraffic-rail", panics: true}
	fx := newFixture(t, Sources{Trains: trains})

	var c feature.Collection
	require.NotPanics(t, func() { c = fx.svc.Trains(context.Background()) })
	assert.Empty(t, c.Features)
	assert.True(t, c.Meta.Degraded)
}

func TestService_StatisticsPanicIsContained(t *testing.T) {
	for _, where := range []string{"boundaries", "indicator"} {
		t.Run(where, func(t *testing.T) {
			stats := &fakeStatistics{
				boundaries: municipalities(),
				values:     []source.IndicatorValue{{MunicipalityCode: "091", Value: f(1)}},
				panics:     where,
			}
			fx := newFixture(t, Sources{Statistics: stats})

			var c feature.Collection
			require.NotPanics(t, func() { c = fx.svc.Municipalities(context.Background(), 2023, "vaesto") })
			assert.Empty(t, c.Features)
			assert.True(t, c.Meta.Degraded)
			require.Len(t, c.Meta.Sources, 2)
			assert.Contains(t, []string{c.Meta.Sources[0].Error, c.Meta.Sources[1].Error}, statusUnavailable)
		})
	}
}

func TestService_MissingAdapterIsSkipped(t *testing.T) {
	fx := newFixture(t, Sources{})

	c := fx.svc.Transit(context.Background())

	assert.Empty(t, c.Features)
	assert.Empty(t, c.Meta.Sources)
	assert.False(t, c.Meta.Degraded)
}

func TestService_UnknownDataset(t *testing.T) {
	fx := newFixture(t, Sources{})

	_, err := fx.svc.Dataset(context.Background(), "radar")
	assert.ErrorIs(t, err, ErrUnknownDataset)

	_, err = fx.svc.TTL("radar")
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestService_DatasetIsCached(t *testing.T) {
	snow := &fakeAdapter[source.SnowObservation]{name: "fmi", records: []source.SnowObservation{
		{StationID: "101", Lat: f(60.2), Lon: f(24.9), SnowDepthCM: f(45), Time: testTime},
	}}
	fx := newFixture(t, Sources{Snow: snow})
	ctx := context.Background()

	first, err := fx.svc.Dataset(ctx, DatasetSnow)
	require.NoError(t, err)
	fx.cache.Wait()

	second, err := fx.svc.Dataset(ctx, DatasetSnow)
	require.NoError(t, err)

	assert.Equal(t, int32(1), snow.calls.Load())
	assert.Equal(t, first.Features[0].ID, second.Features[0].ID)
	assert.Equal(t, feature.SeverityMedium, second.Features[0].Severity)
}

func TestService_WarmBypassesCache(t *testing.T) {
	ice := &fakeAdapter[source.IceObservation]{name: "syke", records: []source.IceObservation{
		{SiteID: "7", Lat: f(65), Lon: f(25.4), ThicknessCM: f(30), Time: testTime},
	}}
	fx := newFixture(t, Sources{Ice: ice})
	ctx := context.Background()

	_, err := fx.svc.Warm(ctx, DatasetIce)
	require.NoError(t, err)
	_, err = fx.svc.Warm(ctx, DatasetIce)
	require.NoError(t, err)
	assert.Equal(t, int32(2), ice.calls.Load())

	_, err = fx.svc.Dataset(ctx, DatasetIce)
	require.NoError(t, err)
	assert.Equal(t, int32(2), ice.calls.Load())
}

func TestService_RecordsHistory(t *testing.T) {
	traffic := &fakeAdapter[source.TrafficMessage]{name: "digitraffic", records: []source.TrafficMessage{
		{SituationID: "GUID1", SituationType: "ROAD_WORK", Title: "Tie 1", Lat: f(60.2), Lon: f(24.9), Start: testTime},
	}}
	fx := newFixture(t, Sources{Traffic: traffic})

	_, err := fx.svc.Compute(context.Background(), DatasetTraffic)
	require.NoError(t, err)
	fx.rec.Wait()

	b, err := fx.sink.Latest(DatasetTraffic)
	require.NoError(t, err)
	require.Len(t, b.Features, 1)
	assert.Equal(t, source.PrefixTraffic+"GUID1", b.Features[0].ID)
}

func TestService_TTLOverride(t *testing.T) {
	fx := newFixture(t, Sources{})
	ttl, err := fx.svc.TTL(DatasetTrains)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ttl)

	svc := NewService(Sources{}, fx.cache, nil, Options{TTLs: map[string]time.Duration{DatasetTrains: time.Minute}}, observability.NopLogger(), fx.metrics)
	ttl, err = svc.TTL(DatasetTrains)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)
}

func municipalities() []source.MunicipalityBoundary {
	return []source.MunicipalityBoundary{
		{Code: "091", Name: "Helsinki", Lat: f(60.17), Lon: f(24.94)},
		{Code: "049", Name: "Espoo", Lat: f(60.2), Lon: f(24.66)},
		{Code: "092", Name: "Vantaa", Lat: f(60.29), Lon: f(25.04)},
		{Code: "853", Name: "Turku", Lat: f(60.45), Lon: f(22.27)},
	}
}

func TestService_MunicipalitiesClassifies(t *testing.T) {
	stats := &fakeStatistics{
		boundaries: municipalities(),
		values: []source.IndicatorValue{
			{MunicipalityCode: "091", Value: f(4)},
			{MunicipalityCode: "049", Value: f(1)},
			{MunicipalityCode: "092", Value: f(3)},
			{MunicipalityCode: "853", Value: f(2)},
			{MunicipalityCode: "999", Value: f(5)},
		},
	}
	fx := newFixture(t, Sources{Statistics: stats})

	c := fx.svc.Municipalities(context.Background(), 2023, "vaesto")

	require.Len(t, c.Features, 4)
	byID := make(map[string]feature.Feature, len(c.Features))
	for _, ft := range c.Features {
		byID[ft.ID] = ft
	}
	assert.Equal(t, feature.BucketLow, byID["muni-049"].Classification)
	assert.Equal(t, feature.BucketLow, byID["muni-853"].Classification)
	assert.Equal(t, feature.BucketMedium, byID["muni-092"].Classification)
	assert.Equal(t, feature.BucketHigh, byID["muni-091"].Classification)
	assert.Equal(t, feature.SeverityHigh, byID["muni-091"].Severity)
	assert.Equal(t, 1, c.Meta.Sources[1].Dropped)
	assert.False(t, c.Meta.Degraded)
}

func TestService_MunicipalitiesEmptyReference(t *testing.T) {
	stats := &fakeStatistics{
		boundaries: municipalities(),
		values: []source.IndicatorValue{
			{MunicipalityCode: "091", Value: nil},
			{MunicipalityCode: "049", Value: f(0)},
		},
	}
	fx := newFixture(t, Sources{Statistics: stats})

	var c feature.Collection
	require.NotPanics(t, func() { c = fx.svc.ComputeMunicipalities(context.Background(), 2023, "vaesto") })
	assert.Empty(t, c.Features)
	assert.True(t, c.Meta.Degraded)
}

func TestService_BoundariesCachedAcrossIndicators(t *testing.T) {
	stats := &fakeStatistics{
		boundaries: municipalities(),
		values:     []source.IndicatorValue{{MunicipalityCode: "091", Value: f(1)}},
	}
	fx := newFixture(t, Sources{Statistics: stats})
	ctx := context.Background()

	fx.svc.ComputeMunicipalities(ctx, 2023, "vaesto")
	fx.cache.Wait()
	fx.svc.ComputeMunicipalities(ctx, 2023, "tyottomyys")

	assert.Equal(t, int32(1), stats.boundaryCalls.Load())
}
