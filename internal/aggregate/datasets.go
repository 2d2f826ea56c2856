package aggregate

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownDataset is returned when a dataset name is not served.
var ErrUnknownDataset = errors.New("unknown dataset")

// Dataset names.
const (
	DatasetSnow       = "snow"
	DatasetWeather    = "weather"
	DatasetIce        = "ice"
	DatasetTraffic    = "traffic"
	DatasetTrains     = "trains"
	DatasetTransit    = "transit"
	DatasetGrid       = "grid"
	DatasetStatistics = "statistics"
)

// DatasetSpec is the cache key and lifetime of one dataset.
type DatasetSpec struct {
	Name string
	Key  string
	TTL  time.Duration
}

// StaticDatasets are the parameterless datasets in response order.
var StaticDatasets = []DatasetSpec{
	{Name: DatasetSnow, Key: "snow:stations", TTL: 10 * time.Minute},
	{Name: DatasetWeather, Key: "weather:stations", TTL: 5 * time.Minute},
	{Name: DatasetIce, Key: "ice:stations", TTL: 30 * time.Minute},
	{Name: DatasetTraffic, Key: "traffic:all", TTL: 2 * time.Minute},
	{Name: DatasetTrains, Key: "trains:live", TTL: 30 * time.Second},
	{Name: DatasetTransit, Key: "transit:vehicles", TTL: 30 * time.Second},
	{Name: DatasetGrid, Key: "grid:status", TTL: 3 * time.Minute},
}

// Statistics datasets are keyed by year and indicator.
const (
	StatisticsTTL = time.Hour
	BoundariesTTL = 24 * time.Hour
)

// StatisticsKey returns the cache key of one indicator year.
func StatisticsKey(year int, indicator string) string {
	return fmt.Sprintf("stats:%d:%s", year, indicator)
}

// BoundariesKey returns the cache key of a year's municipality boundaries.
func BoundariesKey(year int) string {
	return fmt.Sprintf("boundaries:%d", year)
}

// DatasetNames lists the static dataset names.
func DatasetNames() []string {
	names := make([]string, 0, len(StaticDatasets))
	for _, d := range StaticDatasets {
		names = append(names, d.Name)
	}
	return names
}

func lookupSpec(name string) (DatasetSpec, bool) {
	for _, d := range StaticDatasets {
		if d.Name == name {
			return d, true
		}
	}
	return DatasetSpec{}, false
}
