// Package source defines the raw, provider-shaped records returned by the
// upstream adapters in package providers. Each provider domain has its own
// record type; records are converted one-way into canonical features by
// package transform and never shared across adapters before that.
package source

import (
	"context"
	"time"
)

// Id prefixes keep feature ids unique across adapters after normalization.
const (
	PrefixSnow        = "snow-"
	PrefixFMIWeather  = "fmi_"
	PrefixRoadWeather = "dt_"
	PrefixIce         = "ice-"
	PrefixTraffic     = "traffic-"
	PrefixTrain       = "train-"
	PrefixTransit     = "transit-"
	PrefixGrid        = "grid-"
	PrefixMunicipal   = "muni-"
)

// Adapter fetches one provider's records. A non-nil error describes failed
// sub-requests only: the returned records are always usable, possibly empty.
type Adapter[T any] interface {
	Name() string
	Prefix() string
	Fetch(ctx context.Context) ([]T, error)
}

// SnowObservation is a snow depth reading from a weather station.
type SnowObservation struct {
	StationID   string
	StationName string
	Lat         *float64
	Lon         *float64
	SnowDepthCM *float64
	Time        time.Time
}

// WeatherObservation is a synoptic station reading.
type WeatherObservation struct {
	StationID    string
	StationName  string
	Lat          *float64
	Lon          *float64
	TemperatureC *float64
	WindSpeedMS  *float64
	WindGustMS   *float64
	PrecipMM     *float64
	Time         time.Time
}

// RoadWeatherObservation is a road-side weather station reading.
type RoadWeatherObservation struct {
	StationID   string
	StationName string
	Lat         *float64
	Lon         *float64
	AirTempC    *float64
	RoadTempC   *float64
	HumidityPct *float64
	WindSpeedMS *float64
	WindGustMS  *float64
	Time        time.Time
}

// IceObservation is an ice thickness measurement on a river, lake or sea site.
type IceObservation struct {
	SiteID      string
	SiteName    string
	WaterBody   string
	Lat         *float64
	Lon         *float64
	ThicknessCM *float64
	Time        time.Time
}

// TrafficMessage is a traffic situation announcement. Lat/Lon is the first
// point of the announced geometry.
type TrafficMessage struct {
	SituationID   string
	SituationType string
	Title         string
	Comment       string
	RoadName      string
	Lat           *float64
	Lon           *float64
	Start         time.Time
	End           *time.Time
}

// TrainLocation is the latest GPS fix of a running train.
type TrainLocation struct {
	TrainNumber   int
	DepartureDate string
	Lat           *float64
	Lon           *float64
	SpeedKMH      *float64
	Accuracy      *float64
	Time          time.Time
}

// TransitVehicle is a public transport vehicle position.
type TransitVehicle struct {
	VehicleRef      string
	LineName        string
	DestinationName string
	Lat             *float64
	Lon             *float64
	DelaySeconds    *float64
	Time            time.Time
}

// GridFrequencyDatasetID is the Fingrid dataset carrying grid frequency in Hz.
const GridFrequencyDatasetID = 177

// GridReading is the latest value of one electricity grid dataset.
type GridReading struct {
	DatasetID int
	Name      string
	Unit      string
	Value     *float64
	Start     time.Time
	End       time.Time
}

// MunicipalityBoundary carries a municipality's representative point.
type MunicipalityBoundary struct {
	Code string
	Name string
	Lat  *float64
	Lon  *float64
}

// IndicatorValue is one municipality's value for a statistical indicator.
type IndicatorValue struct {
	MunicipalityCode string
	Value            *float64
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
