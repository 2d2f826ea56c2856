package transform

import (
	"math"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/source"
)

var testTime = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func TestSnow_ScenarioStation(t *testing.T) {
	res := Snow([]source.SnowObservation{{
		StationID:   "101",
		StationName: "Tampere Härmälä",
		Lat:         f(61.5),
		Lon:         f(23.7),
		SnowDepthCM: f(85),
		Time:        testTime,
	}})

	require.Len(t, res.Features, 1)
	assert.Zero(t, res.Dropped)

	got := res.Features[0]
	assert.Equal(t, "snow-101", got.ID)
	assert.Equal(t, feature.SeverityHigh, got.Severity)
	assert.Contains(t, got.Description, "85")
	assert.Equal(t, feature.CategorySnow, got.Category)
	assert.Equal(t, feature.Point{Lon: 23.7, Lat: 61.5}, got.Geometry)
	assert.Equal(t, testTime, got.Timestamp)
	assert.JSONEq(t, `{"stationId":"101","snowDepthCm":85}`, string(got.Metadata))
}

func TestSnow_Severity(t *testing.T) {
	tests := []struct {
		name  string
		depth *float64
		want  feature.Severity
	}{
		{"deep", f(80.5), feature.SeverityHigh},
		{"exactly high limit", f(80), feature.SeverityMedium},
		{"medium", f(31), feature.SeverityMedium},
		{"exactly medium limit", f(30), feature.SeverityLow},
		{"thin", f(2), feature.SeverityLow},
		{"not reported", nil, feature.SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Snow([]source.SnowObservation{{StationID: "1", Lat: f(60), Lon: f(25), SnowDepthCM: tt.depth}})
			require.Len(t, res.Features, 1)
			assert.Equal(t, tt.want, res.Features[0].Severity)
		})
	}
}

func TestSnow_DropsInvalidCoordinates(t *testing.T) {
	res := Snow([]source.SnowObservation{
		{StationID: "1", Lat: nil, Lon: f(25), SnowDepthCM: f(10)},
		{StationID: "2", Lat: f(math.NaN()), Lon: f(25), SnowDepthCM: f(10)},
		{StationID: "3", Lat: f(95), Lon: f(25), SnowDepthCM: f(10)},
		{StationID: "4", Lat: f(60), Lon: f(25), SnowDepthCM: f(10)},
	})
	assert.Equal(t, 3, res.Dropped)
	require.Len(t, res.Features, 1)
	assert.Equal(t, "snow-4", res.Features[0].ID)
}

func TestTransformIsPure(t *testing.T) {
	obs := []source.WeatherObservation{
		{StationID: "100971", StationName: "Helsinki Kaisaniemi", Lat: f(60.17), Lon: f(24.94), TemperatureC: f(-12.4), WindSpeedMS: f(4.1), Time: testTime},
		{StationID: "101004", StationName: "Kumpula", Lat: f(60.2), Lon: f(24.96), TemperatureC: f(-31), PrecipMM: f(0.2), Time: testTime},
	}

	first, err := json.Marshal(Weather(obs))
	require.NoError(t, err)
	second, err := json.Marshal(Weather(obs))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWeather_SeverityAndPrimaryMeasurement(t *testing.T) {
	res := Weather([]source.WeatherObservation{
		{StationID: "1", Lat: f(60), Lon: f(25), TemperatureC: f(-5), WindSpeedMS: f(22)},
		{StationID: "2", Lat: f(60), Lon: f(25), TemperatureC: f(-5), WindGustMS: f(17)},
		{StationID: "3", Lat: f(60), Lon: f(25), TemperatureC: f(-30)},
		{StationID: "4", Lat: f(60), Lon: f(25), TemperatureC: f(-20)},
		{StationID: "5", Lat: f(60), Lon: f(25), TemperatureC: f(2), WindSpeedMS: f(3)},
		{StationID: "6", Lat: f(60), Lon: f(25), WindSpeedMS: f(30)},
	})

	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Features, 5)
	want := []feature.Severity{
		feature.SeverityHigh, feature.SeverityMedium, feature.SeverityHigh, feature.SeverityMedium, feature.SeverityLow,
	}
	for i, w := range want {
		assert.Equal(t, w, res.Features[i].Severity, res.Features[i].ID)
	}
	assert.Equal(t, "fmi_1", res.Features[0].ID)
	assert.Equal(t, "Temperature -5 °C, wind 22 m/s", res.Features[0].Description)
}

func TestRoadWeather_SlipperyIsAtLeastMedium(t *testing.T) {
	res := RoadWeather([]source.RoadWeatherObservation{
		{StationID: "1001", StationName: "vt1_Espoo", Lat: f(60.171), Lon: f(24.941), AirTempC: f(-1), RoadTempC: f(-0.5), HumidityPct: f(95)},
		{StationID: "1002", Lat: f(60.3), Lon: f(24.9), AirTempC: f(-1), RoadTempC: f(1), HumidityPct: f(95)},
		{StationID: "1003", Lat: f(60.4), Lon: f(24.9), RoadTempC: f(-2), HumidityPct: f(91), WindSpeedMS: f(25)},
		{StationID: "1004", Lat: f(60.5), Lon: f(24.9)},
	})

	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Features, 3)
	assert.Equal(t, "dt_1001", res.Features[0].ID)
	assert.Equal(t, feature.SeverityMedium, res.Features[0].Severity)
	assert.Contains(t, res.Features[0].Description, "Slippery")
	assert.Equal(t, feature.SeverityLow, res.Features[1].Severity)
	assert.Equal(t, feature.SeverityHigh, res.Features[2].Severity)
}

func TestIce_Severity(t *testing.T) {
	res := Ice([]source.IceObservation{
		{SiteID: "1", SiteName: "Oulujoki", Lat: f(65), Lon: f(25.4), ThicknessCM: f(4)},
		{SiteID: "2", Lat: f(61.5), Lon: f(23.7), ThicknessCM: f(5)},
		{SiteID: "3", Lat: f(61.5), Lon: f(23.7), ThicknessCM: f(15)},
		{SiteID: "4", Lat: f(61.5), Lon: f(23.7)},
	})

	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Features, 3)
	assert.Equal(t, "ice-1", res.Features[0].ID)
	assert.Equal(t, feature.SeverityHigh, res.Features[0].Severity)
	assert.Equal(t, "Ice thickness Oulujoki", res.Features[0].Title)
	assert.Equal(t, feature.SeverityMedium, res.Features[1].Severity)
	assert.Equal(t, feature.SeverityLow, res.Features[2].Severity)
}

func TestTraffic_Severity(t *testing.T) {
	end := testTime.Add(2 * time.Hour)
	res := Traffic([]source.TrafficMessage{
		{SituationID: "A", SituationType: "ROAD_WORK", Title: "Tie 1 suljettu", Lat: f(60.2), Lon: f(24.9)},
		{SituationID: "B", SituationType: "TRAFFIC_ANNOUNCEMENT", Title: "Roadside work", Lat: f(60.2), Lon: f(24.9), End: &end},
		{SituationID: "C", SituationType: "WEIGHT_RESTRICTION", Lat: f(60.2), Lon: f(24.9)},
		{SituationID: "D", SituationType: "ROAD_WORK", Comment: "Multi-vehicle ACCIDENT", Lat: f(60.2), Lon: f(24.9)},
		{SituationID: "", SituationType: "ROAD_WORK", Lat: f(60.2), Lon: f(24.9)},
		{SituationID: "F", SituationType: "ROAD_WORK"},
	})

	assert.Equal(t, 2, res.Dropped)
	require.Len(t, res.Features, 4)
	assert.Equal(t, "traffic-A", res.Features[0].ID)
	assert.Equal(t, feature.SeverityHigh, res.Features[0].Severity)
	assert.Equal(t, feature.SeverityMedium, res.Features[1].Severity)
	require.NotNil(t, res.Features[1].EndTime)
	assert.Equal(t, end, *res.Features[1].EndTime)
	assert.Equal(t, feature.SeverityLow, res.Features[2].Severity)
	assert.Equal(t, "WEIGHT_RESTRICTION", res.Features[2].Title)
	assert.Equal(t, feature.SeverityHigh, res.Features[3].Severity)
}

func TestTrains_StoppedIsMedium(t *testing.T) {
	res := Trains([]source.TrainLocation{
		{TrainNumber: 45, DepartureDate: "2024-01-15", Lat: f(60.17), Lon: f(24.94), SpeedKMH: f(0)},
		{TrainNumber: 46, DepartureDate: "2024-01-15", Lat: f(61.5), Lon: f(23.7), SpeedKMH: f(120)},
		{TrainNumber: 47, Lat: f(61.5), Lon: f(23.7)},
		{TrainNumber: 0, Lat: f(61.5), Lon: f(23.7)},
	})

	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Features, 3)
	assert.Equal(t, "train-45-2024-01-15", res.Features[0].ID)
	assert.Equal(t, feature.SeverityMedium, res.Features[0].Severity)
	assert.Equal(t, feature.SeverityLow, res.Features[1].Severity)
	assert.Equal(t, "train-47", res.Features[2].ID)
	assert.Equal(t, feature.SeverityLow, res.Features[2].Severity)
}

func TestTransit_DelaySeverity(t *testing.T) {
	res := Transit([]source.TransitVehicle{
		{VehicleRef: "1", LineName: "3", Lat: f(60.45), Lon: f(22.26), DelaySeconds: f(301)},
		{VehicleRef: "2", Lat: f(60.45), Lon: f(22.26), DelaySeconds: f(300)},
		{VehicleRef: "3", Lat: f(60.45), Lon: f(22.26), DelaySeconds: f(120)},
		{VehicleRef: "4", Lat: f(60.45), Lon: f(22.26)},
	})

	require.Len(t, res.Features, 4)
	assert.Equal(t, "transit-1", res.Features[0].ID)
	assert.Equal(t, "Line 3", res.Features[0].Title)
	assert.Equal(t, feature.SeverityHigh, res.Features[0].Severity)
	assert.Equal(t, feature.SeverityMedium, res.Features[1].Severity)
	assert.Equal(t, feature.SeverityLow, res.Features[2].Severity)
	assert.Equal(t, feature.SeverityLow, res.Features[3].Severity)
}

func TestGrid_FrequencyDeviation(t *testing.T) {
	anchor := feature.Point{Lon: 25.0, Lat: 62.0}
	res := Grid([]source.GridReading{
		{DatasetID: source.GridFrequencyDatasetID, Name: "Frequency", Unit: "Hz", Value: f(49.88), Start: testTime},
		{DatasetID: source.GridFrequencyDatasetID, Name: "Frequency", Unit: "Hz", Value: f(49.93)},
		{DatasetID: 192, Name: "Electricity production", Unit: "MW", Value: f(9500)},
		{DatasetID: 193, Name: "Electricity consumption", Unit: "MW"},
	}, anchor)

	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Features, 3)
	assert.Equal(t, "grid-177", res.Features[0].ID)
	assert.Equal(t, anchor, res.Features[0].Geometry)
	assert.Equal(t, feature.SeverityHigh, res.Features[0].Severity)
	assert.Equal(t, "Frequency: 49.88 Hz", res.Features[0].Description)
	assert.Nil(t, res.Features[0].EndTime)
	assert.Equal(t, feature.SeverityMedium, res.Features[1].Severity)
	assert.Equal(t, feature.SeverityLow, res.Features[2].Severity)
}

func TestGrid_InvalidAnchorDropsAll(t *testing.T) {
	res := Grid([]source.GridReading{{DatasetID: 192, Value: f(1)}}, feature.Point{Lat: 200})
	assert.Empty(t, res.Features)
	assert.Equal(t, 1, res.Dropped)
}

func TestMunicipalities_ClassifiesByQuartile(t *testing.T) {
	boundaries := []source.MunicipalityBoundary{
		{Code: "091", Name: "Helsinki", Lat: f(60.25), Lon: f(25.0)},
		{Code: "837", Name: "Tampere", Lat: f(61.55), Lon: f(23.8)},
		{Code: "853", Name: "Turku", Lat: f(60.45), Lon: f(22.25)},
		{Code: "564", Name: "Oulu", Lat: f(65.0), Lon: f(25.5)},
		{Code: "999", Name: "Nowhere"},
	}
	values := []source.IndicatorValue{
		{MunicipalityCode: "091", Value: f(8)},
		{MunicipalityCode: "837", Value: f(5)},
		{MunicipalityCode: "853", Value: f(2)},
		{MunicipalityCode: "564", Value: nil},
		{MunicipalityCode: "999", Value: f(1)},
		{MunicipalityCode: "000", Value: f(3)},
	}
	ref := IndicatorReference([]source.IndicatorValue{
		{Value: f(1)}, {Value: f(2)}, {Value: f(3)}, {Value: f(4)},
		{Value: f(5)}, {Value: f(6)}, {Value: f(7)}, {Value: f(8)}, {Value: f(-1)}, {Value: nil},
	})
	require.Len(t, ref, 8)

	c, err := feature.NewClassifier(ref)
	require.NoError(t, err)

	res := Municipalities(boundaries, values, c, "M408")
	assert.Equal(t, 3, res.Dropped)
	require.Len(t, res.Features, 3)

	assert.Equal(t, "muni-091", res.Features[0].ID)
	assert.Equal(t, feature.BucketVeryHigh, res.Features[0].Classification)
	assert.Equal(t, feature.SeverityHigh, res.Features[0].Severity)
	assert.Equal(t, feature.BucketMedium, res.Features[1].Classification)
	assert.Equal(t, feature.SeverityMedium, res.Features[1].Severity)
	assert.Equal(t, feature.BucketLow, res.Features[2].Classification)
	assert.Equal(t, "M408: 2", res.Features[2].Description)
}
