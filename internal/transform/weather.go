package transform

import (
	"fmt"

	"github.com/i474232898/geodata-aggregation/internal/common"
	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/source"
)

// Thresholds for the weather style datasets.
const (
	snowHighCM   = 80.0
	snowMediumCM = 30.0

	windHighMS   = 21.0
	windMediumMS = 14.0
	gustMediumMS = 17.0
	coldHighC    = -30.0
	coldMediumC  = -20.0

	slipperyRoadC       = 0.0
	slipperyHumidityPct = 90.0

	iceHighCM   = 5.0
	iceMediumCM = 15.0
)

type snowMeta struct {
	StationID   string   `json:"stationId"`
	SnowDepthCM *float64 `json:"snowDepthCm"`
}

type weatherMeta struct {
	StationID    string   `json:"stationId"`
	TemperatureC *float64 `json:"temperatureC,omitempty"`
	WindSpeedMS  *float64 `json:"windSpeedMs,omitempty"`
	WindGustMS   *float64 `json:"windGustMs,omitempty"`
	PrecipMM     *float64 `json:"precipitationMm,omitempty"`
}

type roadWeatherMeta struct {
	StationID   string   `json:"stationId"`
	AirTempC    *float64 `json:"airTemperatureC,omitempty"`
	RoadTempC   *float64 `json:"roadTemperatureC,omitempty"`
	HumidityPct *float64 `json:"humidityPct,omitempty"`
	WindSpeedMS *float64 `json:"windSpeedMs,omitempty"`
	WindGustMS  *float64 `json:"windGustMs,omitempty"`
	Slippery    bool     `json:"slippery"`
}

type iceMeta struct {
	SiteID      string  `json:"siteId"`
	WaterBody   string  `json:"waterBody,omitempty"`
	ThicknessCM float64 `json:"thicknessCm"`
}

// Snow keeps stations without a depth reading; their severity is low.
func Snow(obs []source.SnowObservation) Result {
	res := newResult(len(obs))
	for _, o := range obs {
		pt, ok := feature.PointFrom(o.Lat, o.Lon)
		if !ok {
			res.drop()
			continue
		}

		severity := feature.SeverityLow
		description := "Snow depth not reported"
		if o.SnowDepthCM != nil {
			severity = snowSeverity(*o.SnowDepthCM)
			description = fmt.Sprintf("Snow depth %s cm", common.FormatFloat(*o.SnowDepthCM))
		}

		res.keep(feature.Feature{
			ID:           source.PrefixSnow + o.StationID,
			Geometry:     pt,
			Category:     feature.CategorySnow,
			Severity:     severity,
			Title:        "Snow depth " + o.StationName,
			Description:  description,
			LocationName: o.StationName,
			Timestamp:    o.Time,
			Source:       SourceFMI,
			Metadata:     metadata(snowMeta{StationID: o.StationID, SnowDepthCM: o.SnowDepthCM}),
		})
	}
	return res
}

func snowSeverity(depthCM float64) feature.Severity {
	switch {
	case depthCM > snowHighCM:
		return feature.SeverityHigh
	case depthCM > snowMediumCM:
		return feature.SeverityMedium
	default:
		return feature.SeverityLow
	}
}

// Weather requires a temperature reading.
func Weather(obs []source.WeatherObservation) Result {
	res := newResult(len(obs))
	for _, o := range obs {
		pt, ok := feature.PointFrom(o.Lat, o.Lon)
		if !ok || o.TemperatureC == nil {
			res.drop()
			continue
		}

		res.keep(feature.Feature{
			ID:           source.PrefixFMIWeather + o.StationID,
			Geometry:     pt,
			Category:     feature.CategoryWeather,
			Severity:     weatherSeverity(o.TemperatureC, o.WindSpeedMS, o.WindGustMS),
			Title:        "Weather " + o.StationName,
			Description:  weatherDescription(o.TemperatureC, o.WindSpeedMS, o.WindGustMS, o.PrecipMM),
			LocationName: o.StationName,
			Timestamp:    o.Time,
			Source:       SourceFMI,
			Metadata: metadata(weatherMeta{
				StationID:    o.StationID,
				TemperatureC: o.TemperatureC,
				WindSpeedMS:  o.WindSpeedMS,
				WindGustMS:   o.WindGustMS,
				PrecipMM:     o.PrecipMM,
			}),
		})
	}
	return res
}

// RoadWeather requires an air or road surface temperature.
func RoadWeather(obs []source.RoadWeatherObservation) Result {
	res := newResult(len(obs))
	for _, o := range obs {
		pt, ok := feature.PointFrom(o.Lat, o.Lon)
		if !ok || (o.AirTempC == nil && o.RoadTempC == nil) {
			res.drop()
			continue
		}

		slippery := o.RoadTempC != nil && o.HumidityPct != nil &&
			*o.RoadTempC <= slipperyRoadC && *o.HumidityPct >= slipperyHumidityPct

		severity := weatherSeverity(o.AirTempC, o.WindSpeedMS, o.WindGustMS)
		if slippery {
			severity = feature.Max(severity, feature.SeverityMedium)
		}

		description := weatherDescription(o.AirTempC, o.WindSpeedMS, o.WindGustMS, nil)
		if o.RoadTempC != nil {
			description = common.JoinNonEmpty(", ", description,
				fmt.Sprintf("road %s °C", common.FormatFloat(*o.RoadTempC)))
		}
		if slippery {
			description += ". Slippery road conditions likely"
		}

		res.keep(feature.Feature{
			ID:           source.PrefixRoadWeather + o.StationID,
			Geometry:     pt,
			Category:     feature.CategoryRoadWeather,
			Severity:     severity,
			Title:        "Road weather " + o.StationName,
			Description:  description,
			LocationName: o.StationName,
			Timestamp:    o.Time,
			Source:       SourceDigitraffic,
			Metadata: metadata(roadWeatherMeta{
				StationID:   o.StationID,
				AirTempC:    o.AirTempC,
				RoadTempC:   o.RoadTempC,
				HumidityPct: o.HumidityPct,
				WindSpeedMS: o.WindSpeedMS,
				WindGustMS:  o.WindGustMS,
				Slippery:    slippery,
			}),
		})
	}
	return res
}

func weatherSeverity(tempC, windMS, gustMS *float64) feature.Severity {
	atLeast := func(v *float64, limit float64) bool { return v != nil && *v >= limit }
	atMost := func(v *float64, limit float64) bool { return v != nil && *v <= limit }

	switch {
	case atLeast(windMS, windHighMS), atLeast(gustMS, windHighMS), atMost(tempC, coldHighC):
		return feature.SeverityHigh
	case atLeast(windMS, windMediumMS), atLeast(gustMS, gustMediumMS), atMost(tempC, coldMediumC):
		return feature.SeverityMedium
	default:
		return feature.SeverityLow
	}
}

func weatherDescription(tempC, windMS, gustMS, precipMM *float64) string {
	var parts []string
	if tempC != nil {
		parts = append(parts, fmt.Sprintf("Temperature %s °C", common.FormatFloat(*tempC)))
	}
	if windMS != nil {
		parts = append(parts, fmt.Sprintf("wind %s m/s", common.FormatFloat(*windMS)))
	}
	if gustMS != nil {
		parts = append(parts, fmt.Sprintf("gusts %s m/s", common.FormatFloat(*gustMS)))
	}
	if precipMM != nil {
		parts = append(parts, fmt.Sprintf("precipitation %s mm/h", common.FormatFloat(*precipMM)))
	}
	return common.JoinNonEmpty(", ", parts...)
}

// Ice requires a thickness measurement.
func Ice(obs []source.IceObservation) Result {
	res := newResult(len(obs))
	for _, o := range obs {
		pt, ok := feature.PointFrom(o.Lat, o.Lon)
		if !ok || o.ThicknessCM == nil {
			res.drop()
			continue
		}

		thickness := *o.ThicknessCM
		res.keep(feature.Feature{
			ID:           source.PrefixIce + o.SiteID,
			Geometry:     pt,
			Category:     feature.CategoryIce,
			Severity:     iceSeverity(thickness),
			Title:        "Ice thickness " + common.FirstNonEmpty(o.SiteName, o.WaterBody),
			Description:  fmt.Sprintf("Ice thickness %s cm", common.FormatFloat(thickness)),
			LocationName: common.JoinNonEmpty(", ", o.SiteName, o.WaterBody),
			Timestamp:    o.Time,
			Source:       SourceSYKE,
			Metadata:     metadata(iceMeta{SiteID: o.SiteID, WaterBody: o.WaterBody, ThicknessCM: thickness}),
		})
	}
	return res
}

func iceSeverity(thicknessCM float64) feature.Severity {
	switch {
	case thicknessCM < iceHighCM:
		return feature.SeverityHigh
	case thicknessCM < iceMediumCM:
		return feature.SeverityMedium
	default:
		return feature.SeverityLow
	}
}
