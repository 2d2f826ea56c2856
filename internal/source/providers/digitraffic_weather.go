package providers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/sourcegraph/conc"

	"github.com/i474232898/geodata-aggregation/internal/source"
)

// DigitrafficRoadBaseURL is the Fintraffic road data API.
const DigitrafficRoadBaseURL = "https://tie.digitraffic.fi"

// digitrafficHeader identifies this client to Digitraffic, which asks every
// consumer to send a Digitraffic-User header.
func digitrafficHeader(userAgent string) http.Header {
	h := http.Header{}
	if userAgent != "" {
		h.Set("Digitraffic-User", userAgent)
	}
	return h
}

type pointGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type roadStationCollection struct {
	Features []struct {
		ID         int64         `json:"id"`
		Geometry   pointGeometry `json:"geometry"`
		Properties struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"properties"`
	} `json:"features"`
}

type roadStationData struct {
	Stations []struct {
		ID              int64  `json:"id"`
		DataUpdatedTime string `json:"dataUpdatedTime"`
		SensorValues    []struct {
			Name         string  `json:"name"`
			Value        float64 `json:"value"`
			Unit         string  `json:"unit"`
			MeasuredTime string  `json:"measuredTime"`
		} `json:"sensorValues"`
	} `json:"stations"`
}

// Road weather sensor names used by Digitraffic.
const (
	sensorAirTemp   = "ILMA"
	sensorRoadTemp  = "TIE_1"
	sensorHumidity  = "ILMAN_KOSTEUS"
	sensorWindSpeed = "KESKITUULI"
	sensorWindGust  = "MAKSIMITUULI"
)

type stationMeta struct {
	name string
	lat  *float64
	lon  *float64
}

// RoadWeatherProvider joins road weather station metadata with the latest
// sensor values. The two requests run in parallel.
type RoadWeatherProvider struct {
	client *Client
}

func NewRoadWeatherProvider(client *Client) *RoadWeatherProvider {
	return &RoadWeatherProvider{client: client}
}

func (p *RoadWeatherProvider) Name() string   { return p.client.Name() }
func (p *RoadWeatherProvider) Prefix() string { return source.PrefixRoadWeather }

func (p *RoadWeatherProvider) Fetch(ctx context.Context) ([]source.RoadWeatherObservation, error) {
	if !p.client.Enabled() {
		return nil, nil
	}

	var (
		wg                  conc.WaitGroup
		stations            roadStationCollection
		data                roadStationData
		stationsErr, obsErr error
	)
	header := digitrafficHeader(p.client.userAgent)

	wg.Go(func() {
		stationsErr = p.client.getJSON(ctx, p.client.endpoint("/api/weather/v1/stations", nil), header, &stations)
	})
	wg.Go(func() {
		obsErr = p.client.getJSON(ctx, p.client.endpoint("/api/weather/v1/stations/data", nil), header, &data)
	})
	wg.Wait()

	// Without readings there is nothing to report; without metadata the
	// readings have no position and would all be dropped downstream.
	if obsErr != nil {
		return nil, errors.Join(stationsErr, obsErr)
	}

	meta := make(map[int64]stationMeta, len(stations.Features))
	for _, f := range stations.Features {
		m := stationMeta{name: f.Properties.Name}
		if f.Geometry.Type == "Point" && len(f.Geometry.Coordinates) >= 2 {
			m.lon = source.Float(f.Geometry.Coordinates[0])
			m.lat = source.Float(f.Geometry.Coordinates[1])
		}
		meta[f.ID] = m
	}

	out := make([]source.RoadWeatherObservation, 0, len(data.Stations))
	for _, st := range data.Stations {
		m := meta[st.ID]
		obs := source.RoadWeatherObservation{
			StationID:   strconv.FormatInt(st.ID, 10),
			StationName: m.name,
			Lat:         m.lat,
			Lon:         m.lon,
			Time:        parseTime(st.DataUpdatedTime),
		}
		for _, sv := range st.SensorValues {
			switch sv.Name {
			case sensorAirTemp:
				obs.AirTempC = source.Float(sv.Value)
			case sensorRoadTemp:
				obs.RoadTempC = source.Float(sv.Value)
			case sensorHumidity:
				obs.HumidityPct = source.Float(sv.Value)
			case sensorWindSpeed:
				obs.WindSpeedMS = source.Float(sv.Value)
			case sensorWindGust:
				obs.WindGustMS = source.Float(sv.Value)
			default:
				continue
			}
			if ts := parseTime(sv.MeasuredTime); ts.After(obs.Time) {
				obs.Time = ts
			}
		}
		out = append(out, obs)
	}
	return out, stationsErr
}
