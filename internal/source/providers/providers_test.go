package providers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/geodata-aggregation/internal/source"
)

func TestFMISnowProvider_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/timeseries", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("param"), "snowdepth")
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = io.WriteString(w, `[
			{"fmisid":101,"stationname":"Tampere Härmälä","lat":61.5,"lon":23.7,"time":"2024-01-15T10:00:00Z","snowdepth":85},
			{"fmisid":102,"stationname":"Utö","lat":59.78,"lon":21.37,"time":"20240115T100000","snowdepth":null}
		]`)
	}))
	defer srv.Close()

	got, err := NewFMISnowProvider(testClient("fmi-snow", srv.URL)).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "101", got[0].StationID)
	require.NotNil(t, got[0].SnowDepthCM)
	assert.Equal(t, 85.0, *got[0].SnowDepthCM)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), got[0].Time)

	assert.Nil(t, got[1].SnowDepthCM)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), got[1].Time)
}

func TestFMIWeatherProvider_FailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	got, err := NewFMIWeatherProvider(testClient("fmi-weather", srv.URL)).Fetch(context.Background())
	assert.Error(t, err)
	assert.Empty(t, got)
}

func TestRoadWeatherProvider_JoinsStationsAndData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/weather/v1/stations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testUserAgent, r.Header.Get("Digitraffic-User"))
		_, _ = io.WriteString(w, `{"features":[
			{"id":1001,"geometry":{"type":"Point","coordinates":[24.941,60.171,0]},"properties":{"name":"vt1_Espoo"}}
		]}`)
	})
	mux.HandleFunc("/api/weather/v1/stations/data", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"stations":[
			{"id":1001,"dataUpdatedTime":"2024-01-15T10:00:00Z","sensorValues":[
				{"name":"ILMA","value":-3.2,"measuredTime":"2024-01-15T10:01:00Z"},
				{"name":"TIE_1","value":-1.0},
				{"name":"ILMAN_KOSTEUS","value":94},
				{"name":"KESKITUULI","value":5.5},
				{"name":"SADE","value":1}
			]}
		]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := NewRoadWeatherProvider(testClient("road-weather", srv.URL)).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	obs := got[0]
	assert.Equal(t, "1001", obs.StationID)
	assert.Equal(t, "vt1_Espoo", obs.StationName)
	require.NotNil(t, obs.Lat)
	assert.Equal(t, 60.171, *obs.Lat)
	assert.Equal(t, -3.2, *obs.AirTempC)
	assert.Equal(t, -1.0, *obs.RoadTempC)
	assert.Equal(t, 94.0, *obs.HumidityPct)
	assert.Nil(t, obs.WindGustMS)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 1, 0, 0, time.UTC), obs.Time)
}

func TestRoadWeatherProvider_MetadataFailureStillReturnsReadings(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/weather/v1/stations", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/api/weather/v1/stations/data", jsonHandler(t, `{"stations":[{"id":7,"sensorValues":[{"name":"ILMA","value":1.5}]}]}`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := NewRoadWeatherProvider(testClient("road-weather", srv.URL)).Fetch(context.Background())
	assert.Error(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Lat)
}

func TestTrafficProvider_FailingSituationTypeDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/traffic-message/v1/messages", r.URL.Path)
		switch r.URL.Query().Get("situationType") {
		case "TRAFFIC_ANNOUNCEMENT":
			_, _ = io.WriteString(w, `{"features":[{
				"geometry":{"type":"MultiLineString","coordinates":[[[24.9,60.2],[25.0,60.3]]]},
				"properties":{"situationId":"GUID5001","situationType":"TRAFFIC_ANNOUNCEMENT","announcements":[{
					"title":"Tie 1, Espoo. Liikenneonnettomuus.",
					"comment":"Kaista suljettu.",
					"locationDetails":{"roadAddressLocation":{"primaryPoint":{"roadName":"Turuntie"}}},
					"timeAndDuration":{"startTime":"2024-01-15T09:30:00Z","endTime":"2024-01-15T12:00:00Z"}
				}]}
			}]}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	p := NewTrafficProvider(testClient("traffic", srv.URL), []string{"TRAFFIC_ANNOUNCEMENT", "ROAD_WORK"})
	got, err := p.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROAD_WORK")
	require.Len(t, got, 1)

	msg := got[0]
	assert.Equal(t, "GUID5001", msg.SituationID)
	assert.Equal(t, "Turuntie", msg.RoadName)
	require.NotNil(t, msg.Lat)
	assert.Equal(t, 60.2, *msg.Lat)
	assert.Equal(t, 24.9, *msg.Lon)
	require.NotNil(t, msg.End)
	assert.Equal(t, 12, msg.End.Hour())
}

func TestFirstPosition(t *testing.T) {
	lat, lon := firstPosition([]byte(`[25.1, 60.4]`))
	require.NotNil(t, lat)
	assert.Equal(t, 60.4, *lat)
	assert.Equal(t, 25.1, *lon)

	lat, lon = firstPosition([]byte(`[[[]]]`))
	assert.Nil(t, lat)
	assert.Nil(t, lon)

	lat, _ = firstPosition(nil)
	assert.Nil(t, lat)
}

func TestTrainProvider_Fetch(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, `[
		{"trainNumber":45,"departureDate":"2024-01-15","timestamp":"2024-01-15T10:00:05Z",
		 "location":{"type":"Point","coordinates":[24.94,60.17]},"speed":0,"accuracy":12}
	]`))
	defer srv.Close()

	got, err := NewTrainProvider(testClient("trains", srv.URL)).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 45, got[0].TrainNumber)
	require.NotNil(t, got[0].SpeedKMH)
	assert.Equal(t, 0.0, *got[0].SpeedKMH)
	assert.Equal(t, 60.17, *got[0].Lat)
}

func TestTransitProvider_SortsAndSkipsUnmonitored(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, `{"status":"OK","result":{"vehicles":{
		"80012":{"monitored":true,"recordedattime":1705312800,"vehicleref":"80012","publishedlinename":"3","destinationname":"Satama","latitude":60.45,"longitude":22.26,"delaysecs":400},
		"80001":{"monitored":true,"recordedattime":1705312800,"publishedlinename":"1","destinationname":"Lentoasema","latitude":60.46,"longitude":22.28,"delaysecs":10},
		"80005":{"monitored":false}
	}}}`))
	defer srv.Close()

	got, err := NewTransitProvider(testClient("transit", srv.URL)).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "80001", got[0].VehicleRef)
	assert.Equal(t, "80012", got[1].VehicleRef)
	assert.Equal(t, time.Unix(1705312800, 0).UTC(), got[0].Time)
}

func TestTransitProvider_BadStatus(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, `{"status":"NO_SIRI_DATA"}`))
	defer srv.Close()

	got, err := NewTransitProvider(testClient("transit", srv.URL)).Fetch(context.Background())
	assert.Error(t, err)
	assert.Empty(t, got)
}

func TestIceProvider_KeepsLatestPerSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Paikka", r.URL.Query().Get("$expand"))
		_, _ = io.WriteString(w, `{"value":[
			{"Paikka_Id":12,"Aika":"2024-01-15T00:00:00","Arvo":18,"Paikka":{"Nimi":"Näsijärvi","KoordLat":61.53,"KoordLong":23.75}},
			{"Paikka_Id":12,"Aika":"2024-01-08T00:00:00","Arvo":11,"Paikka":{"Nimi":"Näsijärvi","KoordLat":61.53,"KoordLong":23.75}},
			{"Paikka_Id":31,"Aika":"2024-01-14T00:00:00","Arvo":4,"Paikka":{"Nimi":"Oulujoki","KoordLat":65.0,"KoordLong":25.4}}
		]}`)
	}))
	defer srv.Close()

	got, err := NewIceProvider(testClient("ice", srv.URL)).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "12", got[0].SiteID)
	assert.Equal(t, 18.0, *got[0].ThicknessCM)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), got[0].Time)
	assert.Equal(t, "31", got[1].SiteID)
}

func TestGridProvider_SendsKeyAndFansOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		switch r.URL.Path {
		case "/api/datasets/177/data/latest":
			_, _ = io.WriteString(w, `{"datasetId":177,"startTime":"2024-01-15T10:00:00Z","endTime":"2024-01-15T10:03:00Z","value":49.88}`)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	s := testSettings("fingrid", srv.URL)
	s.APIKey = "secret"
	s.RequireKey = true
	p := NewGridProvider(NewClient(&http.Client{}, s, testLogger()), nil)

	got, err := p.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnexpected)
	require.Len(t, got, 1)
	assert.Equal(t, 177, got[0].DatasetID)
	assert.Equal(t, "Hz", got[0].Unit)
	assert.Equal(t, 49.88, *got[0].Value)
}

func TestGridProvider_WithoutKeyReturnsEmpty(t *testing.T) {
	s := testSettings("fingrid", "http://127.0.0.1:1")
	s.RequireKey = true
	p := NewGridProvider(NewClient(&http.Client{}, s, testLogger()), nil)

	got, err := p.Fetch(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestStatisticsProvider_Boundaries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tilastointialueet:kunta4500k_2023", r.URL.Query().Get("typeName"))
		_, _ = io.WriteString(w, `{"features":[
			{"geometry":{"type":"MultiPolygon","coordinates":[[[[24.0,60.0],[25.0,60.0],[25.0,61.0],[24.0,61.0],[24.0,60.0]]]]},
			 "properties":{"kunta":"091","nimi":"Helsinki"}},
			{"geometry":null,"properties":{"kunta":"999","nimi":"Nowhere"}}
		]}`)
	}))
	defer srv.Close()

	c := testClient("statfin", srv.URL)
	got, err := NewStatisticsProvider(c, c, "").Boundaries(context.Background(), 2023)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "091", got[0].Code)
	require.NotNil(t, got[0].Lat)
	assert.InDelta(t, 60.5, *got[0].Lat, 1e-9)
	assert.InDelta(t, 24.5, *got[0].Lon, 1e-9)
	assert.Nil(t, got[1].Lat)
}

func TestStatisticsProvider_Indicator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/tables/11ra/data", r.URL.Path)
		assert.Equal(t, "M408", r.URL.Query().Get("valuecodes[Tiedot]"))
		assert.Equal(t, "2023", r.URL.Query().Get("valuecodes[Vuosi]"))
		_, _ = io.WriteString(w, `{
			"class":"dataset",
			"id":["Alue","Tiedot","Vuosi"],
			"size":[3,1,1],
			"dimension":{
				"Alue":{"category":{"index":{"SSS":0,"KU091":1,"KU837":2}}},
				"Tiedot":{"category":{"index":{"M408":0}}},
				"Vuosi":{"category":{"index":["2023"]}}
			},
			"value":[5600000, 664028, null]
		}`)
	}))
	defer srv.Close()

	c := testClient("statfin", srv.URL)
	got, err := NewStatisticsProvider(c, c, "").Indicator(context.Background(), 2023, "M408")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "091", got[0].MunicipalityCode)
	assert.Equal(t, 664028.0, *got[0].Value)
	assert.Equal(t, "837", got[1].MunicipalityCode)
	assert.Nil(t, got[1].Value)
}

func TestStatisticsProvider_IndicatorWithoutAreaDimension(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, `{"id":["Tiedot"],"size":[1],"dimension":{},"value":[1]}`))
	defer srv.Close()

	c := testClient("statfin", srv.URL)
	_, err := NewStatisticsProvider(c, c, "").Indicator(context.Background(), 2023, "M408")
	assert.ErrorIs(t, err, errNoAreaDimension)
}

func TestStatisticsProvider_IndicatorNegativePositionIsMalformed(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, `{
		"id":["Alue","Vuosi","Tiedot"],
		"size":[2,1,1],
		"dimension":{"Alue":{"category":{"index":{"KU091":-1,"KU049":1}}}},
		"value":[10,20]
	}`))
	defer srv.Close()

	c := testClient("statfin", srv.URL)
	var (
		got []source.IndicatorValue
		err error
	)
	require.NotPanics(t, func() {
		got, err = NewStatisticsProvider(c, c, "").Indicator(context.Background(), 2023, "M408")
	})
	assert.ErrorIs(t, err, errMalformedBody)
	assert.Empty(t, got)
}
