package providers

import (
	"context"

	"github.com/i474232898/geodata-aggregation/internal/source"
)

// DigitrafficRailBaseURL is the Fintraffic rail data API.
const DigitrafficRailBaseURL = "https://rata.digitraffic.fi"

type trainLocation struct {
	TrainNumber   int           `json:"trainNumber"`
	DepartureDate string        `json:"departureDate"`
	Timestamp     string        `json:"timestamp"`
	Location      pointGeometry `json:"location"`
	Speed         *float64      `json:"speed"`
	Accuracy      *float64      `json:"accuracy"`
}

// TrainProvider fetches the latest GPS location of every running train.
type TrainProvider struct {
	client *Client
}

func NewTrainProvider(client *Client) *TrainProvider {
	return &TrainProvider{client: client}
}

func (p *TrainProvider) Name() string   { return p.client.Name() }
func (p *TrainProvider) Prefix() string { return source.PrefixTrain }

func (p *TrainProvider) Fetch(ctx context.Context) ([]source.TrainLocation, error) {
	if !p.client.Enabled() {
		return nil, nil
	}

	var payload []trainLocation
	u := p.client.endpoint("/api/v1/train-locations/latest/", nil)
	if err := p.client.getJSON(ctx, u, digitrafficHeader(p.client.userAgent), &payload); err != nil {
		return nil, err
	}

	out := make([]source.TrainLocation, 0, len(payload))
	for _, t := range payload {
		loc := source.TrainLocation{
			TrainNumber:   t.TrainNumber,
			DepartureDate: t.DepartureDate,
			SpeedKMH:      t.Speed,
			Accuracy:      t.Accuracy,
			Time:          parseTime(t.Timestamp),
		}
		if len(t.Location.Coordinates) >= 2 {
			loc.Lon = source.Float(t.Location.Coordinates[0])
			loc.Lat = source.Float(t.Location.Coordinates[1])
		}
		out = append(out, loc)
	}
	return out, nil
}
