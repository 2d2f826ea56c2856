package providers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/i474232898/geodata-aggregation/internal/source"
)

// FoliBaseURL is the Turku region public transport open data API.
const FoliBaseURL = "https://data.foli.fi"

type foliVehicleMonitoring struct {
	Status string `json:"status"`
	Result struct {
		Vehicles map[string]foliVehicle `json:"vehicles"`
	} `json:"result"`
}

type foliVehicle struct {
	Monitored         bool     `json:"monitored"`
	RecordedAtTime    int64    `json:"recordedattime"`
	VehicleRef        string   `json:"vehicleref"`
	PublishedLineName string   `json:"publishedlinename"`
	DestinationName   string   `json:"destinationname"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	DelaySecs         *float64 `json:"delaysecs"`
}

// TransitProvider fetches monitored bus positions from the SIRI vehicle
// monitoring feed.
type TransitProvider struct {
	client *Client
}

func NewTransitProvider(client *Client) *TransitProvider {
	return &TransitProvider{client: client}
}

func (p *TransitProvider) Name() string   { return p.client.Name() }
func (p *TransitProvider) Prefix() string { return source.PrefixTransit }

func (p *TransitProvider) Fetch(ctx context.Context) ([]source.TransitVehicle, error) {
	if !p.client.Enabled() {
		return nil, nil
	}

	var payload foliVehicleMonitoring
	if err := p.client.getJSON(ctx, p.client.endpoint("/siri/vm", nil), nil, &payload); err != nil {
		return nil, err
	}
	if payload.Status != "" && payload.Status != "OK" {
		return nil, fmt.Errorf("%s: feed status %q", p.client.Name(), payload.Status)
	}

	// Vehicles arrive keyed by id; sort so output order is stable.
	keys := make([]string, 0, len(payload.Result.Vehicles))
	for k := range payload.Result.Vehicles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]source.TransitVehicle, 0, len(keys))
	for _, k := range keys {
		v := payload.Result.Vehicles[k]
		if !v.Monitored {
			continue
		}
		ref := v.VehicleRef
		if ref == "" {
			ref = k
		}
		var ts time.Time
		if v.RecordedAtTime > 0 {
			ts = time.Unix(v.RecordedAtTime, 0).UTC()
		}
		out = append(out, source.TransitVehicle{
			VehicleRef:      ref,
			LineName:        v.PublishedLineName,
			DestinationName: v.DestinationName,
			Lat:             v.Latitude,
			Lon:             v.Longitude,
			DelaySeconds:    v.DelaySecs,
			Time:            ts,
		})
	}
	return out, nil
}
