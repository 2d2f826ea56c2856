package providers

import (
	"context"
	"fmt"
	"net/url"

	json "github.com/goccy/go-json"

	"github.com/i474232898/geodata-aggregation/internal/source"
)

// TrafficSituationTypes are queried one request each.
var TrafficSituationTypes = []string{
	"TRAFFIC_ANNOUNCEMENT",
	"EXEMPTED_TRANSPORT",
	"WEIGHT_RESTRICTION",
	"ROAD_WORK",
}

type trafficMessageCollection struct {
	Features []struct {
		Geometry *struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			SituationID   string `json:"situationId"`
			SituationType string `json:"situationType"`
			Announcements []struct {
				Title    string `json:"title"`
				Comment  string `json:"comment"`
				Location struct {
					Description string `json:"description"`
				} `json:"location"`
				LocationDetails struct {
					RoadAddressLocation struct {
						PrimaryPoint struct {
							RoadName string `json:"roadName"`
						} `json:"primaryPoint"`
					} `json:"roadAddressLocation"`
				} `json:"locationDetails"`
				TimeAndDuration struct {
					StartTime string `json:"startTime"`
					EndTime   string `json:"endTime"`
				} `json:"timeAndDuration"`
			} `json:"announcements"`
		} `json:"properties"`
	} `json:"features"`
}

// firstPosition walks nested GeoJSON coordinate arrays down to the first
// [lon, lat] pair, whatever the geometry type.
func firstPosition(raw json.RawMessage) (lat, lon *float64) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil
	}
	for {
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 {
			return nil, nil
		}
		if x, ok := arr[0].(float64); ok {
			if len(arr) < 2 {
				return nil, nil
			}
			y, ok := arr[1].(float64)
			if !ok {
				return nil, nil
			}
			return source.Float(y), source.Float(x)
		}
		v = arr[0]
	}
}

// TrafficProvider fetches active traffic messages, one request per situation
// type. A failing situation type only removes its own messages.
type TrafficProvider struct {
	client *Client
	types  []string
}

func NewTrafficProvider(client *Client, situationTypes []string) *TrafficProvider {
	if len(situationTypes) == 0 {
		situationTypes = TrafficSituationTypes
	}
	return &TrafficProvider{client: client, types: situationTypes}
}

func (p *TrafficProvider) Name() string   { return p.client.Name() }
func (p *TrafficProvider) Prefix() string { return source.PrefixTraffic }

func (p *TrafficProvider) Fetch(ctx context.Context) ([]source.TrafficMessage, error) {
	if !p.client.Enabled() {
		return nil, nil
	}

	tasks := make([]func(context.Context) ([]source.TrafficMessage, error), 0, len(p.types))
	for _, st := range p.types {
		tasks = append(tasks, func(ctx context.Context) ([]source.TrafficMessage, error) {
			return p.fetchType(ctx, st)
		})
	}
	return fanOut(ctx, len(tasks), tasks)
}

func (p *TrafficProvider) fetchType(ctx context.Context, situationType string) ([]source.TrafficMessage, error) {
	values := url.Values{}
	values.Set("inactiveHours", "0")
	values.Set("includeAreaGeometry", "false")
	values.Set("situationType", situationType)

	var payload trafficMessageCollection
	u := p.client.endpoint("/api/traffic-message/v1/messages", values)
	if err := p.client.getJSON(ctx, u, digitrafficHeader(p.client.userAgent), &payload); err != nil {
		return nil, fmt.Errorf("situation type %s: %w", situationType, err)
	}

	out := make([]source.TrafficMessage, 0, len(payload.Features))
	for _, f := range payload.Features {
		msg := source.TrafficMessage{
			SituationID:   f.Properties.SituationID,
			SituationType: f.Properties.SituationType,
		}
		if msg.SituationType == "" {
			msg.SituationType = situationType
		}
		if f.Geometry != nil {
			msg.Lat, msg.Lon = firstPosition(f.Geometry.Coordinates)
		}
		if len(f.Properties.Announcements) > 0 {
			a := f.Properties.Announcements[0]
			msg.Title = a.Title
			msg.Comment = a.Comment
			msg.RoadName = a.LocationDetails.RoadAddressLocation.PrimaryPoint.RoadName
			if msg.RoadName == "" {
				msg.RoadName = a.Location.Description
			}
			msg.Start = parseTime(a.TimeAndDuration.StartTime)
			if end := parseTime(a.TimeAndDuration.EndTime); !end.IsZero() {
				msg.End = &end
			}
		}
		out = append(out, msg)
	}
	return out, nil
}
