package history

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const influxMeasurement = "feature_observation"

// InfluxConfig addresses an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether enough is configured to write.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Token != "" && c.Org != "" && c.Bucket != ""
}

// InfluxSink writes one point per feature.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

func (s *InfluxSink) Name() string { return "influxdb" }

func (s *InfluxSink) Append(ctx context.Context, b Batch) error {
	points := make([]*write.Point, 0, len(b.Features))
	for _, f := range b.Features {
		ts := f.Timestamp
		if ts.IsZero() {
			ts = b.RecordedAt
		}
		points = append(points, influxdb2.NewPoint(
			influxMeasurement,
			map[string]string{
				"dataset":  b.Dataset,
				"category": string(f.Category),
				"severity": string(f.Severity),
				"source":   f.Source,
			},
			map[string]interface{}{
				"id":            f.ID,
				"lat":           f.Geometry.Lat,
				"lon":           f.Geometry.Lon,
				"severity_rank": f.Severity.Rank(),
				"batch_id":      b.ID.String(),
			},
			ts,
		))
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influxdb write %d points: %w", len(points), err)
	}
	return nil
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
