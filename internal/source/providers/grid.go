package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/i474232898/geodata-aggregation/internal/source"
)

// FingridBaseURL is the Fingrid open data API.
const FingridBaseURL = "https://data.fingrid.fi"

// GridDataset names one Fingrid dataset id.
type GridDataset struct {
	ID   int
	Name string
	Unit string
}

// DefaultGridDatasets are the real-time readings shown on the grid layer.
var DefaultGridDatasets = []GridDataset{
	{ID: source.GridFrequencyDatasetID, Name: "Frequency", Unit: "Hz"},
	{ID: 192, Name: "Electricity production", Unit: "MW"},
	{ID: 193, Name: "Electricity consumption", Unit: "MW"},
}

type fingridLatest struct {
	DatasetID int      `json:"datasetId"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Value     *float64 `json:"value"`
}

// GridProvider fetches the latest value of each configured dataset. The
// client must carry an API key; without one it is disabled.
type GridProvider struct {
	client   *Client
	datasets []GridDataset
}

func NewGridProvider(client *Client, datasets []GridDataset) *GridProvider {
	if len(datasets) == 0 {
		datasets = DefaultGridDatasets
	}
	return &GridProvider{client: client, datasets: datasets}
}

func (p *GridProvider) Name() string   { return p.client.Name() }
func (p *GridProvider) Prefix() string { return source.PrefixGrid }

func (p *GridProvider) Fetch(ctx context.Context) ([]source.GridReading, error) {
	if !p.client.Enabled() {
		return nil, nil
	}

	header := http.Header{}
	header.Set("x-api-key", p.client.apiKey)

	tasks := make([]func(context.Context) ([]source.GridReading, error), 0, len(p.datasets))
	for _, ds := range p.datasets {
		tasks = append(tasks, func(ctx context.Context) ([]source.GridReading, error) {
			var latest fingridLatest
			u := p.client.endpoint(fmt.Sprintf("/api/datasets/%d/data/latest", ds.ID), nil)
			if err := p.client.getJSON(ctx, u, header, &latest); err != nil {
				return nil, fmt.Errorf("dataset %d: %w", ds.ID, err)
			}
			return []source.GridReading{{
				DatasetID: ds.ID,
				Name:      ds.Name,
				Unit:      ds.Unit,
				Value:     latest.Value,
				Start:     parseTime(latest.StartTime),
				End:       parseTime(latest.EndTime),
			}}, nil
		})
	}
	return fanOut(ctx, len(tasks), tasks)
}
