package providers

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/i474232898/geodata-aggregation/internal/source"
)

// SYKEBaseURL is the Finnish Environment Institute hydrology interface.
const SYKEBaseURL = "https://rajapinnat.ymparisto.fi"

const iceThicknessPath = "/api/Hydrologiarajapinta/1.1/odata/Jaanpaksuus"

type iceThicknessResponse struct {
	Value []struct {
		PaikkaID int64    `json:"Paikka_Id"`
		Aika     string   `json:"Aika"`
		Arvo     *float64 `json:"Arvo"`
		Paikka   struct {
			Nimi        string   `json:"Nimi"`
			VesistoNimi string   `json:"VesistoNimi"`
			KoordLat    *float64 `json:"KoordLat"`
			KoordLong   *float64 `json:"KoordLong"`
		} `json:"Paikka"`
	} `json:"value"`
}

// IceProvider fetches ice thickness measurements. Rows come newest first and
// only the latest measurement per site is kept.
type IceProvider struct {
	client *Client
	limit  int
}

func NewIceProvider(client *Client) *IceProvider {
	return &IceProvider{client: client, limit: 1000}
}

func (p *IceProvider) Name() string   { return p.client.Name() }
func (p *IceProvider) Prefix() string { return source.PrefixIce }

func (p *IceProvider) Fetch(ctx context.Context) ([]source.IceObservation, error) {
	if !p.client.Enabled() {
		return nil, nil
	}

	values := url.Values{}
	values.Set("$orderby", "Aika desc")
	values.Set("$top", strconv.Itoa(p.limit))
	values.Set("$expand", "Paikka")

	var payload iceThicknessResponse
	if err := p.client.getJSON(ctx, p.client.endpoint(iceThicknessPath, values), nil, &payload); err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(payload.Value))
	out := make([]source.IceObservation, 0, len(payload.Value))
	for _, row := range payload.Value {
		if _, ok := seen[row.PaikkaID]; ok {
			continue
		}
		seen[row.PaikkaID] = struct{}{}
		out = append(out, source.IceObservation{
			SiteID:      strconv.FormatInt(row.PaikkaID, 10),
			SiteName:    row.Paikka.Nimi,
			WaterBody:   row.Paikka.VesistoNimi,
			Lat:         row.Paikka.KoordLat,
			Lon:         row.Paikka.KoordLong,
			ThicknessCM: row.Arvo,
			Time:        parseLocalTime(row.Aika),
		})
	}
	return out, nil
}

// parseLocalTime accepts RFC3339 and the zone-less OData format, read as UTC.
func parseLocalTime(s string) time.Time {
	if ts := parseTime(s); !ts.IsZero() {
		return ts
	}
	if ts, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}
