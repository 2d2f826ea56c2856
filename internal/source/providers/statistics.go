package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/i474232898/geodata-aggregation/internal/source"
)

// Statistics Finland endpoints: WFS boundaries and the PxWeb table API.
const (
	StatFinGeoBaseURL  = "https://geo.stat.fi"
	StatFinDataBaseURL = "https://pxdata.stat.fi"
)

// Defaults for the municipal key figures table.
const (
	DefaultStatisticsTable = "11ra"
	areaDimension          = "Alue"
	yearDimension          = "Vuosi"
	indicatorDimension     = "Tiedot"
	municipalityCodePrefix = "KU"
)

var errNoAreaDimension = errors.New("json-stat response has no area dimension")

type boundaryCollection struct {
	Features []struct {
		Geometry *struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Kunta string `json:"kunta"`
			Nimi  string `json:"nimi"`
		} `json:"properties"`
	} `json:"features"`
}

type jsonStatDataset struct {
	ID        []string `json:"id"`
	Size      []int    `json:"size"`
	Dimension map[string]struct {
		Category struct {
			Index json.RawMessage `json:"index"`
		} `json:"category"`
	} `json:"dimension"`
	Value []*float64 `json:"value"`
}

// StatisticsProvider fetches municipality boundaries and one indicator's
// values for a year. Boundaries and values come from different hosts.
type StatisticsProvider struct {
	geo   *Client
	data  *Client
	table string
}

func NewStatisticsProvider(geo, data *Client, table string) *StatisticsProvider {
	if table == "" {
		table = DefaultStatisticsTable
	}
	return &StatisticsProvider{geo: geo, data: data, table: table}
}

func (p *StatisticsProvider) Name() string   { return p.data.Name() }
func (p *StatisticsProvider) Prefix() string { return source.PrefixMunicipal }

// Boundaries returns one representative point per municipality: the centre
// of the boundary's bounding box.
func (p *StatisticsProvider) Boundaries(ctx context.Context, year int) ([]source.MunicipalityBoundary, error) {
	if !p.geo.Enabled() {
		return nil, nil
	}

	values := url.Values{}
	values.Set("service", "WFS")
	values.Set("version", "2.0.0")
	values.Set("request", "GetFeature")
	values.Set("typeName", fmt.Sprintf("tilastointialueet:kunta4500k_%d", year))
	values.Set("outputFormat", "json")
	values.Set("srsName", "EPSG:4326")

	var payload boundaryCollection
	if err := p.geo.getJSON(ctx, p.geo.endpoint("/geoserver/tilastointialueet/wfs", values), nil, &payload); err != nil {
		return nil, fmt.Errorf("boundaries %d: %w", year, err)
	}

	out := make([]source.MunicipalityBoundary, 0, len(payload.Features))
	for _, f := range payload.Features {
		b := source.MunicipalityBoundary{Code: f.Properties.Kunta, Name: f.Properties.Nimi}
		if f.Geometry != nil {
			b.Lat, b.Lon = bboxCentre(f.Geometry.Coordinates)
		}
		out = append(out, b)
	}
	return out, nil
}

// Indicator returns the indicator's value per municipality for year.
func (p *StatisticsProvider) Indicator(ctx context.Context, year int, indicator string) ([]source.IndicatorValue, error) {
	if !p.data.Enabled() {
		return nil, nil
	}

	values := url.Values{}
	values.Set("lang", "fi")
	values.Set("outputFormat", "json-stat2")
	values.Set("valuecodes["+areaDimension+"]", "*")
	values.Set("valuecodes["+yearDimension+"]", fmt.Sprint(year))
	values.Set("valuecodes["+indicatorDimension+"]", indicator)

	var ds jsonStatDataset
	u := p.data.endpoint("/api/v2/tables/"+url.PathEscape(p.table)+"/data", values)
	if err := p.data.getJSON(ctx, u, nil, &ds); err != nil {
		return nil, fmt.Errorf("indicator %s %d: %w", indicator, year, err)
	}
	return ds.areaValues()
}

// areaValues reads the value of every area category, holding all other
// dimensions at their first category.
func (ds jsonStatDataset) areaValues() ([]source.IndicatorValue, error) {
	pos := -1
	for i, id := range ds.ID {
		if id == areaDimension {
			pos = i
			break
		}
	}
	dim, ok := ds.Dimension[areaDimension]
	if pos < 0 || !ok || len(ds.Size) != len(ds.ID) {
		return nil, errNoAreaDimension
	}

	stride := 1
	for _, s := range ds.Size[pos+1:] {
		stride *= s
	}

	index, err := categoryIndex(dim.Category.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}

	codes := make([]string, 0, len(index))
	for code := range index {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return index[codes[i]] < index[codes[j]] })

	out := make([]source.IndicatorValue, 0, len(codes))
	for _, code := range codes {
		if !strings.HasPrefix(code, municipalityCodePrefix) {
			continue
		}
		at := index[code] * stride
		if at < 0 || at >= len(ds.Value) {
			continue
		}
		out = append(out, source.IndicatorValue{
			MunicipalityCode: strings.TrimPrefix(code, municipalityCodePrefix),
			Value:            ds.Value[at],
		})
	}
	return out, nil
}

// categoryIndex decodes a JSON-stat category index, which is either an
// object of code to position or an array of codes.
func categoryIndex(raw json.RawMessage) (map[string]int, error) {
	var byCode map[string]int
	if err := json.Unmarshal(raw, &byCode); err == nil {
		for code, at := range byCode {
			if at < 0 {
				return nil, fmt.Errorf("negative position %d for category %q", at, code)
			}
		}
		return byCode, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	byCode = make(map[string]int, len(list))
	for i, code := range list {
		byCode[code] = i
	}
	return byCode, nil
}

// bboxCentre returns the centre of the bounding box of every position in a
// GeoJSON coordinates array of any depth.
func bboxCentre(raw json.RawMessage) (lat, lon *float64) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	var walk func(any)
	walk = func(v any) {
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 {
			return
		}
		if x, ok := arr[0].(float64); ok {
			if len(arr) < 2 {
				return
			}
			y, ok := arr[1].(float64)
			if !ok {
				return
			}
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
			return
		}
		for _, child := range arr {
			walk(child)
		}
	}
	walk(v)

	if math.IsInf(minX, 1) {
		return nil, nil
	}
	return source.Float((minY + maxY) / 2), source.Float((minX + maxX) / 2)
}
