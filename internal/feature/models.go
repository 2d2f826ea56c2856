package feature

import (
	"math"
	"time"

	json "github.com/goccy/go-json"
)

// Category is the domain a feature belongs to.
type Category string

const (
	CategorySnow        Category = "snow"
	CategoryIce         Category = "ice"
	CategoryWeather     Category = "weather"
	CategoryRoadWeather Category = "road-weather"
	CategoryTraffic     Category = "traffic"
	CategoryTrain       Category = "train"
	CategoryTransit     Category = "transit"
	CategoryGrid        Category = "grid"
	CategoryStatistics  Category = "statistics"
)

// Severity is the normalized ordinal attached to every feature.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities so the stronger of two rules can be picked.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Max returns the more severe of a and b.
func Max(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Point is a WGS-84 coordinate pair.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the point can be placed on a map.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// PointFrom builds a point from optional coordinates. ok is false when either
// coordinate is missing or the result is not a valid position.
func PointFrom(lat, lon *float64) (Point, bool) {
	if lat == nil || lon == nil {
		return Point{}, false
	}
	p := Point{Lat: *lat, Lon: *lon}
	return p, p.Valid()
}

// Feature is the canonical, classified output unit shared by all datasets.
type Feature struct {
	ID             string          `json:"id"`
	Geometry       Point           `json:"geometry"`
	Category       Category        `json:"category"`
	Severity       Severity        `json:"severity"`
	Classification Bucket          `json:"classification,omitempty"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	LocationName   string          `json:"locationName,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	EndTime        *time.Time      `json:"endTime,omitempty"`
	Source         string          `json:"source"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// SourceStatus describes how one upstream source contributed to a collection.
type SourceStatus struct {
	Name     string `json:"name"`
	Features int    `json:"features"`
	Dropped  int    `json:"dropped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Meta carries the coarse health of a collection alongside its counts.
type Meta struct {
	Dataset      string         `json:"dataset"`
	Count        int            `json:"count"`
	Deduplicated int            `json:"deduplicated,omitempty"`
	FetchedAt    time.Time      `json:"fetchedAt"`
	Degraded     bool           `json:"degraded"`
	Sources      []SourceStatus `json:"sources,omitempty"`
}

// Collection is an ordered feature sequence plus metadata. Order follows
// source priority and is not otherwise meaningful.
type Collection struct {
	Features []Feature `json:"features"`
	Meta     Meta      `json:"metadata"`
}

// Empty returns a well-formed collection with no features.
func Empty(dataset string, fetchedAt time.Time) Collection {
	return Collection{
		Features: []Feature{},
		Meta: Meta{
			Dataset:   dataset,
			FetchedAt: fetchedAt,
		},
	}
}

// Degraded reports whether at least one source failed while producing the
// collection. The cache uses it to pick a short TTL.
func (c Collection) Degraded() bool {
	return c.Meta.Degraded
}
