package feature

import (
	"time"

	json "github.com/goccy/go-json"
)

// GeoJSONCollection is the presentation form of a Collection.
type GeoJSONCollection struct {
	Type     string           `json:"type"`
	Features []GeoJSONFeature `json:"features"`
	Metadata Meta             `json:"metadata"`
}

type GeoJSONFeature struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Geometry   GeoJSONPoint      `json:"geometry"`
	Properties GeoJSONProperties `json:"properties"`
}

type GeoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type GeoJSONProperties struct {
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

// GeoJSON converts a collection into a GeoJSON FeatureCollection.
func (c Collection) GeoJSON() GeoJSONCollection {
	out := GeoJSONCollection{
		Type:     "FeatureCollection",
		Features: make([]GeoJSONFeature, 0, len(c.Features)),
		Metadata: c.Meta,
	}
	for _, f := range c.Features {
		out.Features = append(out.Features, GeoJSONFeature{
			Type: "Feature",
			ID:   f.ID,
			Geometry: GeoJSONPoint{
				Type:        "Point",
				Coordinates: [2]float64{f.Geometry.Lon, f.Geometry.Lat},
			},
			Properties: GeoJSONProperties{
				Category:       f.Category,
				Severity:       f.Severity,
				Classification: f.Classification,
				Title:          f.Title,
				Description:    f.Description,
				LocationName:   f.LocationName,
				Timestamp:      f.Timestamp,
				EndTime:        f.EndTime,
				Source:         f.Source,
				Metadata:       f.Metadata,
			},
		})
	}
	return out
}
