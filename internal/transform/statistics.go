package transform

import (
	"fmt"

	"github.com/i474232898/geodata-aggregation/internal/common"
	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/source"
)

type municipalityMeta struct {
	Code      string         `json:"code"`
	Indicator string         `json:"indicator"`
	Value     float64        `json:"value"`
	Bucket    feature.Bucket `json:"bucket"`
}

// IndicatorReference returns the values usable as a classification reference.
func IndicatorReference(values []source.IndicatorValue) []float64 {
	vs := make([]float64, 0, len(values))
	for _, v := range values {
		if v.Value != nil {
			vs = append(vs, *v.Value)
		}
	}
	return feature.ReferenceValues(vs)
}

// Municipalities joins indicator values onto boundary points and classifies
// each value with c. Values without a matching boundary are dropped.
func Municipalities(boundaries []source.MunicipalityBoundary, values []source.IndicatorValue, c feature.Classifier, indicator string) Result {
	byCode := make(map[string]source.MunicipalityBoundary, len(boundaries))
	for _, b := range boundaries {
		byCode[b.Code] = b
	}

	res := newResult(len(values))
	for _, v := range values {
		b, found := byCode[v.MunicipalityCode]
		if !found || v.Value == nil {
			res.drop()
			continue
		}
		pt, ok := feature.PointFrom(b.Lat, b.Lon)
		if !ok {
			res.drop()
			continue
		}

		value := *v.Value
		bucket := c.Categorize(value)
		res.keep(feature.Feature{
			ID:             source.PrefixMunicipal + b.Code,
			Geometry:       pt,
			Category:       feature.CategoryStatistics,
			Severity:       bucket.Severity(),
			Classification: bucket,
			Title:          common.FirstNonEmpty(b.Name, b.Code),
			Description:    fmt.Sprintf("%s: %s", indicator, common.FormatFloat(value)),
			LocationName:   b.Name,
			Source:         SourceStatFin,
			Metadata: metadata(municipalityMeta{
				Code:      b.Code,
				Indicator: indicator,
				Value:     value,
				Bucket:    bucket,
			}),
		})
	}
	return res
}
