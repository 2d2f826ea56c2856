package transform

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/i474232898/geodata-aggregation/internal/common"
	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/source"
)

const (
	nominalFrequencyHz   = 50.0
	frequencyHighDevHz   = 0.1
	frequencyMediumDevHz = 0.05
)

type gridMeta struct {
	DatasetID int      `json:"datasetId"`
	Unit      string   `json:"unit,omitempty"`
	Value     float64  `json:"value"`
	Deviation *float64 `json:"deviationHz,omitempty"`
}

// Grid places every reading on anchor, since grid readings are national.
func Grid(readings []source.GridReading, anchor feature.Point) Result {
	res := newResult(len(readings))
	for _, r := range readings {
		if !anchor.Valid() || r.Value == nil {
			res.drop()
			continue
		}

		value := *r.Value
		severity := feature.SeverityLow
		var deviation *float64
		if r.DatasetID == source.GridFrequencyDatasetID {
			d := math.Abs(value - nominalFrequencyHz)
			deviation = &d
			severity = frequencySeverity(d)
		}

		var end *time.Time
		if !r.End.IsZero() {
			e := r.End
			end = &e
		}

		res.keep(feature.Feature{
			ID:          source.PrefixGrid + strconv.Itoa(r.DatasetID),
			Geometry:    anchor,
			Category:    feature.CategoryGrid,
			Severity:    severity,
			Title:       r.Name,
			Description: common.JoinNonEmpty(" ", fmt.Sprintf("%s: %s", r.Name, common.FormatFloat(value)), r.Unit),
			Timestamp:   r.Start,
			EndTime:     end,
			Source:      SourceFingrid,
			Metadata:    metadata(gridMeta{DatasetID: r.DatasetID, Unit: r.Unit, Value: value, Deviation: deviation}),
		})
	}
	return res
}

func frequencySeverity(deviationHz float64) feature.Severity {
	switch {
	case deviationHz >= frequencyHighDevHz:
		return feature.SeverityHigh
	case deviationHz >= frequencyMediumDevHz:
		return feature.SeverityMedium
	default:
		return feature.SeverityLow
	}
}
