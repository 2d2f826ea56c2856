// Package transform converts provider records into canonical features.
//
// Every function here is pure: no logging, no clock, no network. Records
// without a valid position or without their primary measurement are dropped
// and counted in Result.Dropped so callers can log the loss.
package transform

import (
	json "github.com/goccy/go-json"

	"github.com/i474232898/geodata-aggregation/internal/feature"
)

// Attribution strings stamped into Feature.Source.
const (
	SourceFMI         = "Finnish Meteorological Institute"
	SourceDigitraffic = "Fintraffic / digitraffic.fi"
	SourceFoli        = "Föli"
	SourceSYKE        = "Finnish Environment Institute SYKE"
	SourceFingrid     = "Fingrid"
	SourceStatFin     = "Statistics Finland"
)

// Result is the output of one transform: the kept features and how many
// records were dropped.
type Result struct {
	Features []feature.Feature
	Dropped  int
}

func newResult(capacity int) Result {
	return Result{Features: make([]feature.Feature, 0, capacity)}
}

func (r *Result) keep(f feature.Feature) {
	r.Features = append(r.Features, f)
}

func (r *Result) drop() {
	r.Dropped++
}

// metadata marshals v with struct field order, which keeps output stable.
func metadata(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
