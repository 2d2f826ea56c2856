package feature

import (
	"errors"
	"math"
	"sort"
)

// Bucket is a quantile class derived from a reference distribution.
type Bucket string

const (
	BucketLow      Bucket = "low"
	BucketMedium   Bucket = "medium"
	BucketHigh     Bucket = "high"
	BucketVeryHigh Bucket = "very_high"
)

// ErrEmptyReference is returned when a classifier is built without any
// usable reference values.
var ErrEmptyReference = errors.New("classification reference set is empty")

// Severity maps a bucket onto the three-level feature severity.
func (b Bucket) Severity() Severity {
	switch b {
	case BucketVeryHigh, BucketHigh:
		return SeverityHigh
	case BucketMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ReferenceValues keeps the strictly positive, finite values of vs.
func ReferenceValues(vs []float64) []float64 {
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Classifier holds the quartile cut points of one reference distribution.
// Cut points are recomputed for every pass and never persisted.
type Classifier struct {
	q1, q2, q3 float64
}

// NewClassifier sorts a copy of ref and picks the cut points at indices
// floor(n*0.25), floor(n*0.5) and floor(n*0.75).
func NewClassifier(ref []float64) (Classifier, error) {
	n := len(ref)
	if n == 0 {
		return Classifier{}, ErrEmptyReference
	}

	sorted := make([]float64, n)
	copy(sorted, ref)
	sort.Float64s(sorted)

	return Classifier{
		q1: sorted[int(math.Floor(float64(n)*0.25))],
		q2: sorted[int(math.Floor(float64(n)*0.5))],
		q3: sorted[int(math.Floor(float64(n)*0.75))],
	}, nil
}

// Breaks returns the three cut points.
func (c Classifier) Breaks() (q1, q2, q3 float64) {
	return c.q1, c.q2, c.q3
}

// Categorize places v into its bucket.
func (c Classifier) Categorize(v float64) Bucket {
	switch {
	case v <= c.q1:
		return BucketLow
	case v <= c.q2:
		return BucketMedium
	case v <= c.q3:
		return BucketHigh
	default:
		return BucketVeryHigh
	}
}

// Categorize buckets value against ref in one call.
func Categorize(value float64, ref []float64) (Bucket, error) {
	c, err := NewClassifier(ref)
	if err != nil {
		return "", err
	}
	return c.Categorize(value), nil
}
