package feature

import "math"

// DefaultCellSize is the dedup grid resolution in degrees (about 2 km of latitude).
const DefaultCellSize = 0.02

type cell struct {
	lat int64
	lon int64
}

func cellOf(p Point, size float64) cell {
	return cell{
		lat: int64(math.Floor(p.Lat / size)),
		lon: int64(math.Floor(p.Lon / size)),
	}
}

// Dedup collapses features that share a grid cell of the given size, keeping
// the first feature seen in each cell. Callers concatenate sources in priority
// order (most authoritative first) before calling.
//
// This is an approximate spatial join: two stations closer than the cell size
// are reported as one, and two stations a few metres apart on either side of a
// cell boundary both survive. A cellSize <= 0 falls back to DefaultCellSize.
func Dedup(features []Feature, cellSize float64) ([]Feature, int) {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}

	seen := make(map[cell]struct{}, len(features))
	kept := make([]Feature, 0, len(features))
	for _, f := range features {
		k := cellOf(f.Geometry, cellSize)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, f)
	}
	return kept, len(features) - len(kept)
}

// Concat joins feature lists in the given order.
func Concat(lists ...[]Feature) []Feature {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]Feature, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
