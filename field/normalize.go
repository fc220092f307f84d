package field

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Robust normalization quantiles. The magnitude rescale pins the 99th
// percentile to unit scale; the range normalization uses the extreme
// 0.01%/99.99% quantiles so isolated spikes cannot compress the useful range.
const (
	magnitudeQuantile = 0.99
	rangeQuantileLo   = 0.0001
	rangeQuantileHi   = 0.9999
)

// RescaleMagnitude99 divides every component of v, in place, by the 99th
// percentile of the per-pixel magnitude over masked pixels. Outliers that
// would dominate a max-based rescale are ignored by construction.
// Returns false without modifying v when the percentile is not positive
// (all-zero or degenerate field).
func RescaleMagnitude99(v *Vector, m *Mask) bool {
	mags := make([]float64, 0, m.Count())
	for i, in := range m.Bits {
		if !in {
			continue
		}
		var s float64
		for a := range v.Comp {
			c := float64(v.Comp[a][i])
			s += c * c
		}
		mags = append(mags, math.Sqrt(s))
	}
	if len(mags) == 0 {
		return false
	}
	sort.Float64s(mags)
	p99 := stat.Quantile(magnitudeQuantile, stat.Empirical, mags, nil)
	if !(p99 > 0) {
		return false
	}
	inv := float32(1.0 / p99)
	for a := range v.Comp {
		comp := v.Comp[a]
		for i, in := range m.Bits {
			if in {
				comp[i] *= inv
			}
		}
	}
	return true
}

// NormalizeRange maps data, in place, so its 0.01% quantile goes to 0 and
// its 99.99% quantile goes to 1. Values outside the quantile band are not
// clipped. Returns false without modifying data when the band is degenerate
// (hi == lo), in which case the caller should treat the field as already
// normalized.
func NormalizeRange(data []float32) bool {
	vals := make([]float64, len(data))
	for i, v := range data {
		vals[i] = float64(v)
	}
	sort.Float64s(vals)
	lo := stat.Quantile(rangeQuantileLo, stat.Empirical, vals, nil)
	hi := stat.Quantile(rangeQuantileHi, stat.Empirical, vals, nil)
	if !(hi > lo) {
		return false
	}
	scale := float32(1.0 / (hi - lo))
	offset := float32(lo)
	for i := range data {
		data[i] = (data[i] - offset) * scale
	}
	return true
}
