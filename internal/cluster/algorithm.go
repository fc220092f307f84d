package cluster

import (
	"math"

	"github.com/morpho-data/cytoflow/field"
)

// Algorithm selects how landing positions are grouped into instances. The
// choice is made once per call from the regime flag and the diameter
// estimate, never re-derived mid-pipeline.
type Algorithm int

const (
	// AlgoHistogram is the default regime: bin landing positions into an
	// occupancy grid and flood-fill dense bins.
	AlgoHistogram Algorithm = iota
	// AlgoConnectivity is the skeleton regime: label the rounded landing
	// mask with 4-connected components.
	AlgoConnectivity
	// AlgoDensity is the skeleton regime for thin or small objects:
	// density clustering on sub-pixel landing coordinates.
	AlgoDensity
)

// String returns the algorithm name used in log lines.
func (a Algorithm) String() string {
	switch a {
	case AlgoHistogram:
		return "histogram"
	case AlgoConnectivity:
		return "connectivity"
	case AlgoDensity:
		return "density"
	}
	return "unknown"
}

// Choose picks the labeling algorithm. Outside skeleton mode the histogram
// algorithm always runs. In skeleton mode, objects at or below the diameter
// threshold are better separated by density in sub-pixel coordinate space
// than by raster connectivity, so density clustering is forced.
func Choose(skeletonMode bool, meanDiameter, diameterThreshold float64) Algorithm {
	if !skeletonMode {
		return AlgoHistogram
	}
	if meanDiameter <= diameterThreshold {
		return AlgoDensity
	}
	return AlgoConnectivity
}

// MeanDiameterFromDist estimates the mean object diameter from
// distance-to-boundary statistics restricted to the mask. For a disk the
// mean interior boundary distance is radius/3, so diameter = 6 x mean.
func MeanDiameterFromDist(dist *field.Scalar, m *field.Mask) float64 {
	var sum float64
	n := 0
	for i, in := range m.Bits {
		if in {
			sum += math.Abs(float64(dist.Data[i]))
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return 6 * sum / float64(n)
}

// MedianEquivalentDiameter estimates object diameter without a distance
// field: label the mask's connected components and take the median
// equivalent diameter 2*sqrt(area/pi). Used when no boundary output is
// available.
func MedianEquivalentDiameter(m *field.Mask) float64 {
	labels, n := LabelComponents(m.Bits, m.Shape)
	if n == 0 {
		return 0
	}
	areas := make([]int, n+1)
	for _, l := range labels.Data {
		if l > 0 {
			areas[l]++
		}
	}
	diams := make([]float64, 0, n)
	for _, a := range areas[1:] {
		if a > 0 {
			diams = append(diams, 2*math.Sqrt(float64(a)/math.Pi))
		}
	}
	if len(diams) == 0 {
		return 0
	}
	// Median of a small sorted slice.
	for i := 1; i < len(diams); i++ {
		for j := i; j > 0 && diams[j] < diams[j-1]; j-- {
			diams[j], diams[j-1] = diams[j-1], diams[j]
		}
	}
	mid := len(diams) / 2
	if len(diams)%2 == 1 {
		return diams[mid]
	}
	return (diams[mid-1] + diams[mid]) / 2
}
