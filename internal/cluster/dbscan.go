package cluster

import (
	"log"
	"math"

	"github.com/morpho-data/cytoflow/field"
	"github.com/morpho-data/cytoflow/internal/advect"
)

// DensityParams contains parameters for density clustering of sub-pixel
// landing coordinates.
type DensityParams struct {
	Eps    float64 // Neighborhood radius in pixels
	MinPts int     // Minimum neighbors (inclusive of the point) to form a core
}

// DefaultDensityParams returns the density parameters for the skeleton
// regime: minimum samples 3, with a neighborhood radius of 1+1/3 when a
// boundary output is available and sqrt(2) otherwise.
func DefaultDensityParams(haveBoundary bool) DensityParams {
	eps := math.Sqrt2
	if haveBoundary {
		eps = 1 + 1.0/3.0
	}
	return DensityParams{Eps: eps, MinPts: 3}
}

// Density labels instances by DBSCAN over the sub-pixel landing
// coordinates. Thin and small objects whose rasterized skeletons would fuse
// or fragment separate cleanly in continuous coordinate space. Cluster ids
// are assigned in scan order of the first core point of each cluster and
// neighbors are expanded in index order, so the labeling is deterministic
// for a fixed input. Noise points stay at label 0. Planar grids only.
func Density(res *advect.Result, params DensityParams) *field.Labels {
	sh := res.Shape
	out := field.NewLabels(sh)
	keep := finiteLandings(res)
	if len(keep) == 0 {
		return out
	}

	ys := make([]float64, len(keep))
	xs := make([]float64, len(keep))
	for j, k := range keep {
		ys[j] = float64(res.Final[0][k])
		xs[j] = float64(res.Final[1][k])
	}

	idx := newPointIndex(params.Eps, ys, xs)
	labels := make([]int32, len(keep)) // 0=unvisited, -1=noise, >0=cluster id
	var clusterID int32

	for i := range keep {
		if labels[i] != 0 {
			continue
		}
		neighbors := idx.regionQuery(ys, xs, i, params.Eps)
		if len(neighbors) < params.MinPts {
			labels[i] = -1
			continue
		}
		clusterID++
		expandCluster(ys, xs, idx, labels, i, neighbors, clusterID, params)
	}

	for j, k := range keep {
		if labels[j] > 0 {
			out.Data[res.Pixels[k]] = labels[j]
		}
	}
	log.Printf("[Cluster] density clustering: eps=%.3f minPts=%d clusters=%d points=%d",
		params.Eps, params.MinPts, clusterID, len(keep))
	return out
}

// expandCluster grows a cluster from a core point, queue-based.
func expandCluster(ys, xs []float64, idx *pointIndex, labels []int32,
	seed int, neighbors []int, clusterID int32, params DensityParams) {

	labels[seed] = clusterID
	for j := 0; j < len(neighbors); j++ {
		i := neighbors[j]
		if labels[i] == -1 {
			labels[i] = clusterID // noise becomes a border point
		}
		if labels[i] != 0 {
			continue
		}
		labels[i] = clusterID
		more := idx.regionQuery(ys, xs, i, params.Eps)
		if len(more) >= params.MinPts {
			neighbors = append(neighbors, more...)
		}
	}
}

// pointIndex is a regular-grid spatial index over 2D points; cell size
// matches eps so a neighborhood query scans at most a 3x3 block of cells.
type pointIndex struct {
	cellSize float64
	grid     map[int64][]int
}

func newPointIndex(cellSize float64, ys, xs []float64) *pointIndex {
	idx := &pointIndex{cellSize: cellSize, grid: make(map[int64][]int, len(ys)/4+1)}
	for i := range ys {
		id := idx.cellID(ys[i], xs[i])
		idx.grid[id] = append(idx.grid[id], i)
	}
	return idx
}

// cellID pairs the signed cell coordinates into one key using zigzag
// encoding followed by Szudzik's pairing function.
func (idx *pointIndex) cellID(y, x float64) int64 {
	return pairCells(int64(math.Floor(y/idx.cellSize)), int64(math.Floor(x/idx.cellSize)))
}

func pairCells(cy, cx int64) int64 {
	var a, b int64
	if cy >= 0 {
		a = 2 * cy
	} else {
		a = -2*cy - 1
	}
	if cx >= 0 {
		b = 2 * cx
	} else {
		b = -2*cx - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// regionQuery returns, in ascending point order, the indices of all points
// within eps of point i. The cell lists preserve insertion order (ascending
// point index) and cells are scanned in a fixed order, so a final sort is
// only needed to merge across cells.
func (idx *pointIndex) regionQuery(ys, xs []float64, i int, eps float64) []int {
	eps2 := eps * eps
	cy := int64(math.Floor(ys[i] / idx.cellSize))
	cx := int64(math.Floor(xs[i] / idx.cellSize))

	neighbors := make([]int, 0, 16)
	for dy := int64(-1); dy <= 1; dy++ {
		for dx := int64(-1); dx <= 1; dx++ {
			for _, j := range idx.grid[pairCells(cy+dy, cx+dx)] {
				ddy := ys[j] - ys[i]
				ddx := xs[j] - xs[i]
				if ddy*ddy+ddx*ddx <= eps2 {
					neighbors = append(neighbors, j)
				}
			}
		}
	}
	insertionSortInts(neighbors)
	return neighbors
}

func insertionSortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j] < a[j-1]; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}
