package cluster

import (
	"log"

	"github.com/morpho-data/cytoflow/field"
	"github.com/morpho-data/cytoflow/internal/advect"
)

// Border correction tuning. Trajectories that drift to the image edge can
// fuse unrelated skeletons inside a thin border band; the band is either
// split where the boundary output fires or opened morphologically.
const (
	borderBandWidth   = 5
	borderOpenRounds  = 3
	boundarySplitOver = -1.0
)

// SkeletonLabel labels instances in the alternate regime: the rounded
// landing positions form a thin "skeleton" mask of converged points, edge
// defects in a 5-pixel border band are severed, the corrected skeleton is
// labeled with 4-connected components, and labels propagate back to source
// pixels through the rounded-position lookup. boundary may be nil; when
// present it indicates splits directly, which is sharper than the
// morphological fallback. Planar grids only.
func SkeletonLabel(res *advect.Result, boundary *field.Scalar) *field.Labels {
	sh := res.Shape
	out := field.NewLabels(sh)
	src, bin := roundedLandings(res)
	if len(src) == 0 {
		return out
	}

	skel := make([]bool, sh.Pixels())
	for _, b := range bin {
		skel[b] = true
	}

	band := borderBand(sh)
	borderPx := make([]bool, sh.Pixels())
	for i := range borderPx {
		borderPx[i] = band[i] && skel[i]
	}
	if boundary != nil {
		for i := range borderPx {
			if borderPx[i] && float64(boundary.Data[i]) > boundarySplitOver {
				borderPx[i] = false
			}
		}
	} else {
		borderPx = binaryOpen(borderPx, sh, borderOpenRounds)
	}
	for i := range skel {
		if band[i] {
			skel[i] = borderPx[i]
		}
	}

	cc, n := LabelComponents(skel, sh)
	for k, b := range bin {
		out.Data[src[k]] = cc.Data[b]
	}
	log.Printf("[Cluster] skeleton labeling: %d components", n)
	return out
}

// borderBand marks every pixel within borderBandWidth of the image edge.
func borderBand(sh field.Shape) []bool {
	band := make([]bool, sh.Pixels())
	for y := 0; y < sh.Y; y++ {
		for x := 0; x < sh.X; x++ {
			if y < borderBandWidth || y >= sh.Y-borderBandWidth ||
				x < borderBandWidth || x >= sh.X-borderBandWidth {
				band[y*sh.X+x] = true
			}
		}
	}
	return band
}

// binaryOpen applies rounds erosions then rounds dilations with the
// 4-connected cross element. Pixels beyond the grid count as background.
func binaryOpen(mask []bool, sh field.Shape, rounds int) []bool {
	cur := make([]bool, len(mask))
	copy(cur, mask)
	for r := 0; r < rounds; r++ {
		cur = erodeCross(cur, sh)
	}
	for r := 0; r < rounds; r++ {
		cur = dilateCross(cur, sh)
	}
	return cur
}

func erodeCross(mask []bool, sh field.Shape) []bool {
	out := make([]bool, len(mask))
	for i, on := range mask {
		if !on {
			continue
		}
		z, y, x := sh.Coords(i)
		ns := axisNeighbors(sh, z, y, x)
		keep := len(ns) == 4 // edge pixels erode against the background
		for _, n := range ns {
			if !mask[n] {
				keep = false
				break
			}
		}
		out[i] = keep
	}
	return out
}

func dilateCross(mask []bool, sh field.Shape) []bool {
	out := make([]bool, len(mask))
	copy(out, mask)
	for i, on := range mask {
		if !on {
			continue
		}
		z, y, x := sh.Coords(i)
		for _, n := range axisNeighbors(sh, z, y, x) {
			out[n] = true
		}
	}
	return out
}
