package cluster

import (
	"log"
	"math"

	"github.com/morpho-data/cytoflow/internal/advect"
)

// finiteLandings returns the indices into res.Pixels whose landing
// coordinates are all finite. Pathological fields can push NaN/Inf through
// the integrator; those pixels are dropped from clustering and left
// unlabeled rather than crashing downstream.
func finiteLandings(res *advect.Result) []int {
	keep := make([]int, 0, len(res.Pixels))
	dropped := 0
	for k := range res.Pixels {
		ok := true
		for a := range res.Final {
			v := float64(res.Final[a][k])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, k)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		log.Printf("[Cluster] dropped %d pixels with non-finite landing coordinates", dropped)
	}
	return keep
}

// roundedLandings maps each finite landing position to the flat index of
// its nearest grid cell, clamped to the grid extent. src holds the flat
// index of the originating pixel, bin the flat index of its landing cell.
func roundedLandings(res *advect.Result) (src, bin []int) {
	sh := res.Shape
	keep := finiteLandings(res)
	src = make([]int, 0, len(keep))
	bin = make([]int, 0, len(keep))
	dims := [3]int{sh.Z, sh.Y, sh.X}
	for _, k := range keep {
		var c [3]int
		off := 3 - len(res.Final)
		for a := range res.Final {
			d := dims[off+a]
			r := int(math.Round(float64(res.Final[a][k])))
			if r < 0 {
				r = 0
			}
			if r > d-1 {
				r = d - 1
			}
			c[off+a] = r
		}
		src = append(src, res.Pixels[k])
		bin = append(bin, sh.Index(c[0], c[1], c[2]))
	}
	return src, bin
}
