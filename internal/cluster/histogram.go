package cluster

import (
	"log"
	"sort"

	"github.com/morpho-data/cytoflow/field"
	"github.com/morpho-data/cytoflow/internal/advect"
)

// Histogram flood-fill tuning. Seeds are bins that are local maxima of the
// landing-count grid within a 5-wide window and hold more than seedMinCount
// landings; seed regions then grow for expandRounds rounds into adjacent
// bins holding more than growMinCount landings.
const (
	seedMinCount    = 10
	growMinCount    = 2
	expandRounds    = 5
	maxFilterHalf   = 2
	bigMaskFraction = 0.4
)

// Histogram labels instances in the default regime: landing positions are
// binned into an occupancy grid at pixel resolution, locally-dense bins
// seed instance cores, cores flood-fill into their dense neighborhoods,
// and labels propagate back to source pixels through the rounded-position
// lookup. Any label covering more than bigMaskFraction of the grid is
// assumed to be a merged background artifact and removed.
func Histogram(res *advect.Result) *field.Labels {
	sh := res.Shape
	out := field.NewLabels(sh)
	src, bin := roundedLandings(res)
	if len(src) == 0 {
		return out
	}

	counts := make([]int32, sh.Pixels())
	for _, b := range bin {
		counts[b]++
	}
	cmax := maxFilter(counts, sh, maxFilterHalf)

	// Seed bins: local maxima with enough mass, strongest first. Ties
	// break on flat index so labeling is deterministic.
	seeds := make([]int, 0, 64)
	for i, c := range counts {
		if c > seedMinCount && c == cmax[i] {
			seeds = append(seeds, i)
		}
	}
	sort.Slice(seeds, func(i, j int) bool {
		if counts[seeds[i]] != counts[seeds[j]] {
			return counts[seeds[i]] > counts[seeds[j]]
		}
		return seeds[i] < seeds[j]
	})

	binLabel := make([]int32, sh.Pixels())
	var next int32
	frontier := make([]int, 0, 256)
	var grown []int
	for _, s := range seeds {
		if binLabel[s] != 0 {
			continue // absorbed by a stronger seed
		}
		next++
		binLabel[s] = next
		frontier = append(frontier[:0], s)
		for round := 0; round < expandRounds && len(frontier) > 0; round++ {
			grown = grown[:0]
			for _, i := range frontier {
				z, y, x := sh.Coords(i)
				for _, n := range boxNeighbors(sh, z, y, x) {
					if binLabel[n] == 0 && counts[n] > growMinCount {
						binLabel[n] = next
						grown = append(grown, n)
					}
				}
			}
			frontier = append(frontier[:0], grown...)
		}
	}

	for k, b := range bin {
		out.Data[src[k]] = binLabel[b]
	}

	removeOversized(out, next)
	if next > 0 {
		log.Printf("[Cluster] histogram flood-fill: %d seeds, %d labels", len(seeds), next)
	}
	return out
}

// removeOversized clears any label whose pixel count exceeds
// bigMaskFraction of the whole grid.
func removeOversized(l *field.Labels, maxLabel int32) {
	if maxLabel == 0 {
		return
	}
	counts := make([]int, maxLabel+1)
	for _, v := range l.Data {
		if v > 0 {
			counts[v]++
		}
	}
	big := int(bigMaskFraction * float64(l.Shape.Pixels()))
	drop := make([]bool, maxLabel+1)
	dropped := false
	for id, c := range counts {
		if id > 0 && c > big {
			drop[id] = true
			dropped = true
			log.Printf("[Cluster] removing oversized label %d (%d pixels, limit %d)", id, c, big)
		}
	}
	if !dropped {
		return
	}
	for i, v := range l.Data {
		if v > 0 && drop[v] {
			l.Data[i] = 0
		}
	}
}

// maxFilter computes a (2*half+1)-wide separable running maximum along
// every axis. Max filters are separable, so filtering each axis in turn
// equals the full box-window maximum.
func maxFilter(data []int32, sh field.Shape, half int) []int32 {
	cur := make([]int32, len(data))
	copy(cur, data)
	tmp := make([]int32, len(data))

	axes := [][2]int{{sh.X, 1}, {sh.Y, sh.X}}
	if sh.Rank() == 3 {
		axes = append(axes, [2]int{sh.Z, sh.Y * sh.X})
	}
	for _, ax := range axes {
		extent, stride := ax[0], ax[1]
		for i := range cur {
			pos := (i / stride) % extent
			m := cur[i]
			for d := -half; d <= half; d++ {
				p := pos + d
				if d == 0 || p < 0 || p >= extent {
					continue
				}
				if v := cur[i+d*stride]; v > m {
					m = v
				}
			}
			tmp[i] = m
		}
		cur, tmp = tmp, cur
	}
	return cur
}

// boxNeighbors returns the in-bounds full-box neighbors of (z, y, x):
// 8 in 2D, 26 in 3D.
func boxNeighbors(sh field.Shape, z, y, x int) []int {
	out := make([]int, 0, 26)
	zLo, zHi := 0, 0
	if sh.Rank() == 3 {
		zLo, zHi = -1, 1
	}
	for dz := zLo; dz <= zHi; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dz == 0 && dy == 0 && dx == 0 {
					continue
				}
				nz, ny, nx := z+dz, y+dy, x+dx
				if nz < 0 || nz >= sh.Z || ny < 0 || ny >= sh.Y || nx < 0 || nx >= sh.X {
					continue
				}
				out = append(out, sh.Index(nz, ny, nx))
			}
		}
	}
	return out
}
