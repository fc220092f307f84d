package stitch

import (
	"fmt"
	"log"

	"github.com/morpho-data/cytoflow/field"
)

// Planes links per-plane 2D label grids into one 3D label volume. For each
// adjacent plane pair, every label in plane k+1 whose bounding box overlaps
// a label in the already-stitched plane k is scored by IoU; the best match
// at or above threshold inherits that global label, everything else gets a
// fresh one. Planes are visited once in index order with no backtracking,
// so the pass is strictly cheaper than true 3D integration but cannot
// exploit volumetric flow continuity.
func Planes(planes []*field.Labels, threshold float64) (*field.Labels, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("stitch: no planes")
	}
	base := planes[0].Shape
	if base.Rank() != 2 {
		return nil, fmt.Errorf("stitch: planes must be rank 2, got rank %d", base.Rank())
	}
	for k, p := range planes {
		if !p.Shape.Equal(base) {
			return nil, fmt.Errorf("stitch: plane %d shape %s does not match plane 0 shape %s",
				k, p.Shape, base)
		}
	}

	vol := field.NewLabels(field.Volumetric(len(planes), base.Y, base.X))
	plane := base.Pixels()

	// Plane 0 keeps its labels as the initial global ids.
	copy(vol.Data[:plane], planes[0].Data)
	nextGlobal := planes[0].Max()

	for k := 1; k < len(planes); k++ {
		prev := vol.Data[(k-1)*plane : k*plane]
		cur := planes[k].Data
		out := vol.Data[k*plane : (k+1)*plane]

		mapping := matchLabels(prev, cur, base, threshold, &nextGlobal)
		for i, id := range cur {
			if id > 0 {
				out[i] = mapping[id]
			}
		}
	}
	log.Printf("[Stitch] %d planes stitched into %d global labels (threshold %.2f)",
		len(planes), nextGlobal, threshold)
	return vol, nil
}

// matchLabels builds the current plane's label -> global label mapping.
// nextGlobal is advanced for every unmatched label; it has a single owner
// because stitching is strictly sequential.
func matchLabels(prev, cur []int32, sh field.Shape, threshold float64, nextGlobal *int32) []int32 {
	prevBoxes := labelBoxes(prev, sh)
	curBoxes := labelBoxes(cur, sh)
	prevArea := labelAreas(prev)
	curArea := labelAreas(cur)

	// Intersection counts for bbox-overlapping pairs only, accumulated in
	// one joint pass over the plane.
	type pair struct{ p, c int32 }
	inter := make(map[pair]int)
	for i := range cur {
		c, p := cur[i], prev[i]
		if c > 0 && p > 0 {
			inter[pair{p, c}]++
		}
	}

	mapping := make([]int32, len(curArea))
	for c := int32(1); c < int32(len(curArea)); c++ {
		if curArea[c] == 0 {
			continue
		}
		var bestPrev int32
		bestIoU := 0.0
		cb := curBoxes[c]
		for p := int32(1); p < int32(len(prevArea)); p++ {
			if prevArea[p] == 0 || !boxesOverlap(cb, prevBoxes[p]) {
				continue
			}
			in := inter[pair{p, c}]
			if in == 0 {
				continue
			}
			iou := float64(in) / float64(curArea[c]+prevArea[p]-in)
			// Strict > keeps ties on the lowest previous label.
			if iou > bestIoU {
				bestIoU = iou
				bestPrev = p
			}
		}
		if bestPrev > 0 && bestIoU >= threshold {
			mapping[c] = bestPrev
		} else {
			*nextGlobal++
			mapping[c] = *nextGlobal
		}
	}
	return mapping
}

type box struct {
	y0, y1, x0, x1 int
	set            bool
}

func boxesOverlap(a, b box) bool {
	if !a.set || !b.set {
		return false
	}
	return a.y0 <= b.y1 && b.y0 <= a.y1 && a.x0 <= b.x1 && b.x0 <= a.x1
}

func labelBoxes(data []int32, sh field.Shape) []box {
	var maxID int32
	for _, v := range data {
		if v > maxID {
			maxID = v
		}
	}
	boxes := make([]box, maxID+1)
	for y := 0; y < sh.Y; y++ {
		for x := 0; x < sh.X; x++ {
			id := data[y*sh.X+x]
			if id <= 0 {
				continue
			}
			b := &boxes[id]
			if !b.set {
				*b = box{y0: y, y1: y, x0: x, x1: x, set: true}
				continue
			}
			if y < b.y0 {
				b.y0 = y
			}
			if y > b.y1 {
				b.y1 = y
			}
			if x < b.x0 {
				b.x0 = x
			}
			if x > b.x1 {
				b.x1 = x
			}
		}
	}
	return boxes
}

func labelAreas(data []int32) []int {
	var maxID int32
	for _, v := range data {
		if v > maxID {
			maxID = v
		}
	}
	areas := make([]int, maxID+1)
	for _, v := range data {
		if v > 0 {
			areas[v]++
		}
	}
	return areas
}
