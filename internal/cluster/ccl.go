package cluster

import "github.com/morpho-data/cytoflow/field"

// LabelComponents labels the connected components of a boolean grid using
// axis-aligned adjacency (4-connectivity in 2D, 6-connectivity in 3D).
// Components are numbered 1..n in scan order of their first pixel, so the
// result is deterministic for a fixed input.
func LabelComponents(mask []bool, sh field.Shape) (*field.Labels, int) {
	out := field.NewLabels(sh)
	var next int32
	queue := make([]int, 0, 64)

	for start, on := range mask {
		if !on || out.Data[start] != 0 {
			continue
		}
		next++
		out.Data[start] = next
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			z, y, x := sh.Coords(i)
			for _, n := range axisNeighbors(sh, z, y, x) {
				if mask[n] && out.Data[n] == 0 {
					out.Data[n] = next
					queue = append(queue, n)
				}
			}
		}
	}
	return out, int(next)
}

// axisNeighbors returns the flat indices of the in-bounds axis neighbors of
// (z, y, x): 4 in 2D, 6 in 3D.
func axisNeighbors(sh field.Shape, z, y, x int) []int {
	out := make([]int, 0, 6)
	if y > 0 {
		out = append(out, sh.Index(z, y-1, x))
	}
	if y < sh.Y-1 {
		out = append(out, sh.Index(z, y+1, x))
	}
	if x > 0 {
		out = append(out, sh.Index(z, y, x-1))
	}
	if x < sh.X-1 {
		out = append(out, sh.Index(z, y, x+1))
	}
	if sh.Rank() == 3 {
		if z > 0 {
			out = append(out, sh.Index(z-1, y, x))
		}
		if z < sh.Z-1 {
			out = append(out, sh.Index(z+1, y, x))
		}
	}
	return out
}
