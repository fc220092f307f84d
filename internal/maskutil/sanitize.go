package maskutil

import (
	"log"

	"github.com/morpho-data/cytoflow/field"
)

// DisableSizeFilter disables the minimum-size filter when passed as
// minSize.
const DisableSizeFilter = -1

// Sanitize cleans a label grid in place, in this fixed order: fill
// topologically interior holes within each labeled region, discard
// instances smaller than minSize pixels (DisableSizeFilter skips this),
// and renumber the survivors to a dense 1..K range. After Sanitize,
// max(label) equals the number of distinct instances. Running Sanitize
// twice yields the same grid as running it once.
func Sanitize(l *field.Labels, minSize int) {
	maxLabel := int(l.Max())
	if maxLabel == 0 {
		return
	}

	boxes := boundingBoxes(l, maxLabel)
	for id := 1; id <= maxLabel; id++ {
		if boxes[id].set {
			fillHoles(l, int32(id), boxes[id])
		}
	}

	counts := make([]int, maxLabel+1)
	for _, v := range l.Data {
		if v > 0 {
			counts[v]++
		}
	}

	// Renumber in ascending original id order; dropped and absent ids
	// leave no gaps.
	remap := make([]int32, maxLabel+1)
	var next int32
	dropped := 0
	for id := 1; id <= maxLabel; id++ {
		if counts[id] == 0 {
			continue
		}
		if minSize != DisableSizeFilter && counts[id] < minSize {
			dropped++
			continue
		}
		next++
		remap[id] = next
	}
	for i, v := range l.Data {
		if v > 0 {
			l.Data[i] = remap[v]
		}
	}
	if dropped > 0 {
		log.Printf("[Sanitize] dropped %d instances below %d pixels, %d remain", dropped, minSize, next)
	}
}

type box struct {
	z0, z1, y0, y1, x0, x1 int
	set                    bool
}

func boundingBoxes(l *field.Labels, maxLabel int) []box {
	sh := l.Shape
	boxes := make([]box, maxLabel+1)
	for i, v := range l.Data {
		if v <= 0 {
			continue
		}
		z, y, x := sh.Coords(i)
		b := &boxes[v]
		if !b.set {
			*b = box{z0: z, z1: z, y0: y, y1: y, x0: x, x1: x, set: true}
			continue
		}
		if z < b.z0 {
			b.z0 = z
		}
		if z > b.z1 {
			b.z1 = z
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
	return boxes
}

// fillHoles reassigns to id every background pixel inside the label's
// bounding box that is not axis-connected to the box border. Background
// reaching the box border (and therefore possibly the image border) is
// never a hole. Pixels carrying other labels are left alone.
func fillHoles(l *field.Labels, id int32, b box) {
	sh := l.Shape
	dz := b.z1 - b.z0 + 1
	dy := b.y1 - b.y0 + 1
	dx := b.x1 - b.x0 + 1
	n := dz * dy * dx

	// outside marks box cells known to be connected to the box border
	// through non-id pixels.
	outside := make([]bool, n)
	stack := make([]int, 0, 2*(dy+dx))
	local := func(z, y, x int) int { return (z*dy+y)*dx + x }
	global := func(z, y, x int) int { return sh.Index(z+b.z0, y+b.y0, x+b.x0) }

	for z := 0; z < dz; z++ {
		for y := 0; y < dy; y++ {
			for x := 0; x < dx; x++ {
				onBorder := y == 0 || y == dy-1 || x == 0 || x == dx-1
				if sh.Rank() == 3 {
					onBorder = onBorder || z == 0 || z == dz-1
				}
				if onBorder && l.Data[global(z, y, x)] != id && !outside[local(z, y, x)] {
					outside[local(z, y, x)] = true
					stack = append(stack, local(z, y, x))
				}
			}
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x := i % dx
		y := (i / dx) % dy
		z := i / (dx * dy)
		for _, d := range [][3]int{{0, -1, 0}, {0, 1, 0}, {0, 0, -1}, {0, 0, 1}, {-1, 0, 0}, {1, 0, 0}} {
			nz, ny, nx := z+d[0], y+d[1], x+d[2]
			if nz < 0 || nz >= dz || ny < 0 || ny >= dy || nx < 0 || nx >= dx {
				continue
			}
			j := local(nz, ny, nx)
			if !outside[j] && l.Data[global(nz, ny, nx)] != id {
				outside[j] = true
				stack = append(stack, j)
			}
		}
	}

	// Whatever background remains unreached is fully enclosed by the label.
	for z := 0; z < dz; z++ {
		for y := 0; y < dy; y++ {
			for x := 0; x < dx; x++ {
				g := global(z, y, x)
				if l.Data[g] == 0 && !outside[local(z, y, x)] {
					l.Data[g] = id
				}
			}
		}
	}
}
