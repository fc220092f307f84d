package cluster

import (
	"log"
	"math"
	"sort"

	"github.com/morpho-data/cytoflow/field"
)

// predScale relates the predicted field to unit flow: the network regime
// trains vectors at 5x unit magnitude, so re-derived unit flows are
// compared against pred/5.
const predScale = 5.0

// RemoveInconsistent discards labels whose shape is inconsistent with the
// predicted vector field: for each candidate mask a reference flow is
// re-derived by heat diffusion from the mask's median center, and the label
// is cleared when the mean squared disagreement against pred/5 exceeds
// threshold. This catches merged or spurious instances whose mask could not
// have produced the observed field. Planar grids only; the check is not
// meaningful in 3D. Returns the number of labels removed.
func RemoveInconsistent(l *field.Labels, pred *field.Vector, threshold float64) int {
	maxLabel := int(l.Max())
	if maxLabel == 0 || threshold <= 0 {
		return 0
	}

	bb := boundingBoxes(l, maxLabel)
	removed := 0
	for id := 1; id <= maxLabel; id++ {
		b := bb[id]
		if b.empty() {
			continue
		}
		dy, dx, pixels := deriveFlow(l, int32(id), b)
		if len(pixels) == 0 {
			continue
		}
		var errSum float64
		for k, i := range pixels {
			ey := dy[k] - float64(pred.Comp[0][i])/predScale
			ex := dx[k] - float64(pred.Comp[1][i])/predScale
			errSum += ey*ey + ex*ex
		}
		if err := errSum / float64(len(pixels)); err > threshold {
			for _, i := range pixels {
				l.Data[i] = 0
			}
			removed++
			log.Printf("[Cluster] flow-consistency: removed label %d (error %.3f > %.3f)", id, err, threshold)
		}
	}
	return removed
}

type bbox struct {
	y0, y1, x0, x1 int // inclusive
}

func (b bbox) empty() bool { return b.y1 < b.y0 }

func boundingBoxes(l *field.Labels, maxLabel int) []bbox {
	sh := l.Shape
	bb := make([]bbox, maxLabel+1)
	for i := range bb {
		bb[i] = bbox{y0: sh.Y, y1: -1, x0: sh.X, x1: -1}
	}
	for y := 0; y < sh.Y; y++ {
		for x := 0; x < sh.X; x++ {
			id := l.Data[y*sh.X+x]
			if id <= 0 {
				continue
			}
			b := &bb[id]
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
	return bb
}

// deriveFlow simulates heat diffusion from the mask's median center inside
// the label's bounding box and returns the unit gradient per mask pixel
// together with the pixels' flat grid indices. The diffusion runs
// 2*(height+width) steps, enough for heat to reach the mask extremities.
func deriveFlow(l *field.Labels, id int32, b bbox) (dy, dx []float64, pixels []int) {
	sh := l.Shape
	h := b.y1 - b.y0 + 1
	w := b.x1 - b.x0 + 1
	ph, pw := h+2, w+2 // 1-pixel pad so the 9-point update never leaves the buffer

	inMask := make([]bool, ph*pw)
	var ys, xs []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if l.Data[(y+b.y0)*sh.X+(x+b.x0)] == id {
				inMask[(y+1)*pw+(x+1)] = true
				ys = append(ys, y)
				xs = append(xs, x)
			}
		}
	}
	if len(ys) == 0 {
		return nil, nil, nil
	}

	// Median center, snapped to the nearest mask pixel when the median
	// itself falls outside the mask.
	my := medianInt(ys)
	mx := medianInt(xs)
	ci := -1
	best := math.MaxFloat64
	for k := range ys {
		d := float64((ys[k]-my)*(ys[k]-my) + (xs[k]-mx)*(xs[k]-mx))
		if d < best {
			best = d
			ci = k
		}
	}
	center := (ys[ci]+1)*pw + (xs[ci] + 1)

	t := make([]float64, ph*pw)
	tn := make([]float64, ph*pw)
	niter := 2 * (h + w)
	for it := 0; it < niter; it++ {
		t[center]++
		for k := range ys {
			i := (ys[k]+1)*pw + (xs[k] + 1)
			tn[i] = (t[i-pw-1] + t[i-pw] + t[i-pw+1] +
				t[i-1] + t[i] + t[i+1] +
				t[i+pw-1] + t[i+pw] + t[i+pw+1]) / 9
		}
		for k := range ys {
			i := (ys[k]+1)*pw + (xs[k] + 1)
			t[i] = tn[i]
		}
	}

	dy = make([]float64, len(ys))
	dx = make([]float64, len(ys))
	pixels = make([]int, len(ys))
	for k := range ys {
		i := (ys[k]+1)*pw + (xs[k] + 1)
		gy := t[i+pw] - t[i-pw]
		gx := t[i+1] - t[i-1]
		if n := math.Hypot(gy, gx); n > 0 {
			gy /= n
			gx /= n
		}
		dy[k] = gy
		dx[k] = gx
		pixels[k] = (ys[k]+b.y0)*sh.X + (xs[k] + b.x0)
	}
	return dy, dx, pixels
}

func medianInt(a []int) int {
	s := make([]int, len(a))
	copy(s, a)
	sort.Ints(s)
	return s[len(s)/2]
}
