package advect

import (
	"math"
	"testing"

	"github.com/morpho-data/cytoflow/field"
)

// radialField2D builds a unit vector field pointing toward (cy, cx) and a
// mask covering pixels within radius of the center.
func radialField2D(h, w int, cy, cx, radius float64) (*field.Vector, *field.Mask) {
	sh := field.Planar(h, w)
	v := field.NewVector(sh)
	m := field.NewMask(sh)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			dy, dx := cy-float64(y), cx-float64(x)
			r := math.Hypot(dy, dx)
			if r <= radius {
				m.Bits[i] = true
			}
			if r > 0 {
				v.Comp[0][i] = float32(dy / r)
				v.Comp[1][i] = float32(dx / r)
			}
		}
	}
	return v, m
}

func TestFollow_ConvergesToCenter(t *testing.T) {
	v, m := radialField2D(31, 31, 15, 15, 10)
	res := Follow(v, m, 200, false)

	if len(res.Pixels) != m.Count() {
		t.Fatalf("expected %d integrated pixels, got %d", m.Count(), len(res.Pixels))
	}
	for k := range res.Pixels {
		dy := float64(res.Final[0][k]) - 15
		dx := float64(res.Final[1][k]) - 15
		if math.Hypot(dy, dx) > 1.5 {
			t.Fatalf("pixel %d landed %.2f from center (y=%v x=%v)",
				k, math.Hypot(dy, dx), res.Final[0][k], res.Final[1][k])
		}
	}
}

func TestFollow_PositionsStayInBounds(t *testing.T) {
	// Field pointing hard off-grid: clamping must hold every position
	// inside the extent at every step.
	sh := field.Planar(8, 8)
	v := field.NewVector(sh)
	m := field.NewMask(sh)
	for i := range m.Bits {
		m.Bits[i] = true
		v.Comp[0][i] = -3
		v.Comp[1][i] = 5
	}
	res := Follow(v, m, 50, true)
	for st := 0; st < res.Steps; st++ {
		for k := range res.Pixels {
			y := res.TrajAt(st, 0, k)
			x := res.TrajAt(st, 1, k)
			if y < 0 || y > 7 || x < 0 || x > 7 {
				t.Fatalf("step %d pixel %d out of bounds: y=%v x=%v", st, k, y, x)
			}
		}
	}
}

func TestFollow_TrajectoryBufferSize(t *testing.T) {
	v, m := radialField2D(16, 16, 8, 8, 5)
	res := Follow(v, m, 40, true)
	want := 40 * 2 * len(res.Pixels)
	if len(res.Traj) != want {
		t.Fatalf("trajectory buffer: got %d floats, want %d", len(res.Traj), want)
	}
	if res2 := Follow(v, m, 40, false); res2.Traj != nil {
		t.Error("trajectory buffer allocated without being requested")
	}
}

func TestFollow_3DConverges(t *testing.T) {
	sh := field.Volumetric(9, 9, 9)
	v := field.NewVector(sh)
	m := field.NewMask(sh)
	for z := 0; z < 9; z++ {
		for y := 0; y < 9; y++ {
			for x := 0; x < 9; x++ {
				i := sh.Index(z, y, x)
				dz, dy, dx := 4-float64(z), 4-float64(y), 4-float64(x)
				r := math.Sqrt(dz*dz + dy*dy + dx*dx)
				if r <= 3.5 {
					m.Bits[i] = true
				}
				if r > 0 {
					v.Comp[0][i] = float32(dz / r)
					v.Comp[1][i] = float32(dy / r)
					v.Comp[2][i] = float32(dx / r)
				}
			}
		}
	}
	res := Follow(v, m, 200, false)
	for k := range res.Pixels {
		dz := float64(res.Final[0][k]) - 4
		dy := float64(res.Final[1][k]) - 4
		dx := float64(res.Final[2][k]) - 4
		if math.Sqrt(dz*dz+dy*dy+dx*dx) > 1.5 {
			t.Fatalf("pixel %d landed %.2f from center", k, math.Sqrt(dz*dz+dy*dy+dx*dx))
		}
	}
}

func TestPositionsGrid_BackgroundZero(t *testing.T) {
	v, m := radialField2D(12, 12, 6, 6, 3)
	res := Follow(v, m, 20, false)
	grid := res.PositionsGrid()
	for i, in := range m.Bits {
		if !in && (grid.Comp[0][i] != 0 || grid.Comp[1][i] != 0) {
			t.Fatalf("background pixel %d has nonzero position", i)
		}
	}
	// Foreground entries carry the landing coordinates.
	k0 := res.Pixels[0]
	if grid.Comp[0][k0] != res.Final[0][0] {
		t.Errorf("positions grid does not match per-pixel landing positions")
	}
}
