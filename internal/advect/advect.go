package advect

import (
	"log"

	"github.com/morpho-data/cytoflow/field"
)

// DefaultIterations is the integration budget when the caller does not
// supply one. Finer effective resolutions need proportionally more steps to
// reach their convergence basins; 2D callers typically pass
// ceil(200/rescale) instead.
const DefaultIterations = 200

// Result holds the outcome of one integration pass. Pixels lists the flat
// grid index of every foreground pixel in ascending scan order; Final holds
// the landing coordinate of pixel i on each spatial axis, in (z,)y,x order.
//
// Traj, present only when trajectory recording was requested, is a single
// pre-sized buffer of steps x rank x len(Pixels) float32 values laid out
// step-major. That product is the exact memory bound; nothing grows during
// integration.
type Result struct {
	Shape  field.Shape
	Pixels []int
	Final  [][]float32
	Steps  int
	Traj   []float32
}

// TrajAt returns the recorded coordinate of pixel i on the given axis after
// integration step step (0-based). Valid only when trajectories were
// recorded.
func (r *Result) TrajAt(step, axis, i int) float32 {
	n := len(r.Pixels)
	return r.Traj[(step*len(r.Final)+axis)*n+i]
}

// PositionsGrid expands the per-pixel landing coordinates into a full grid
// aligned with the mask: one component per spatial axis, background entries
// left at sentinel zero.
func (r *Result) PositionsGrid() *field.Vector {
	out := field.NewVector(r.Shape)
	for a := range r.Final {
		for k, i := range r.Pixels {
			out.Comp[a][i] = r.Final[a][k]
		}
	}
	return out
}

// Follow integrates every foreground pixel of m along v for niter steps:
//
//	x_{t+1} = x_t + interpolate(v, x_t)
//
// All pixels advance in lockstep for the full budget rather than to a
// per-pixel convergence test; that wastes a little arithmetic but makes
// the result deterministic and the loop trivially bounded. Positions are
// clamped to the grid extent after every step, and sampling clamps
// out-of-bounds coordinates to the edge, so trajectories can never read
// outside the arrays. Follow never fails on a non-empty mask.
func Follow(v *field.Vector, m *field.Mask, niter int, recordTraj bool) *Result {
	sh := v.Shape
	if niter <= 0 {
		niter = DefaultIterations
	}
	rank := sh.Rank()

	pixels := make([]int, 0, m.Count())
	for i, in := range m.Bits {
		if in {
			pixels = append(pixels, i)
		}
	}

	pos := make([][]float32, rank)
	for a := range pos {
		pos[a] = make([]float32, len(pixels))
	}
	for k, i := range pixels {
		z, y, x := sh.Coords(i)
		if rank == 3 {
			pos[0][k] = float32(z)
			pos[1][k] = float32(y)
			pos[2][k] = float32(x)
		} else {
			pos[0][k] = float32(y)
			pos[1][k] = float32(x)
		}
	}

	res := &Result{Shape: sh, Pixels: pixels, Final: pos, Steps: niter}
	if recordTraj {
		res.Traj = make([]float32, niter*rank*len(pixels))
		log.Printf("[Advect] recording trajectories: steps=%d pixels=%d rank=%d (%d floats)",
			niter, len(pixels), rank, len(res.Traj))
	}

	for t := 0; t < niter; t++ {
		if rank == 3 {
			step3D(v, pos)
		} else {
			step2D(v, pos)
		}
		if recordTraj {
			n := len(pixels)
			for a := 0; a < rank; a++ {
				copy(res.Traj[(t*rank+a)*n:(t*rank+a+1)*n], pos[a])
			}
		}
	}
	return res
}

// step2D advances all positions by one bilinearly-sampled Euler step.
func step2D(v *field.Vector, pos [][]float32) {
	sh := v.Shape
	maxY := float32(sh.Y - 1)
	maxX := float32(sh.X - 1)
	py, px := pos[0], pos[1]
	for k := range py {
		y, x := py[k], px[k]

		y0 := int(y)
		x0 := int(x)
		if y0 > sh.Y-2 {
			y0 = sh.Y - 2
		}
		if x0 > sh.X-2 {
			x0 = sh.X - 2
		}
		if y0 < 0 {
			y0 = 0
		}
		if x0 < 0 {
			x0 = 0
		}
		fy := y - float32(y0)
		fx := x - float32(x0)

		// Degenerate single-extent axes collapse the stride so the far
		// corner reads the same cell instead of out of range.
		sy, sx := sh.X, 1
		if sh.Y == 1 {
			sy = 0
		}
		if sh.X == 1 {
			sx = 0
		}
		i00 := y0*sh.X + x0
		i01 := i00 + sx
		i10 := i00 + sy
		i11 := i10 + sx
		w00 := (1 - fy) * (1 - fx)
		w01 := (1 - fy) * fx
		w10 := fy * (1 - fx)
		w11 := fy * fx

		cy := v.Comp[0]
		cx := v.Comp[1]
		dy := w00*cy[i00] + w01*cy[i01] + w10*cy[i10] + w11*cy[i11]
		dx := w00*cx[i00] + w01*cx[i01] + w10*cx[i10] + w11*cx[i11]

		py[k] = clampf(y+dy, 0, maxY)
		px[k] = clampf(x+dx, 0, maxX)
	}
}

// step3D advances all positions by one trilinearly-sampled Euler step.
func step3D(v *field.Vector, pos [][]float32) {
	sh := v.Shape
	maxZ := float32(sh.Z - 1)
	maxY := float32(sh.Y - 1)
	maxX := float32(sh.X - 1)
	pz, py, px := pos[0], pos[1], pos[2]
	planeStride := sh.Y * sh.X
	for k := range pz {
		z, y, x := pz[k], py[k], px[k]

		z0 := int(z)
		y0 := int(y)
		x0 := int(x)
		if z0 > sh.Z-2 {
			z0 = sh.Z - 2
		}
		if y0 > sh.Y-2 {
			y0 = sh.Y - 2
		}
		if x0 > sh.X-2 {
			x0 = sh.X - 2
		}
		if z0 < 0 {
			z0 = 0
		}
		if y0 < 0 {
			y0 = 0
		}
		if x0 < 0 {
			x0 = 0
		}
		fz := z - float32(z0)
		fy := y - float32(y0)
		fx := x - float32(x0)

		sz, sy, sx := planeStride, sh.X, 1
		if sh.Z == 1 {
			sz = 0
		}
		if sh.Y == 1 {
			sy = 0
		}
		if sh.X == 1 {
			sx = 0
		}
		base := (z0*sh.Y+y0)*sh.X + x0
		var d [3]float32
		for a := 0; a < 3; a++ {
			c := v.Comp[a]
			c000 := c[base]
			c001 := c[base+sx]
			c010 := c[base+sy]
			c011 := c[base+sy+sx]
			c100 := c[base+sz]
			c101 := c[base+sz+sx]
			c110 := c[base+sz+sy]
			c111 := c[base+sz+sy+sx]

			c00 := c000*(1-fx) + c001*fx
			c01 := c010*(1-fx) + c011*fx
			c10 := c100*(1-fx) + c101*fx
			c11 := c110*(1-fx) + c111*fx
			c0 := c00*(1-fy) + c01*fy
			c1 := c10*(1-fy) + c11*fy
			d[a] = c0*(1-fz) + c1*fz
		}

		pz[k] = clampf(z+d[0], 0, maxZ)
		py[k] = clampf(y+d[1], 0, maxY)
		px[k] = clampf(x+d[2], 0, maxX)
	}
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
