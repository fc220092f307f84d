package field

// stencilPad is the padding applied before evaluating the divergence
// stencil, which taps up to 2 pixels away from every masked pixel.
const stencilPad = 2

// Condition prepares a planar vector field for skeleton-regime integration:
// the field is zeroed outside the mask, rescaled so its 99th-percentile
// magnitude is 1, reweighted by a range-normalized finite-difference
// divergence, and returned as a derived copy. The input field is not
// modified.
//
// Thin or small objects collapse into single-pixel attractors under plain
// flow integration; weighting by divergence spreads the attracting basin so
// the downstream clusterer can keep instances separable.
//
// degenerate is true when the divergence field could not be normalized
// (all-zero or constant); the unnormalized divergence is used as-is in that
// case rather than dividing by zero.
func Condition(v *Vector, m *Mask) (out *Vector, degenerate bool) {
	out = v.MaskedScale(m, 1)
	RescaleMagnitude99(out, m)

	div := divergence2D(out, m)
	degenerate = !NormalizeRange(div)

	for a := range out.Comp {
		comp := out.Comp[a]
		for i, in := range m.Bits {
			if in {
				comp[i] *= div[i]
			}
		}
	}
	return out, degenerate
}

// divergence2D evaluates the fixed second-order central-difference stencil
//
//	D[p] = (Ty[p+2y] + 8 Ty[p+y] - 8 Ty[p-y] - Ty[p-2y])
//	     + (Tx[p+2x] + 8 Tx[p+x] - 8 Tx[p-x] - Tx[p-2x])
//
// over masked pixels. The components are copied into a buffer padded by
// stencilPad pixels so the taps can never read outside the grid.
func divergence2D(v *Vector, m *Mask) []float32 {
	sh := v.Shape
	py := sh.Y + 2*stencilPad
	px := sh.X + 2*stencilPad
	ty := make([]float32, py*px)
	tx := make([]float32, py*px)
	for y := 0; y < sh.Y; y++ {
		for x := 0; x < sh.X; x++ {
			i := y*sh.X + x
			if !m.Bits[i] {
				continue
			}
			j := (y+stencilPad)*px + (x + stencilPad)
			ty[j] = v.Comp[0][i]
			tx[j] = v.Comp[1][i]
		}
	}

	div := make([]float32, sh.Pixels())
	for y := 0; y < sh.Y; y++ {
		for x := 0; x < sh.X; x++ {
			i := y*sh.X + x
			if !m.Bits[i] {
				continue
			}
			j := (y+stencilPad)*px + (x + stencilPad)
			div[i] = (ty[j+2*px] + 8*ty[j+px] - 8*ty[j-px] - ty[j-2*px]) +
				(tx[j+2] + 8*tx[j+1] - 8*tx[j-1] - tx[j-2])
		}
	}
	return div
}
