package field

// SeedMask thresholds a scalar grid into a foreground mask: a pixel is
// foreground when its value is strictly above tau. This is the default
// regime's seed selector.
func SeedMask(s *Scalar, tau float64) *Mask {
	m := NewMask(s.Shape)
	t := float32(tau)
	for i, v := range s.Data {
		m.Bits[i] = v > t
	}
	return m
}

// HysteresisMask thresholds with a two-level band: pixels above high seed a
// region, and pixels above low that are connected to a seed are included.
// Thin low-confidence filaments survive where a hard threshold at high
// would erase them. Connectivity is full (8 in 2D, 26 in 3D).
func HysteresisMask(s *Scalar, low, high float64) *Mask {
	sh := s.Shape
	m := NewMask(sh)
	lo, hi := float32(low), float32(high)

	// Seed queue: every pixel above the high threshold.
	queue := make([]int, 0, 256)
	for i, v := range s.Data {
		if v > hi {
			m.Bits[i] = true
			queue = append(queue, i)
		}
	}

	// Grow into the low band. Queue order is scan order, so the result is
	// deterministic (membership does not depend on traversal anyway).
	zLo, zHi := 0, 0
	if sh.Rank() == 3 {
		zLo, zHi = -1, 1
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		z, y, x := sh.Coords(i)
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
					j := sh.Index(nz, ny, nx)
					if !m.Bits[j] && s.Data[j] > lo {
						m.Bits[j] = true
						queue = append(queue, j)
					}
				}
			}
		}
	}
	return m
}
