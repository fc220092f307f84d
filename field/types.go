package field

import "fmt"

// Shape describes the spatial extent of a grid. A Shape is either planar
// (rank 2, Z normalized to 1) or volumetric (rank 3). All grids in a single
// reconstruction call share one Shape, so downstream code branches on
// Rank() exactly once instead of inspecting slice lengths ad hoc.
type Shape struct {
	Z, Y, X int
	rank    int
}

// Planar returns a rank-2 shape of Y rows by X columns.
func Planar(y, x int) Shape {
	return Shape{Z: 1, Y: y, X: x, rank: 2}
}

// Volumetric returns a rank-3 shape of Z planes by Y rows by X columns.
func Volumetric(z, y, x int) Shape {
	return Shape{Z: z, Y: y, X: x, rank: 3}
}

// Rank returns the spatial rank: 2 for planar shapes, 3 for volumetric.
func (s Shape) Rank() int { return s.rank }

// Pixels returns the total number of grid cells.
func (s Shape) Pixels() int { return s.Z * s.Y * s.X }

// Equal reports whether two shapes have identical rank and extents.
func (s Shape) Equal(o Shape) bool {
	return s.rank == o.rank && s.Z == o.Z && s.Y == o.Y && s.X == o.X
}

// Index converts (z, y, x) coordinates to a flat C-order index.
// For planar shapes pass z=0.
func (s Shape) Index(z, y, x int) int {
	return (z*s.Y+y)*s.X + x
}

// Coords converts a flat index back to (z, y, x) coordinates.
func (s Shape) Coords(i int) (z, y, x int) {
	x = i % s.X
	i /= s.X
	y = i % s.Y
	z = i / s.Y
	return
}

// String renders the shape the way it appears in log lines.
func (s Shape) String() string {
	if s.rank == 2 {
		return fmt.Sprintf("%dx%d", s.Y, s.X)
	}
	return fmt.Sprintf("%dx%dx%d", s.Z, s.Y, s.X)
}

// Scalar is a real-valued grid: cell probability, signed boundary distance,
// or boundary likelihood, depending on which input it carries. Data is flat
// C-order (z-major, then y, then x).
type Scalar struct {
	Shape Shape
	Data  []float32
}

// NewScalar allocates a zero-filled scalar grid.
func NewScalar(s Shape) *Scalar {
	return &Scalar{Shape: s, Data: make([]float32, s.Pixels())}
}

// Vector is a per-pixel flow field with one component per spatial axis,
// ordered (Z,)Y,X to match Shape. Components are stored as separate flat
// planes so a single component can be sampled without striding.
type Vector struct {
	Shape Shape
	Comp  [][]float32
}

// NewVector allocates a zero-filled vector grid with Rank() components.
func NewVector(s Shape) *Vector {
	comp := make([][]float32, s.Rank())
	for a := range comp {
		comp[a] = make([]float32, s.Pixels())
	}
	return &Vector{Shape: s, Comp: comp}
}

// Clone returns a deep copy. Callers that condition or rescale a field
// always work on a clone; the input field is never mutated in place.
func (v *Vector) Clone() *Vector {
	out := NewVector(v.Shape)
	for a := range v.Comp {
		copy(out.Comp[a], v.Comp[a])
	}
	return out
}

// MaskedScale returns a copy of v with every component zeroed outside the
// mask and multiplied by scale inside it.
func (v *Vector) MaskedScale(m *Mask, scale float32) *Vector {
	out := NewVector(v.Shape)
	for a := range v.Comp {
		src, dst := v.Comp[a], out.Comp[a]
		for i, in := range m.Bits {
			if in {
				dst[i] = src[i] * scale
			}
		}
	}
	return out
}

// Mask is a boolean foreground grid derived from a Scalar by the seed
// selector. It is never edited after derivation.
type Mask struct {
	Shape Shape
	Bits  []bool
}

// NewMask allocates an all-background mask.
func NewMask(s Shape) *Mask {
	return &Mask{Shape: s, Bits: make([]bool, s.Pixels())}
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Any reports whether the mask has at least one foreground pixel.
func (m *Mask) Any() bool {
	for _, b := range m.Bits {
		if b {
			return true
		}
	}
	return false
}

// Labels is an integer instance grid: 0 is background, positive values are
// instance ids. After sanitization the ids densely cover 1..K.
type Labels struct {
	Shape Shape
	Data  []int32
}

// NewLabels allocates an all-background label grid.
func NewLabels(s Shape) *Labels {
	return &Labels{Shape: s, Data: make([]int32, s.Pixels())}
}

// Max returns the largest label id present.
func (l *Labels) Max() int32 {
	var m int32
	for _, v := range l.Data {
		if v > m {
			m = v
		}
	}
	return m
}

// Clone returns a deep copy of the label grid.
func (l *Labels) Clone() *Labels {
	out := NewLabels(l.Shape)
	copy(out.Data, l.Data)
	return out
}
