package cluster

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morpho-data/cytoflow/field"
	"github.com/morpho-data/cytoflow/internal/advect"
)

// landingResult builds an advect.Result directly from source pixels and
// their landing coordinates, bypassing integration.
func landingResult(sh field.Shape, pixels []int, landY, landX []float32) *advect.Result {
	return &advect.Result{
		Shape:  sh,
		Pixels: pixels,
		Final:  [][]float32{landY, landX},
	}
}

// blockLandings adds a h x w block of source pixels at (y0, x0) that all
// land at (cy, cx).
func blockLandings(sh field.Shape, pixels []int, ly, lx []float32,
	y0, x0, h, w int, cy, cx float32) ([]int, []float32, []float32) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			pixels = append(pixels, y*sh.X+x)
			ly = append(ly, cy)
			lx = append(lx, cx)
		}
	}
	return pixels, ly, lx
}

func TestChoose(t *testing.T) {
	assert.Equal(t, AlgoHistogram, Choose(false, 3, 12))
	assert.Equal(t, AlgoDensity, Choose(true, 12, 12))
	assert.Equal(t, AlgoConnectivity, Choose(true, 20, 12))
}

func TestHistogram_TwoInstances(t *testing.T) {
	sh := field.Planar(40, 40)
	var pixels []int
	var ly, lx []float32
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 5, 5, 5, 5, 7, 7)
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 25, 25, 5, 5, 27, 27)

	labels := Histogram(landingResult(sh, pixels, ly, lx))

	a := labels.Data[5*40+5]
	b := labels.Data[25*40+25]
	require.Positive(t, a, "first block should be labeled")
	require.Positive(t, b, "second block should be labeled")
	assert.NotEqual(t, a, b, "separate basins must get distinct labels")

	// Every pixel of a block shares its block's label.
	for y := 5; y < 10; y++ {
		for x := 5; x < 10; x++ {
			assert.Equal(t, a, labels.Data[y*40+x])
		}
	}
}

func TestHistogram_NonFiniteDropped(t *testing.T) {
	sh := field.Planar(20, 20)
	var pixels []int
	var ly, lx []float32
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 3, 3, 4, 4, 5, 5)
	// One pathological pixel.
	pixels = append(pixels, 15*20+15)
	ly = append(ly, float32(math.NaN()))
	lx = append(lx, 5)

	labels := Histogram(landingResult(sh, pixels, ly, lx))
	assert.Zero(t, labels.Data[15*20+15], "non-finite landing must stay unlabeled")
	assert.Positive(t, labels.Data[3*20+3])
}

func TestHistogram_SmallBinsIgnored(t *testing.T) {
	// Fewer landings than the seed minimum: no instance.
	sh := field.Planar(20, 20)
	var pixels []int
	var ly, lx []float32
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 3, 3, 3, 3, 5, 5)
	labels := Histogram(landingResult(sh, pixels, ly, lx))
	assert.EqualValues(t, 0, labels.Max())
}

func TestLabelComponents_FourConnectivity(t *testing.T) {
	sh := field.Planar(3, 3)
	// Two pixels touching only diagonally are separate components.
	mask := make([]bool, 9)
	mask[0] = true // (0,0)
	mask[4] = true // (1,1)
	labels, n := LabelComponents(mask, sh)
	assert.Equal(t, 2, n)
	assert.NotEqual(t, labels.Data[0], labels.Data[4])
}

func TestSkeletonLabel_TwoComponents(t *testing.T) {
	sh := field.Planar(40, 40)
	var pixels []int
	var ly, lx []float32
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 8, 8, 4, 4, 10, 10)
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 25, 25, 4, 4, 27, 27)

	labels := SkeletonLabel(landingResult(sh, pixels, ly, lx), nil)
	a := labels.Data[8*40+8]
	b := labels.Data[25*40+25]
	require.Positive(t, a)
	require.Positive(t, b)
	assert.NotEqual(t, a, b)
}

func TestSkeletonLabel_BoundarySplitsBorderDefect(t *testing.T) {
	// Two interior blobs joined by a skeleton line running through the
	// border band. With a boundary field firing along the border, the line
	// is severed and two labels remain.
	sh := field.Planar(30, 60)
	var pixels []int
	var ly, lx []float32
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 10, 10, 4, 4, 12, 12)
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 10, 45, 4, 4, 12, 47)
	// Joining line at y=2, inside the 5-pixel band, one landing per column.
	for x := 12; x <= 47; x++ {
		pixels = append(pixels, 2*60+x)
		ly = append(ly, 2)
		lx = append(lx, float32(x))
	}
	// And connectors from each blob up to the line.
	for y := 3; y < 12; y++ {
		pixels = append(pixels, y*60+12, y*60+47)
		ly = append(ly, float32(y), float32(y))
		lx = append(lx, 12, 47)
	}

	boundary := field.NewScalar(sh)
	for i := range boundary.Data {
		boundary.Data[i] = -5 // no split anywhere...
	}
	for x := 0; x < 60; x++ {
		boundary.Data[2*60+x] = 0 // ...except along the joining line
	}

	joined := SkeletonLabel(landingResult(sh, pixels, ly, lx), nil)
	split := SkeletonLabel(landingResult(sh, pixels, ly, lx), boundary)

	require.NotEqual(t, split.Data[10*60+10], split.Data[10*60+45])
	require.Positive(t, split.Data[10*60+10])
	require.Positive(t, split.Data[10*60+45])

	// The morphological fallback erodes the 1-pixel joining line away, so
	// the blobs separate on that path too.
	require.NotEqual(t, joined.Data[10*60+10], joined.Data[10*60+45])
}

func TestDensity_TwoClustersAndNoise(t *testing.T) {
	sh := field.Planar(30, 30)
	var pixels []int
	var ly, lx []float32
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 5, 5, 3, 3, 6, 6)
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 20, 20, 3, 3, 21, 21)
	// A lone outlier, too isolated to be a core or border point.
	pixels = append(pixels, 14*30+14)
	ly = append(ly, 14)
	lx = append(lx, 14)

	labels := Density(landingResult(sh, pixels, ly, lx), DefaultDensityParams(false))
	a := labels.Data[5*30+5]
	b := labels.Data[20*30+20]
	require.Positive(t, a)
	require.Positive(t, b)
	assert.NotEqual(t, a, b)
	assert.Zero(t, labels.Data[14*30+14], "noise point must stay unlabeled")
}

func TestDensity_Deterministic(t *testing.T) {
	sh := field.Planar(25, 25)
	var pixels []int
	var ly, lx []float32
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 4, 4, 4, 4, 5, 5)
	pixels, ly, lx = blockLandings(sh, pixels, ly, lx, 15, 15, 4, 4, 16, 16)

	p := DefaultDensityParams(true)
	first := Density(landingResult(sh, pixels, ly, lx), p)
	second := Density(landingResult(sh, pixels, ly, lx), p)
	if diff := cmp.Diff(first.Data, second.Data); diff != "" {
		t.Errorf("density labels differ across runs (-first +second):\n%s", diff)
	}
}

func TestMeanDiameterFromDist_Disk(t *testing.T) {
	// Distance field of a radius-9 disk: mean boundary distance is r/3, so
	// the estimator returns ~2r.
	sh := field.Planar(30, 30)
	dist := field.NewScalar(sh)
	m := field.NewMask(sh)
	r := 9.0
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			d := r - math.Hypot(float64(y)-15, float64(x)-15)
			if d > 0 {
				i := y*30 + x
				m.Bits[i] = true
				dist.Data[i] = float32(d)
			}
		}
	}
	got := MeanDiameterFromDist(dist, m)
	assert.InDelta(t, 2*r, got, 2.0)
}

func TestMedianEquivalentDiameter(t *testing.T) {
	sh := field.Planar(20, 40)
	m := field.NewMask(sh)
	// Two square blobs, 6x6 and 10x10.
	for y := 2; y < 8; y++ {
		for x := 2; x < 8; x++ {
			m.Bits[y*40+x] = true
		}
	}
	for y := 5; y < 15; y++ {
		for x := 20; x < 30; x++ {
			m.Bits[y*40+x] = true
		}
	}
	got := MedianEquivalentDiameter(m)
	// Median of {2*sqrt(36/pi), 2*sqrt(100/pi)} = (6.77+11.28)/2
	assert.InDelta(t, 9.0, got, 0.5)
}

func TestRemoveInconsistent(t *testing.T) {
	sh := field.Planar(30, 30)
	labels := field.NewLabels(sh)
	pred := field.NewVector(sh)
	cy, cx := 15.0, 15.0
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			dy, dx := cy-float64(y), cx-float64(x)
			r := math.Hypot(dy, dx)
			if r < 8 {
				i := y*30 + x
				labels.Data[i] = 1
				if r > 0 {
					// Predicted field at 5x unit magnitude, inward.
					pred.Comp[0][i] = float32(5 * dy / r)
					pred.Comp[1][i] = float32(5 * dx / r)
				}
			}
		}
	}

	consistent := labels.Clone()
	removed := RemoveInconsistent(consistent, pred, 0.4)
	assert.Zero(t, removed, "radially consistent mask must survive")
	assert.EqualValues(t, 1, consistent.Max())

	// Flip the field outward: the same mask can no longer explain it.
	outward := field.NewVector(sh)
	for a := 0; a < 2; a++ {
		for i, v := range pred.Comp[a] {
			outward.Comp[a][i] = -v
		}
	}
	inconsistent := labels.Clone()
	removed = RemoveInconsistent(inconsistent, outward, 0.4)
	assert.Equal(t, 1, removed)
	assert.EqualValues(t, 0, inconsistent.Max())
}
