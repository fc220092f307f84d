package cytoflow

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morpho-data/cytoflow/field"
)

// diskScene builds a synthetic network output: inside each disk the vector
// field points at that disk's center with trained 5x magnitude and the
// scalar field is a confident positive logit; outside both are background.
func diskScene(h, w int, centers [][2]float64, radius float64) (*field.Vector, *field.Scalar) {
	sh := field.Planar(h, w)
	vec := field.NewVector(sh)
	scalar := field.NewScalar(sh)
	for i := range scalar.Data {
		scalar.Data[i] = -5
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for _, c := range centers {
				dy, dx := c[0]-float64(y), c[1]-float64(x)
				d := math.Hypot(dy, dx)
				if d > radius {
					continue
				}
				i := sh.Index(0, y, x)
				scalar.Data[i] = 3
				if d > 0 {
					vec.Comp[0][i] = float32(5 * dy / d)
					vec.Comp[1][i] = float32(5 * dx / d)
				}
				break
			}
		}
	}
	return vec, scalar
}

func labelAt(l *field.Labels, y, x int) int32 {
	return l.Data[l.Shape.Index(0, y, x)]
}

func warningCodes(res *Result) []WarningCode {
	codes := make([]WarningCode, len(res.Warnings))
	for i, w := range res.Warnings {
		codes[i] = w.Code
	}
	return codes
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 0.0, opts.SeedThreshold)
	assert.Equal(t, 200, opts.MaxIterations)
	assert.False(t, opts.SkeletonMode)
	assert.Equal(t, 0.4, opts.FlowErrorThreshold)
	assert.Equal(t, 12.0, opts.DiameterThreshold)
	assert.Equal(t, 15, opts.MinInstancePixels)
	assert.Equal(t, 0.0, opts.StitchIoU)
}

func TestReconstructMasks_AllBackground(t *testing.T) {
	vec, scalar := diskScene(32, 32, nil, 0)
	res, err := ReconstructMasks(vec, scalar, nil, DefaultOptions())
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Labels.Max())
	assert.Empty(t, res.Warnings)
	require.NotNil(t, res.Positions)
	assert.Len(t, res.Positions.Comp, 2)
}

func TestReconstructMasks_SingleDisk(t *testing.T) {
	vec, scalar := diskScene(40, 40, [][2]float64{{20, 20}}, 8)
	res, err := ReconstructMasks(vec, scalar, nil, DefaultOptions())
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Labels.Max())
	assert.EqualValues(t, 1, labelAt(res.Labels, 20, 20))
	assert.EqualValues(t, 0, labelAt(res.Labels, 2, 2))
}

func TestReconstructMasks_TwoDisks(t *testing.T) {
	vec, scalar := diskScene(40, 80, [][2]float64{{20, 20}, {20, 60}}, 8)
	res, err := ReconstructMasks(vec, scalar, nil, DefaultOptions())
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Labels.Max())
	assert.NotEqual(t, labelAt(res.Labels, 20, 20), labelAt(res.Labels, 20, 60))
	assert.NotZero(t, labelAt(res.Labels, 20, 20))
	assert.NotZero(t, labelAt(res.Labels, 20, 60))
}

func TestReconstructMasks_SkeletonSmallDisks(t *testing.T) {
	vec, scalar := diskScene(30, 60, [][2]float64{{15, 15}, {15, 45}}, 4)
	opts := DefaultOptions()
	opts.SkeletonMode = true
	opts.MinInstancePixels = 5
	res, err := ReconstructMasks(vec, scalar, nil, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Labels.Max())
	assert.NotEqual(t, labelAt(res.Labels, 15, 15), labelAt(res.Labels, 15, 45))
}

func TestReconstructMasks_MinInstancePixels(t *testing.T) {
	vec, scalar := diskScene(24, 24, [][2]float64{{12, 12}}, 2)

	opts := DefaultOptions()
	opts.MinInstancePixels = -1
	res, err := ReconstructMasks(vec, scalar, nil, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Labels.Max(), "size filter disabled keeps the small instance")

	opts.MinInstancePixels = 100
	res, err = ReconstructMasks(vec, scalar, nil, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Labels.Max(), "size filter removes instances below the floor")
}

func TestReconstructMasks_Trajectories(t *testing.T) {
	vec, scalar := diskScene(24, 24, [][2]float64{{12, 12}}, 5)
	opts := DefaultOptions()
	opts.RecordTrajectories = true
	res, err := ReconstructMasks(vec, scalar, nil, opts)
	require.NoError(t, err)
	require.NotNil(t, res.Trajectories)
	tr := res.Trajectories
	assert.Equal(t, 2, tr.Rank)
	assert.Greater(t, tr.Steps, 0)
	assert.Len(t, tr.Data, tr.Steps*tr.Rank*len(tr.Pixels))

	opts.RecordTrajectories = false
	res, err = ReconstructMasks(vec, scalar, nil, opts)
	require.NoError(t, err)
	assert.Nil(t, res.Trajectories)
}

func TestReconstructMasks_NoInstancesWarning(t *testing.T) {
	// A lone radius-1.5 blob lands too few pixels in any one bin to seed
	// the histogram clusterer, so the foreground clusters to zero labels.
	vec, scalar := diskScene(16, 16, [][2]float64{{8, 8}}, 1.5)
	res, err := ReconstructMasks(vec, scalar, nil, DefaultOptions())
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Labels.Max())
	assert.Contains(t, warningCodes(res), WarnNoInstancesFound)
}

func TestReconstructMasks_DegenerateDivergenceWarning(t *testing.T) {
	// An all-zero vector field over a foreground blob gives an all-zero
	// divergence field, which cannot be range-normalized.
	_, scalar := diskScene(20, 20, [][2]float64{{10, 10}}, 4)
	vec := field.NewVector(scalar.Shape)
	opts := DefaultOptions()
	opts.SkeletonMode = true
	res, err := ReconstructMasks(vec, scalar, nil, opts)
	require.NoError(t, err)
	assert.Contains(t, warningCodes(res), WarnDegenerateDivergence)
}

func TestReconstructMasks_InvalidInput(t *testing.T) {
	vec, scalar := diskScene(16, 16, nil, 0)
	_, otherScalar := diskScene(16, 20, nil, 0)

	_, err := ReconstructMasks(nil, scalar, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ReconstructMasks(vec, otherScalar, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ReconstructMasks(vec, scalar, otherScalar, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidInput)

	opts := DefaultOptions()
	opts.SeedThreshold = math.NaN()
	_, err = ReconstructMasks(vec, scalar, nil, opts)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReconstructMasks_SkeletonRejectsVolumetric(t *testing.T) {
	sh := field.Volumetric(4, 16, 16)
	vec := field.NewVector(sh)
	scalar := field.NewScalar(sh)
	opts := DefaultOptions()
	opts.SkeletonMode = true
	_, err := ReconstructMasks(vec, scalar, nil, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
