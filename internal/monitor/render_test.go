package monitor

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morpho-data/cytoflow/field"
)

func twoLabelGrid() *field.Labels {
	l := field.NewLabels(field.Planar(8, 8))
	for y := 1; y < 4; y++ {
		for x := 1; x < 4; x++ {
			l.Data[l.Shape.Index(0, y, x)] = 1
			l.Data[l.Shape.Index(0, y+4, x+4)] = 2
		}
	}
	return l
}

func TestRenderLabels(t *testing.T) {
	l := twoLabelGrid()
	img, err := RenderLabels(l, 0)
	require.NoError(t, err)

	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())

	bg := img.RGBAAt(0, 0)
	assert.Equal(t, color.RGBA{A: 255}, bg, "background stays black")

	a := img.RGBAAt(2, 2)
	b := img.RGBAAt(6, 6)
	assert.NotEqual(t, a, b, "distinct instances get distinct colors")
	assert.NotEqual(t, bg, a)

	_, err = RenderLabels(l, 1)
	assert.Error(t, err, "plane out of range for a 2D grid")
}

func TestRenderLabels_Deterministic(t *testing.T) {
	l := twoLabelGrid()
	a, err := RenderLabels(l, 0)
	require.NoError(t, err)
	b, err := RenderLabels(l, 0)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestSaveLabelPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.png")
	require.NoError(t, SaveLabelPNG(path, twoLabelGrid(), 0))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSaveSizePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sizes.png")
	require.NoError(t, SaveSizePlot(path, twoLabelGrid()))

	empty := field.NewLabels(field.Planar(4, 4))
	assert.Error(t, SaveSizePlot(path, empty))
}
