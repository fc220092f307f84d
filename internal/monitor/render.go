package monitor

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/morpho-data/cytoflow/field"
)

// RenderLabels draws one plane of a label grid as an RGBA image:
// background black, each instance a distinct hue. The palette depends only
// on the label count, so re-rendering the same grid gives the same image.
func RenderLabels(l *field.Labels, plane int) (*image.RGBA, error) {
	sh := l.Shape
	if plane < 0 || plane >= sh.Z {
		return nil, fmt.Errorf("monitor: plane %d out of range for %s grid", plane, sh)
	}
	n := int(l.Max())
	colors := generateColors(n)

	img := image.NewRGBA(image.Rect(0, 0, sh.X, sh.Y))
	for y := 0; y < sh.Y; y++ {
		for x := 0; x < sh.X; x++ {
			id := l.Data[sh.Index(plane, y, x)]
			if id <= 0 {
				img.Set(x, y, color.Black)
				continue
			}
			img.Set(x, y, colors[(int(id)-1)%len(colors)])
		}
	}
	return img, nil
}

// SaveLabelPNG renders one plane of a label grid and writes it to path.
func SaveLabelPNG(path string, l *field.Labels, plane int) error {
	img, err := RenderLabels(l, plane)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("monitor: create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("monitor: encode %s: %w", path, err)
	}
	return nil
}

// SaveSizePlot writes a histogram of instance pixel counts to path. Useful
// for eyeballing whether the size filter threshold sits in a sensible spot.
func SaveSizePlot(path string, l *field.Labels) error {
	counts := make(map[int32]int)
	for _, id := range l.Data {
		if id > 0 {
			counts[id]++
		}
	}
	if len(counts) == 0 {
		return fmt.Errorf("monitor: no instances to plot")
	}
	vals := make(plotter.Values, 0, len(counts))
	for _, c := range counts {
		vals = append(vals, float64(c))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Instance Sizes (%d instances)", len(counts))
	p.X.Label.Text = "Pixels"
	p.Y.Label.Text = "Instances"

	hist, err := plotter.NewHist(vals, 20)
	if err != nil {
		return fmt.Errorf("monitor: histogram: %w", err)
	}
	p.Add(hist)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("monitor: save %s: %w", path, err)
	}
	return nil
}

// generateColors creates a palette of distinct colors for instance labels
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
