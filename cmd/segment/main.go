// Command segment reconstructs labeled instance masks from network flow
// predictions stored as .npy files and writes the label grid back as .npy.
//
// Input conventions:
//   - flow (2, H, W): one 2D plane
//   - flow (N, 2, H, W): a stack of N 2D planes, optionally stitched
//   - flow (3, Z, H, W): one 3D volume
//
// The cell-probability array drops the leading component axis: (H, W),
// (N, H, W), or (Z, H, W) respectively.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/morpho-data/cytoflow"
	"github.com/morpho-data/cytoflow/field"
	"github.com/morpho-data/cytoflow/internal/monitor"
	"github.com/morpho-data/cytoflow/internal/npyio"
	"github.com/morpho-data/cytoflow/internal/store"
)

func main() {
	var (
		flowPath     = flag.String("flow", "", "path to flow field .npy (required)")
		probPath     = flag.String("cellprob", "", "path to cell probability .npy (required)")
		boundaryPath = flag.String("boundary", "", "path to boundary probability .npy (optional)")
		outPath      = flag.String("out", "masks.npy", "output label grid .npy")

		threshold  = flag.Float64("threshold", 0.0, "cell probability threshold")
		iterations = flag.Int("iterations", 0, "flow integration steps (0 = default)")
		skeleton   = flag.Bool("skeleton", false, "use the skeleton regime for thin or touching objects")
		flowError  = flag.Float64("flow-error", 0.4, "flow consistency threshold (0 disables)")
		diamThresh = flag.Float64("diameter-threshold", 12.0, "mean diameter at or below which skeleton mode uses density clustering")
		minPixels  = flag.Int("min-pixels", 15, "minimum instance size in pixels (-1 disables)")
		stitchIoU  = flag.Float64("stitch", 0.0, "IoU threshold for stitching stacked planes (0 disables)")
		workers    = flag.Int("workers", 0, "concurrent planes for stacks (0 = NumCPU)")

		pngPath  = flag.String("png", "", "write a color rendering of the labels (first plane)")
		plotPath = flag.String("size-plot", "", "write an instance size histogram")
		dbPath   = flag.String("db", "", "record the run in this sqlite database")
	)
	flag.Parse()

	if *flowPath == "" || *probPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	opts := cytoflow.DefaultOptions()
	opts.SeedThreshold = *threshold
	if *iterations > 0 {
		opts.MaxIterations = *iterations
	}
	opts.SkeletonMode = *skeleton
	opts.FlowErrorThreshold = *flowError
	opts.DiameterThreshold = *diamThresh
	opts.MinInstancePixels = *minPixels
	opts.StitchIoU = *stitchIoU

	start := time.Now()
	labels, planes, warnings, err := run(*flowPath, *probPath, *boundaryPath, opts, *workers)
	if err != nil {
		log.Fatalf("segment: %v", err)
	}
	instances := int(labels.Max())
	log.Printf("[Segment] %d instances in %s grid (%s)", instances, labels.Shape, time.Since(start).Round(time.Millisecond))

	if err := writeLabels(*outPath, labels); err != nil {
		log.Fatalf("segment: %v", err)
	}
	if *pngPath != "" {
		if err := monitor.SaveLabelPNG(*pngPath, labels, 0); err != nil {
			log.Fatalf("segment: %v", err)
		}
	}
	if *plotPath != "" && instances > 0 {
		if err := monitor.SaveSizePlot(*plotPath, labels); err != nil {
			log.Fatalf("segment: %v", err)
		}
	}
	if *dbPath != "" {
		if err := recordRun(*dbPath, *flowPath, *outPath, opts, instances, planes, warnings, time.Since(start)); err != nil {
			log.Fatalf("segment: %v", err)
		}
	}
}

// run loads the inputs, dispatches on the flow array layout, and returns
// the final label grid plus the plane count and accumulated warnings.
func run(flowPath, probPath, boundaryPath string, opts cytoflow.Options, workers int) (*field.Labels, int, []cytoflow.Warning, error) {
	flow, flowShape, err := readArray(flowPath)
	if err != nil {
		return nil, 0, nil, err
	}
	prob, probShape, err := readArray(probPath)
	if err != nil {
		return nil, 0, nil, err
	}
	var boundary []float32
	var boundaryShape []int
	if boundaryPath != "" {
		boundary, boundaryShape, err = readArray(boundaryPath)
		if err != nil {
			return nil, 0, nil, err
		}
	}

	switch {
	case len(flowShape) == 3 && flowShape[0] == 2:
		sh := field.Planar(flowShape[1], flowShape[2])
		vec, err := vectorFrom(flow, sh)
		if err != nil {
			return nil, 0, nil, err
		}
		scalar, err := scalarFrom(prob, probShape, sh)
		if err != nil {
			return nil, 0, nil, err
		}
		var bnd *field.Scalar
		if boundary != nil {
			if bnd, err = scalarFrom(boundary, boundaryShape, sh); err != nil {
				return nil, 0, nil, err
			}
		}
		res, err := cytoflow.ReconstructMasks(vec, scalar, bnd, opts)
		if err != nil {
			return nil, 0, nil, err
		}
		return res.Labels, 1, res.Warnings, nil

	case len(flowShape) == 4 && flowShape[1] == 2:
		return runStack(flow, flowShape, prob, probShape, boundary, boundaryShape, opts, workers)

	case len(flowShape) == 4 && flowShape[0] == 3:
		sh := field.Volumetric(flowShape[1], flowShape[2], flowShape[3])
		vec, err := vectorFrom(flow, sh)
		if err != nil {
			return nil, 0, nil, err
		}
		scalar, err := scalarFrom(prob, probShape, sh)
		if err != nil {
			return nil, 0, nil, err
		}
		res, err := cytoflow.ReconstructMasks(vec, scalar, nil, opts)
		if err != nil {
			return nil, 0, nil, err
		}
		return res.Labels, 1, res.Warnings, nil
	}
	return nil, 0, nil, fmt.Errorf("unrecognized flow array shape %v", flowShape)
}

func runStack(flow []float32, flowShape []int, prob []float32, probShape []int,
	boundary []float32, boundaryShape []int, opts cytoflow.Options, workers int) (*field.Labels, int, []cytoflow.Warning, error) {

	nz, h, w := flowShape[0], flowShape[2], flowShape[3]
	if len(probShape) != 3 || probShape[0] != nz || probShape[1] != h || probShape[2] != w {
		return nil, 0, nil, fmt.Errorf("cellprob shape %v does not match flow planes %dx%dx%d", probShape, nz, h, w)
	}
	if boundary != nil {
		if len(boundaryShape) != 3 || boundaryShape[0] != nz || boundaryShape[1] != h || boundaryShape[2] != w {
			return nil, 0, nil, fmt.Errorf("boundary shape %v does not match flow planes %dx%dx%d", boundaryShape, nz, h, w)
		}
	}

	sh := field.Planar(h, w)
	plane := h * w
	planes := make([]cytoflow.Plane, nz)
	for z := 0; z < nz; z++ {
		vec := field.NewVector(sh)
		copy(vec.Comp[0], flow[(z*2+0)*plane:(z*2+1)*plane])
		copy(vec.Comp[1], flow[(z*2+1)*plane:(z*2+2)*plane])
		scalar := field.NewScalar(sh)
		copy(scalar.Data, prob[z*plane:(z+1)*plane])
		planes[z] = cytoflow.Plane{Vec: vec, Scalar: scalar}
		if boundary != nil {
			bnd := field.NewScalar(sh)
			copy(bnd.Data, boundary[z*plane:(z+1)*plane])
			planes[z].Boundary = bnd
		}
	}

	res, err := cytoflow.ReconstructStack(planes, opts, workers)
	if err != nil {
		return nil, 0, nil, err
	}
	var warnings []cytoflow.Warning
	for _, pr := range res.Planes {
		warnings = append(warnings, pr.Warnings...)
	}
	if res.Stitched != nil {
		return res.Stitched, nz, warnings, nil
	}

	// No stitching requested: stack the per-plane labels without linking.
	out := field.NewLabels(field.Volumetric(nz, h, w))
	for z, pr := range res.Planes {
		copy(out.Data[z*plane:(z+1)*plane], pr.Labels.Data)
	}
	return out, nz, warnings, nil
}

func readArray(path string) ([]float32, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	data, shape, err := npyio.ReadFloat32(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, shape, nil
}

func vectorFrom(data []float32, sh field.Shape) (*field.Vector, error) {
	n := sh.Pixels()
	if len(data) != sh.Rank()*n {
		return nil, fmt.Errorf("flow array has %d values, want %d for %s", len(data), sh.Rank()*n, sh)
	}
	vec := field.NewVector(sh)
	for a := 0; a < sh.Rank(); a++ {
		copy(vec.Comp[a], data[a*n:(a+1)*n])
	}
	return vec, nil
}

func scalarFrom(data []float32, shape []int, sh field.Shape) (*field.Scalar, error) {
	if len(data) != sh.Pixels() {
		return nil, fmt.Errorf("scalar array shape %v does not match grid %s", shape, sh)
	}
	scalar := field.NewScalar(sh)
	copy(scalar.Data, data)
	return scalar, nil
}

func writeLabels(path string, l *field.Labels) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sh := l.Shape
	shape := []int{sh.Y, sh.X}
	if sh.Rank() == 3 {
		shape = []int{sh.Z, sh.Y, sh.X}
	}
	return npyio.WriteInt32(f, l.Data, shape)
}

func recordRun(dbPath, inPath, outPath string, opts cytoflow.Options,
	instances, planes int, warnings []cytoflow.Warning, elapsed time.Duration) error {

	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	optJSON, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	var warnJSON []byte
	if len(warnings) > 0 {
		if warnJSON, err = json.Marshal(warnings); err != nil {
			return err
		}
	}
	rec, err := s.InsertRun(store.RunRecord{
		InputPath:  inPath,
		OutputPath: outPath,
		Options:    optJSON,
		Instances:  instances,
		Planes:     planes,
		Warnings:   warnJSON,
		DurationMS: elapsed.Milliseconds(),
	})
	if err != nil {
		return err
	}
	log.Printf("[Segment] recorded run %s in %s", rec.RunID, dbPath)
	return nil
}
