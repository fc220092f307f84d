package cytoflow

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/morpho-data/cytoflow/field"
	"github.com/morpho-data/cytoflow/internal/stitch"
)

// Plane bundles the network outputs for one Z slice of a stack. Boundary
// may be nil, as in ReconstructMasks.
type Plane struct {
	Vec      *field.Vector
	Scalar   *field.Scalar
	Boundary *field.Scalar
}

// StackResult collects per-plane reconstructions and, when stitching is
// enabled, the linked volume.
type StackResult struct {
	// Planes holds one Result per input plane, in input order.
	Planes []*Result
	// Stitched is the volumetric label grid with plane-to-plane identity
	// links applied. Nil unless Options.StitchIoU is positive.
	Stitched *field.Labels
}

// ReconstructStack reconstructs every plane of a stack, fanning the planes
// out over a bounded worker pool. workers <= 0 uses one worker per CPU.
// Plane reconstruction is independent and unordered; stitching, when
// enabled via Options.StitchIoU, runs afterward in plane order so that
// global labels are reproducible.
func ReconstructStack(planes []Plane, opts Options, workers int) (*StackResult, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("%w: empty stack", ErrInvalidInput)
	}
	for i, p := range planes {
		if p.Scalar == nil || p.Scalar.Shape.Rank() != 2 {
			return nil, fmt.Errorf("%w: plane %d is not a 2D grid", ErrInvalidInput, i)
		}
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(planes) {
		workers = len(planes)
	}

	out := &StackResult{Planes: make([]*Result, len(planes))}
	jobs := make(chan int)
	errs := make([]error, len(planes))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := planes[i]
				res, err := ReconstructMasks(p.Vec, p.Scalar, p.Boundary, opts)
				if err != nil {
					errs[i] = fmt.Errorf("plane %d: %w", i, err)
					continue
				}
				out.Planes[i] = res
			}
		}()
	}
	for i := range planes {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	if opts.StitchIoU > 0 {
		labels := make([]*field.Labels, len(planes))
		for i, res := range out.Planes {
			labels[i] = res.Labels
		}
		stitched, err := stitch.Planes(labels, opts.StitchIoU)
		if err != nil {
			return nil, err
		}
		out.Stitched = stitched
	}
	return out, nil
}
