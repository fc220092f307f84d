// Package cytoflow reconstructs labeled instance masks from dense flow
// predictions: a per-pixel vector field pointing toward object centers and
// a scalar cell-probability (or signed boundary-distance) field, as
// produced by an external network.
//
// The pipeline is strictly sequential within one call: seed selection,
// field conditioning, flow integration, instance clustering, and mask
// sanitization. Independent planes carry no shared mutable state and may
// be reconstructed concurrently; see ReconstructStack.
package cytoflow

import (
	"fmt"
	"log"
	"math"

	"github.com/morpho-data/cytoflow/field"
	"github.com/morpho-data/cytoflow/internal/advect"
	"github.com/morpho-data/cytoflow/internal/cluster"
	"github.com/morpho-data/cytoflow/internal/maskutil"
)

// ErrInvalidInput reports a shape or rank mismatch between the supplied
// grids. It is returned before any computation begins.
var ErrInvalidInput = fmt.Errorf("cytoflow: invalid input")

// Warning codes surfaced on a Result. Warnings are advisory: the call
// still succeeds and the caller decides whether to retry with different
// thresholds.
type WarningCode string

const (
	// WarnDegenerateDivergence: the skeleton-regime divergence field could
	// not be normalized (all-zero or constant) and was used as-is.
	WarnDegenerateDivergence WarningCode = "degenerate_divergence"
	// WarnNoInstancesFound: the mask had foreground pixels but clustering
	// produced no labels.
	WarnNoInstancesFound WarningCode = "no_instances_found"
)

// Warning is one advisory condition accumulated during a call.
type Warning struct {
	Code    WarningCode
	Message string
}

// Options configures one reconstruction call. Start from DefaultOptions
// and override fields; the zero value of MaxIterations falls back to the
// default budget.
type Options struct {
	// SeedThreshold is the scalar-field threshold for foreground seeding.
	// In skeleton mode it is the high edge of a [threshold-1, threshold]
	// hysteresis band.
	SeedThreshold float64
	// MaxIterations bounds the flow integration. 2D callers working at a
	// rescaled resolution typically pass ceil(200/rescale).
	MaxIterations int
	// SkeletonMode selects the alternate regime for thin, small, or
	// touching objects: hysteresis seeding, divergence-weighted flow, and
	// skeleton/density labeling.
	SkeletonMode bool
	// FlowErrorThreshold enables the flow-consistency quality filter when
	// positive. Ignored for volumetric input, where the check is not
	// meaningful.
	FlowErrorThreshold float64
	// DiameterThreshold forces density clustering in skeleton mode when
	// the estimated mean object diameter is at or below it.
	DiameterThreshold float64
	// MinInstancePixels discards instances below this pixel count during
	// sanitization; maskutil.DisableSizeFilter (-1) disables the filter.
	MinInstancePixels int
	// RecordTrajectories keeps the full per-step position history. Memory
	// is steps x foreground-pixels x rank float32 values, so it is opt-in.
	RecordTrajectories bool
	// StitchIoU, when positive, links per-plane labels into a 3D volume
	// in ReconstructStack.
	StitchIoU float64
}

// DefaultOptions returns the documented default thresholds.
func DefaultOptions() Options {
	return Options{
		SeedThreshold:      0.0,
		MaxIterations:      advect.DefaultIterations,
		SkeletonMode:       false,
		FlowErrorThreshold: 0.4,
		DiameterThreshold:  12.0,
		MinInstancePixels:  15,
		RecordTrajectories: false,
		StitchIoU:          0.0,
	}
}

// defaultFlowScale relates the predicted field to the integration step in
// the default regime: the network trains vectors at 5x unit flow, so the
// integrator consumes field/5.
const defaultFlowScale = float32(1.0 / 5.0)

// Trajectories is the recorded per-step position history of every
// integrated pixel, laid out step-major: the coordinate of pixel i on axis
// a after step s is Data[(s*Rank+a)*len(Pixels)+i].
type Trajectories struct {
	Steps  int
	Rank   int
	Pixels []int
	Data   []float32
}

// Result is the output of one reconstruction call. The caller owns Labels;
// all intermediate grids are discarded when the call returns.
type Result struct {
	// Labels assigns 0 to background and a dense 1..K range to instances.
	Labels *field.Labels
	// Positions holds each foreground pixel's landing coordinate, one
	// component per spatial axis, background entries at sentinel zero.
	Positions *field.Vector
	// Trajectories is non-nil only when requested in Options.
	Trajectories *Trajectories
	// Warnings lists advisory conditions encountered during the call.
	Warnings []Warning
}

func (r *Result) warnf(code WarningCode, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, Warning{Code: code, Message: msg})
	log.Printf("[Reconstruct] warning %s: %s", code, msg)
}

// ReconstructMasks converts a vector field and a scalar field into a
// labeled instance grid. boundary is an optional boundary-probability
// field used by the skeleton regime; pass nil when the network has no
// boundary output. The input grids are never modified.
func ReconstructMasks(vec *field.Vector, scalar *field.Scalar, boundary *field.Scalar, opts Options) (*Result, error) {
	if err := validate(vec, scalar, boundary, opts); err != nil {
		return nil, err
	}
	sh := scalar.Shape

	var m *field.Mask
	if opts.SkeletonMode {
		m = field.HysteresisMask(scalar, opts.SeedThreshold-1, opts.SeedThreshold)
	} else {
		m = field.SeedMask(scalar, opts.SeedThreshold)
	}

	res := &Result{}
	if !m.Any() {
		// Short-circuit before integration: downstream components assume
		// at least one foreground pixel.
		log.Printf("[Reconstruct] no foreground pixels above threshold %.3f for %s grid", opts.SeedThreshold, sh)
		res.Labels = field.NewLabels(sh)
		res.Positions = field.NewVector(sh)
		return res, nil
	}

	var labels *field.Labels
	var adv *advect.Result
	if opts.SkeletonMode {
		labels, adv = reconstructSkeleton(vec, scalar, boundary, m, opts, res)
	} else {
		labels, adv = reconstructDefault(vec, m, opts)
	}

	if labels.Max() == 0 {
		res.warnf(WarnNoInstancesFound, "clustering produced no labels for %d foreground pixels", m.Count())
	}
	maskutil.Sanitize(labels, opts.MinInstancePixels)

	res.Labels = labels
	res.Positions = adv.PositionsGrid()
	if opts.RecordTrajectories {
		res.Trajectories = &Trajectories{
			Steps:  adv.Steps,
			Rank:   sh.Rank(),
			Pixels: adv.Pixels,
			Data:   adv.Traj,
		}
	}
	return res, nil
}

// reconstructDefault runs the original algorithm: masked 1/5-scaled flow
// integration followed by histogram flood-fill, with the optional
// flow-consistency filter in 2D.
func reconstructDefault(vec *field.Vector, m *field.Mask, opts Options) (*field.Labels, *advect.Result) {
	cond := vec.MaskedScale(m, defaultFlowScale)
	adv := advect.Follow(cond, m, opts.MaxIterations, opts.RecordTrajectories)
	labels := cluster.Histogram(adv)
	if vec.Shape.Rank() == 2 && opts.FlowErrorThreshold > 0 {
		cluster.RemoveInconsistent(labels, vec, opts.FlowErrorThreshold)
	}
	return labels, adv
}

// reconstructSkeleton runs the alternate regime: divergence-conditioned
// integration, then either density clustering (small mean diameter) or
// border-corrected skeleton labeling.
func reconstructSkeleton(vec *field.Vector, scalar, boundary *field.Scalar, m *field.Mask, opts Options, res *Result) (*field.Labels, *advect.Result) {
	cond, degenerate := field.Condition(vec, m)
	if degenerate {
		res.warnf(WarnDegenerateDivergence, "divergence field is degenerate; using it unnormalized")
	}
	adv := advect.Follow(cond, m, opts.MaxIterations, opts.RecordTrajectories)

	var meanDiam float64
	if boundary != nil {
		meanDiam = cluster.MeanDiameterFromDist(scalar, m)
	} else {
		meanDiam = cluster.MedianEquivalentDiameter(m)
	}
	algo := cluster.Choose(true, meanDiam, opts.DiameterThreshold)
	log.Printf("[Reconstruct] skeleton regime: mean diameter %.2f, algorithm %s", meanDiam, algo)

	if algo == cluster.AlgoDensity {
		return cluster.Density(adv, cluster.DefaultDensityParams(boundary != nil)), adv
	}
	return cluster.SkeletonLabel(adv, boundary), adv
}

// validate fails fast on structural problems before any computation.
func validate(vec *field.Vector, scalar *field.Scalar, boundary *field.Scalar, opts Options) error {
	if vec == nil || scalar == nil {
		return fmt.Errorf("%w: nil field", ErrInvalidInput)
	}
	sh := scalar.Shape
	if sh.Rank() != 2 && sh.Rank() != 3 {
		return fmt.Errorf("%w: unsupported rank %d", ErrInvalidInput, sh.Rank())
	}
	if !vec.Shape.Equal(sh) {
		return fmt.Errorf("%w: vector field shape %s does not match scalar field shape %s",
			ErrInvalidInput, vec.Shape, sh)
	}
	if len(vec.Comp) != sh.Rank() {
		return fmt.Errorf("%w: vector field has %d components for rank %d",
			ErrInvalidInput, len(vec.Comp), sh.Rank())
	}
	if boundary != nil && !boundary.Shape.Equal(sh) {
		return fmt.Errorf("%w: boundary field shape %s does not match scalar field shape %s",
			ErrInvalidInput, boundary.Shape, sh)
	}
	if opts.SkeletonMode && sh.Rank() == 3 {
		return fmt.Errorf("%w: skeleton mode is defined per-plane; reconstruct 2D planes and stitch", ErrInvalidInput)
	}
	if math.IsNaN(opts.SeedThreshold) || math.IsInf(opts.SeedThreshold, 0) {
		return fmt.Errorf("%w: non-finite seed threshold", ErrInvalidInput)
	}
	return nil
}
