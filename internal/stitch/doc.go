// Package stitch links independently-labeled 2D planes into a consistent
// 3D label volume by overlap scoring.
//
// Responsibilities: per-plane label matching via Intersection-over-Union
// with a bounding-box prefilter, and ownership of the global label counter
// for the duration of one sequential stitching pass.
//
// Dependency rule: stitch may depend on field, but never on the
// orchestration layer. Planes must be processed in index order; the
// matching state for plane k+1 depends on plane k's final labels.
package stitch
