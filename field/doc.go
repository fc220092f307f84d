// Package field owns the grid data model of the reconstruction pipeline.
//
// Responsibilities: scalar/vector/label grid types, the planar-vs-volumetric
// shape variant, foreground seeding (hard and hysteresis thresholds),
// robust percentile normalization, and divergence-based field conditioning.
// Key types: Shape, Scalar, Vector, Mask, Labels.
//
// Dependency rule: field is the bottom layer; it must not depend on any
// other package in this module. It is the only package besides the module
// root that callers import directly.
package field
