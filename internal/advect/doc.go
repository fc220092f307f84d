// Package advect owns flow integration: every foreground pixel is moved
// along the vector field in lockstep for a fixed number of Euler steps,
// producing the landing position that defines its convergence basin.
//
// Responsibilities: bilinear/trilinear field sampling with edge clamping,
// fixed-budget integration, optional pre-sized trajectory recording.
// Key types: Result.
//
// Dependency rule: advect may depend on field, but never on cluster or
// higher layers.
package advect
