// Package cluster owns instance labeling: grouping converged landing
// positions into discrete instance labels.
//
// Responsibilities: the three-way algorithm decision (histogram flood-fill,
// skeleton connected-component labeling, density clustering), diameter
// estimation used by that decision, and the optional flow-consistency
// quality filter.
// Key types: Algorithm.
//
// Dependency rule: cluster may depend on field and advect, but never on
// stitch or higher layers.
package cluster
