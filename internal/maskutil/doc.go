// Package maskutil owns final label-grid cleanup: interior hole filling,
// minimum-size filtering, and dense renumbering.
//
// The sanitizer is idempotent and guarantees that after it runs the
// positive labels densely cover 1..K with no gaps.
//
// Dependency rule: maskutil may depend on field only.
package maskutil
