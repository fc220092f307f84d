// Package monitor renders reconstruction output for visual inspection:
// a color overlay PNG of the label grid, and a size-distribution plot of
// the reconstructed instances. Both are debugging aids; nothing in the
// pipeline reads them back.
package monitor
