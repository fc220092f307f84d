// Package npyio reads and writes NumPy .npy version 1.0 files, the
// interchange format for network outputs and label grids. Only C-order
// little-endian float32 and int32 arrays are supported; anything else is
// rejected at header parse time.
//
// Responsibilities:
//   - parse and validate the NPY magic, version, and header dictionary
//   - stream array payloads without buffering the whole file twice
//
// Dependency rule: npyio depends only on the standard library. It knows
// nothing about fields or masks; callers reshape the flat payload.
package npyio
