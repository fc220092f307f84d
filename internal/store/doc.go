// Package store persists reconstruction run metadata to a local sqlite
// database: which files were processed with which options, how many
// instances came out, and any warnings raised along the way. The label
// grids themselves stay on disk as .npy files; the store only records
// provenance.
//
// Dependency rule: store depends on database/sql and the sqlite driver.
// It never imports the algorithm packages; callers pass plain records.
package store
