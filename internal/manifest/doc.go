// Package manifest defines the per-run audit document written next to the
// extracted files.
//
// Extraction writes the document once, even when the run was cancelled or
// partially failed. Ingestion later appends an "ingestion" block without
// disturbing anything else in the file, including keys this package does not
// model. Every write goes through a temporary file, fsync, and rename so a
// reader never observes a partial document.
package manifest
