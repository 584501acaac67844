// Package workflow runs one extraction end to end: it locks the output
// directory, discovers candidate files (directory walk, bodyfile catalog,
// carver run, or imported carver output), drives the parallel extractor,
// and writes the run manifest that ingestion later consumes.
//
// Every run produces a manifest, including cancelled ones, so the output
// directory always describes exactly what was extracted.
package workflow
