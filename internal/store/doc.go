// Package store persists canonical artifacts and their discovery provenance in
// SQLite.
//
// One images row exists per (evidence_id, sha256). Every time an extractor
// run finds that content again, a row is added to image_discoveries instead,
// so identical content found by several runs or carved several times is
// stored once while every provenance record survives. Re-ingesting a run
// first deletes that run's discoveries, which keeps re-ingestion idempotent.
//
// The database connection is owned by the caller: New wraps an existing
// *sql.DB, Open is a convenience for the CLI. Schema changes bump
// schemaVersion in schema.go.
package store
