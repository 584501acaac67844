// Package ingest writes an extraction run into the catalog.
//
// Ingestion reads the run manifest, enriches the files it lists, and inside
// one transaction replaces every discovery previously recorded for the run
// before inserting the new ones, so re-ingesting a run never duplicates
// provenance. Cancellation rolls the transaction back.
package ingest
