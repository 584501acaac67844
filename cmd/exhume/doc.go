// Command exhume extracts image artifacts from mounted evidence and carver
// output, records each run in a manifest, and ingests manifests into a
// deduplicating SQLite catalog.
//
// Typical use:
//
//	exhume extract /mnt/evidence --ingest
//	exhume carve disk.dd
//	exhume ingest ~/.local/share/exhume/output/manifest.json
//	exhume stats
//
// Logs go to stderr and to exhume.log in the configured log directory so
// stdout stays free for --json output and the enrich-worker channel.
package main
