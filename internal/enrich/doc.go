// Package enrich computes per-file analysis for extracted artifacts:
// cryptographic digests, a perceptual hash, EXIF metadata, pixel dimensions,
// and a thumbnail.
//
// Decoding untrusted images can crash or hang, so Processor normally runs the
// work in child processes (the exhume binary re-executed with the hidden
// enrich-worker subcommand) that exchange CBOR frames over stdin/stdout. A
// watchdog tears the pool down when no task completes within the stuck
// window. Very large batches, and environments where child processes cannot
// be started, are processed sequentially in-process.
package enrich
