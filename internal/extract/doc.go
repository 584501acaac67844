// Package extract streams candidate artifacts out of an evidence container
// into the local output tree.
//
// Each worker holds its own cloned container handle and streams one task at a
// time: bytes are written to a deterministic destination while MD5 and SHA-256
// accumulate in the same pass. Cancellation is checked every CancelCheckBytes,
// partial files never survive, and placeholder content (nothing streamed, or an
// all-zero leading window) is classified sparse and removed. When a container
// cannot be cloned or the batch is small, the extractor runs sequentially on
// the caller's handle. Results are always returned sorted by source path.
package extract
