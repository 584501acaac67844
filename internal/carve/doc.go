// Package carve drives the external foremost and scalpel file carvers and
// reads their output back.
//
// A Runner writes a carver configuration, invokes the configured tool
// against a raw image with a timeout, and collects the carved image files
// together with the byte offsets foremost records in audit.txt. ImportDir
// brings an existing carver output tree into an exhume output directory so
// it can be extracted and ingested like a fresh run.
package carve
