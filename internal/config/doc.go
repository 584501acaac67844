// Package config loads, normalizes, and validates exhume configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// extraction, enrichment, carving, and ingestion stages need so the CLI can
// hand one sanitized value to each workflow.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical enum values, and clear validation errors.
package config
