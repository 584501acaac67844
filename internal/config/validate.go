package config

import (
	"errors"
	"fmt"
	"path"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validateCarving(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format must be one of console, json, auto (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateExtraction() error {
	e := c.Extraction
	if e.MaxWorkers < 0 {
		return errors.New("extraction.max_workers must be 0 (auto) or positive")
	}
	if e.MinSizeBytes < 0 {
		return errors.New("extraction.min_size_bytes must be non-negative")
	}
	if e.MaxSizeBytes < 0 {
		return errors.New("extraction.max_size_bytes must be non-negative")
	}
	if e.MaxSizeBytes > 0 && e.MaxSizeBytes < e.MinSizeBytes {
		return errors.New("extraction.max_size_bytes must be >= extraction.min_size_bytes")
	}
	if int64(e.ChunkSize) > e.CancelCheckBytes {
		return errors.New("extraction.cancel_check_bytes must be >= extraction.chunk_size")
	}
	for _, p := range slices.Concat(e.IncludePatterns, e.ExcludePatterns) {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("extraction pattern %q is malformed: %w", p, err)
		}
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	e := c.Enrichment
	if e.MaxWorkers < 0 {
		return errors.New("enrichment.max_workers must be 0 (auto) or positive")
	}
	if e.PollIntervalSeconds > e.StuckTimeoutSeconds {
		return errors.New("enrichment.poll_interval_seconds must not exceed enrichment.stuck_timeout_seconds")
	}
	return nil
}

func (c *Config) validateCarving() error {
	switch c.Carving.Tool {
	case CarverForemost, CarverScalpel:
	default:
		return fmt.Errorf("carving.tool must be %q or %q (got %q)", CarverForemost, CarverScalpel, c.Carving.Tool)
	}
	if c.Carving.TimeoutSeconds < 0 {
		return errors.New("carving.timeout_seconds must be non-negative")
	}
	if len(c.Carving.FileTypes) == 0 {
		return errors.New("carving.file_types must list at least one type")
	}
	return nil
}
