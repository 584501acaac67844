package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeExtraction()
	c.normalizeEnrichment()
	c.normalizeCarving()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		c.Paths.DatabasePath = defaultDatabasePath
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeExtraction() {
	e := &c.Extraction
	if e.MinParallelTasks <= 0 {
		e.MinParallelTasks = defaultMinParallelTasks
	}
	if e.TasksPerWorker <= 0 {
		e.TasksPerWorker = defaultTasksPerWorker
	}
	if e.ChunkSize <= 0 {
		e.ChunkSize = defaultChunkSize
	}
	if e.CancelCheckBytes <= 0 {
		e.CancelCheckBytes = defaultCancelCheckBytes
	}
	if e.SparseWindowBytes <= 0 {
		e.SparseWindowBytes = defaultSparseWindowBytes
	}
	if e.SparseMinSizeBytes < 0 {
		e.SparseMinSizeBytes = defaultSparseMinSizeBytes
	}
	e.IncludePatterns = normalizePatterns(e.IncludePatterns)
	e.ExcludePatterns = normalizePatterns(e.ExcludePatterns)
}

func (c *Config) normalizeEnrichment() {
	e := &c.Enrichment
	if e.StuckTimeoutSeconds <= 0 {
		e.StuckTimeoutSeconds = defaultStuckTimeoutSeconds
	}
	if e.PollIntervalSeconds <= 0 {
		e.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if e.MaxPixels <= 0 {
		e.MaxPixels = defaultMaxPixels
	}
	if e.ThumbnailSize <= 0 {
		e.ThumbnailSize = defaultThumbnailSize
	}
	if e.SequentialThreshold <= 0 {
		e.SequentialThreshold = defaultSequentialThreshold
	}
}

func (c *Config) normalizeCarving() {
	c.Carving.Tool = strings.ToLower(strings.TrimSpace(c.Carving.Tool))
	if c.Carving.Tool == "" {
		c.Carving.Tool = CarverForemost
	}
	c.Carving.ForemostBinary = strings.TrimSpace(c.Carving.ForemostBinary)
	if c.Carving.ForemostBinary == "" {
		c.Carving.ForemostBinary = defaultForemostBinary
	}
	c.Carving.ScalpelBinary = strings.TrimSpace(c.Carving.ScalpelBinary)
	if c.Carving.ScalpelBinary == "" {
		c.Carving.ScalpelBinary = defaultScalpelBinary
	}
	types := make([]string, 0, len(c.Carving.FileTypes))
	for _, t := range c.Carving.FileTypes {
		t = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(t)), ".")
		if t != "" {
			types = append(types, t)
		}
	}
	c.Carving.FileTypes = types
	if c.Carving.MaxFileSize <= 0 {
		c.Carving.MaxFileSize = defaultCarveMaxFileSize
	}
}

// normalizePatterns lower-cases glob patterns and converts backslashes so
// Windows-style evidence paths match the same rules.
func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(p, "\\", "/")))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
