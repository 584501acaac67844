package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains output and state locations.
type Paths struct {
	OutputDir    string `toml:"output_dir"`
	DatabasePath string `toml:"database_path"`
	LogDir       string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Extraction tunes the parallel extractor and the discovery filters that feed it.
type Extraction struct {
	ParallelEnabled         bool     `toml:"parallel_enabled"`
	MaxWorkers              int      `toml:"max_workers"`
	MinParallelTasks        int      `toml:"min_parallel_tasks"`
	TasksPerWorker          int      `toml:"tasks_per_worker"`
	ChunkSize               int      `toml:"chunk_size"`
	CancelCheckBytes        int64    `toml:"cancel_check_bytes"`
	SparseWindowBytes       int      `toml:"sparse_window_bytes"`
	SparseMinSizeBytes      int64    `toml:"sparse_min_size_bytes"`
	VerifySignatures        bool     `toml:"verify_signatures"`
	PreserveFolderStructure bool     `toml:"preserve_folder_structure"`
	IncludePatterns         []string `toml:"include_patterns"`
	ExcludePatterns         []string `toml:"exclude_patterns"`
	MinSizeBytes            int64    `toml:"min_size_bytes"`
	MaxSizeBytes            int64    `toml:"max_size_bytes"`
}

// Enrichment tunes the process pool that computes perceptual hashes, EXIF, and thumbnails.
type Enrichment struct {
	Enabled             bool  `toml:"enabled"`
	UseProcessPool      bool  `toml:"use_process_pool"`
	MaxWorkers          int   `toml:"max_workers"`
	StuckTimeoutSeconds int   `toml:"stuck_timeout_seconds"`
	PollIntervalSeconds int   `toml:"poll_interval_seconds"`
	MaxPixels           int64 `toml:"max_pixels"`
	ThumbnailSize       int   `toml:"thumbnail_size"`
	SequentialThreshold int   `toml:"sequential_threshold"`
}

// Carving configures the external file carvers.
type Carving struct {
	Tool           string   `toml:"tool"`
	ForemostBinary string   `toml:"foremost_binary"`
	ScalpelBinary  string   `toml:"scalpel_binary"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	FileTypes      []string `toml:"file_types"`
	MaxFileSize    int64    `toml:"max_file_size"`
}

// Config encapsulates all configuration values for exhume.
//
// Configuration sections by subsystem:
//   - Paths: output tree, catalog database, and log directory
//   - Logging: log format and level
//   - Extraction: worker pool sizing, streaming, sparse heuristics, filters
//   - Enrichment: process pool sizing, watchdog, decode limits
//   - Carving: foremost/scalpel invocation
type Config struct {
	Paths      Paths      `toml:"paths"`
	Logging    Logging    `toml:"logging"`
	Extraction Extraction `toml:"extraction"`
	Enrichment Enrichment `toml:"enrichment"`
	Carving    Carving    `toml:"carving"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("exhume.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output, log, and database directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.LogDir, filepath.Dir(c.Paths.DatabasePath)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExtractionWorkers resolves the configured extraction worker cap. Zero means
// one worker per CPU, minus two left for the caller and the filesystem.
func (c *Config) ExtractionWorkers() int {
	return autoWorkers(c.Extraction.MaxWorkers)
}

// EnrichmentWorkers resolves the configured enrichment process count.
func (c *Config) EnrichmentWorkers() int {
	return autoWorkers(c.Enrichment.MaxWorkers)
}

func autoWorkers(configured int) int {
	if configured > 0 {
		return configured
	}
	n := runtime.NumCPU() - 2
	if n < 1 {
		return 1
	}
	return n
}

// CarverBinary returns the executable for the configured carving tool.
func (c *Config) CarverBinary() string {
	if c.Carving.Tool == CarverScalpel {
		return c.Carving.ScalpelBinary
	}
	return c.Carving.ForemostBinary
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
