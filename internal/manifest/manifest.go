package manifest

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileName is the manifest name inside a run's output directory.
const FileName = "manifest.json"

// Extractor names recorded as discovered_by.
const (
	ExtractorFilesystem = "filesystem_images"
	ExtractorForemost   = "foremost_carver"
	ExtractorScalpel    = "scalpel_carver"
)

// Version is the extractor version stamped on manifests and discoveries.
const Version = "1.0.0"

// Manifest is the audit record of one run.
type Manifest struct {
	RunID            string    `json:"run_id"`
	Extractor        string    `json:"extractor"`
	ExtractorVersion string    `json:"extractor_version"`
	Tool             *Tool     `json:"tool,omitempty"`
	Source           Source    `json:"source"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`

	TotalFiles   int   `json:"total_files"`
	TotalBytes   int64 `json:"total_bytes"`
	ErrorCount   int64 `json:"error_count"`
	WasCancelled bool  `json:"was_cancelled"`

	ExtractionMode        ExtractionMode        `json:"extraction_mode"`
	SignatureVerification SignatureVerification `json:"signature_verification"`
	SparseFiles           SparseFiles           `json:"sparse_files"`
	Config                RunConfig             `json:"config"`

	Files     []File     `json:"files"`
	Failures  []Failure  `json:"failures,omitempty"`
	Ingestion *Ingestion `json:"ingestion,omitempty"`
}

// Tool describes the external program a run invoked, if any.
type Tool struct {
	Name     string   `json:"name"`
	Path     string   `json:"path,omitempty"`
	Args     []string `json:"args,omitempty"`
	ExitCode int      `json:"exit_code"`
	Duration float64  `json:"duration_seconds"`
}

// Source identifies the evidence a run read from.
type Source struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// Source kinds.
const (
	SourceDirectory = "directory"
	SourceBodyfile  = "bodyfile"
	SourceImage     = "image"
	SourceCarved    = "carved_output"
)

// ExtractionMode records how the extractor scheduled the run.
type ExtractionMode struct {
	UsedParallel      bool   `json:"used_parallel"`
	EffectiveWorkers  int    `json:"effective_workers"`
	ConfiguredWorkers int    `json:"configured_workers"`
	ParallelEnabled   bool   `json:"parallel_enabled"`
	FallbackReason    string `json:"fallback_reason,omitempty"`
}

// SignatureVerification summarizes header checks.
type SignatureVerification struct {
	Enabled    bool  `json:"enabled"`
	Mismatches int64 `json:"mismatches"`
}

// SparseFiles summarizes placeholder content that was discarded.
type SparseFiles struct {
	Count       int64  `json:"count"`
	Description string `json:"description"`
}

const sparseDescription = "entries reporting a size but yielding no content or an all-zero leading window"

// RunConfig captures the settings that shaped the run.
type RunConfig struct {
	IncludePatterns         []string `json:"include_patterns"`
	ExcludePatterns         []string `json:"exclude_patterns"`
	MinSizeBytes            int64    `json:"min_size_bytes"`
	MaxSizeBytes            int64    `json:"max_size_bytes"`
	VerifySignatures        bool     `json:"use_signature_detection"`
	PreserveFolderStructure bool     `json:"preserve_folder_structure"`
}

// File is one extracted artifact.
type File struct {
	SourcePath string `json:"source_path"`
	Filename   string `json:"filename"`
	RelPath    string `json:"rel_path"`
	SizeBytes  int64  `json:"size_bytes"`
	MD5        string `json:"md5"`
	SHA256     string `json:"sha256"`

	Modified *time.Time `json:"mtime,omitempty"`
	Accessed *time.Time `json:"atime,omitempty"`
	Created  *time.Time `json:"crtime,omitempty"`
	Changed  *time.Time `json:"ctime,omitempty"`

	Inode     string `json:"inode,omitempty"`
	Partition int    `json:"partition,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`

	CarveOffset    *int64 `json:"carved_offset_bytes,omitempty"`
	CarveBlockSize *int64 `json:"carved_block_size,omitempty"`

	DetectedType   *string  `json:"detected_type,omitempty"`
	SignatureValid *bool    `json:"signature_valid,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Failure is an attempted task that did not produce a file, sparse entries
// excepted.
type Failure struct {
	SourcePath string `json:"source_path"`
	Error      string `json:"error"`
	Cancelled  bool   `json:"cancelled,omitempty"`
}

// Ingestion is appended once the run has been written to the catalog.
type Ingestion struct {
	Inserted   int       `json:"inserted"`
	Enriched   int       `json:"enriched"`
	Errors     int       `json:"errors"`
	Total      int       `json:"total"`
	Missing    int       `json:"missing_files,omitempty"`
	Cancelled  bool      `json:"cancelled,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// NewRunID returns a filesystem run identifier: fs_YYYYMMDD_HHMMSS_<8 hex>.
func NewRunID(now time.Time) string {
	return "fs_" + now.UTC().Format("20060102_150405") + "_" + shortUUID()
}

// NewCarveRunID returns a carving run identifier: YYYYMMDD_HHMM_<8 hex>.
func NewCarveRunID(now time.Time) string {
	return now.UTC().Format("20060102_1504") + "_" + shortUUID()
}

func shortUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
