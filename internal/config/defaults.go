package config

const (
	defaultConfigPath   = "~/.config/exhume/config.toml"
	defaultOutputDir    = "~/.local/share/exhume/output"
	defaultDatabasePath = "~/.local/share/exhume/catalog.db"
	defaultLogDir       = "~/.local/share/exhume/logs"
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"

	defaultMinParallelTasks   = 10
	defaultTasksPerWorker     = 10
	defaultChunkSize          = 64 * 1024
	defaultCancelCheckBytes   = 1024 * 1024
	defaultSparseWindowBytes  = 64 * 1024
	defaultSparseMinSizeBytes = 1024

	defaultStuckTimeoutSeconds = 60
	defaultPollIntervalSeconds = 5
	defaultMaxPixels           = 175_000_000
	defaultThumbnailSize       = 256
	defaultSequentialThreshold = 20_000

	defaultForemostBinary   = "foremost"
	defaultScalpelBinary    = "scalpel"
	defaultCarveTimeout     = 12 * 60 * 60
	defaultCarveMaxFileSize = 10_000_000
)

// Carving tool names.
const (
	CarverForemost = "foremost"
	CarverScalpel  = "scalpel"
)

// DefaultIncludePatterns lists the image extensions discovery keeps when no
// include patterns are configured.
var DefaultIncludePatterns = []string{
	"*.jpg", "*.jpeg", "*.jpe", "*.jfif", "*.png", "*.gif", "*.bmp", "*.dib",
	"*.tif", "*.tiff", "*.webp", "*.ico", "*.cur", "*.svg", "*.heic", "*.heif", "*.avif",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:    defaultOutputDir,
			DatabasePath: defaultDatabasePath,
			LogDir:       defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Extraction: Extraction{
			ParallelEnabled:         true,
			MinParallelTasks:        defaultMinParallelTasks,
			TasksPerWorker:          defaultTasksPerWorker,
			ChunkSize:               defaultChunkSize,
			CancelCheckBytes:        defaultCancelCheckBytes,
			SparseWindowBytes:       defaultSparseWindowBytes,
			SparseMinSizeBytes:      defaultSparseMinSizeBytes,
			VerifySignatures:        true,
			PreserveFolderStructure: true,
			IncludePatterns:         append([]string(nil), DefaultIncludePatterns...),
		},
		Enrichment: Enrichment{
			Enabled:             true,
			UseProcessPool:      true,
			StuckTimeoutSeconds: defaultStuckTimeoutSeconds,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			MaxPixels:           defaultMaxPixels,
			ThumbnailSize:       defaultThumbnailSize,
			SequentialThreshold: defaultSequentialThreshold,
		},
		Carving: Carving{
			Tool:           CarverForemost,
			ForemostBinary: defaultForemostBinary,
			ScalpelBinary:  defaultScalpelBinary,
			TimeoutSeconds: defaultCarveTimeout,
			FileTypes:      []string{"jpg", "png", "gif", "bmp", "tif"},
			MaxFileSize:    defaultCarveMaxFileSize,
		},
	}
}
