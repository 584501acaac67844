package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"exhume/internal/config"
	"exhume/internal/logging"
)

var errPoolUnavailable = errors.New("enrichment process pool unavailable")

const cancelledMessage = "Cancelled before enrichment"

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Item Options

	Workers             int
	UseProcessPool      bool
	StuckTimeout        time.Duration
	PollInterval        time.Duration
	SequentialThreshold int

	// Command and Args start one worker process. Command defaults to the
	// running executable and Args to the enrich-worker subcommand. Env is
	// appended to the parent environment.
	Command string
	Args    []string
	Env     []string

	// Handler runs items in-process when the pool is not used. Defaults to
	// Enrich.
	Handler Handler
}

// ProcessorOptionsFromConfig derives processor options from cfg.
func ProcessorOptionsFromConfig(cfg *config.Config) ProcessorOptions {
	en := cfg.Enrichment
	return ProcessorOptions{
		Item: Options{
			OutputDir:     cfg.Paths.OutputDir,
			MaxPixels:     en.MaxPixels,
			ThumbnailSize: en.ThumbnailSize,
		},
		Workers:             cfg.EnrichmentWorkers(),
		UseProcessPool:      en.UseProcessPool,
		StuckTimeout:        time.Duration(en.StuckTimeoutSeconds) * time.Second,
		PollInterval:        time.Duration(en.PollIntervalSeconds) * time.Second,
		SequentialThreshold: en.SequentialThreshold,
	}
}

// Processor enriches batches of extracted files.
type Processor struct {
	opts   ProcessorOptions
	logger *slog.Logger
}

// NewProcessor constructs a processor, filling unset options with defaults.
func NewProcessor(opts ProcessorOptions, logger *slog.Logger) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.StuckTimeout <= 0 {
		opts.StuckTimeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PollInterval > opts.StuckTimeout {
		opts.PollInterval = opts.StuckTimeout
	}
	if len(opts.Args) == 0 && opts.Command == "" {
		opts.Args = []string{WorkerCommand}
	}
	if opts.Handler == nil {
		opts.Handler = Enrich
	}
	return &Processor{
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "enrichment"),
	}
}

// Process enriches every path and returns one result per distinct path,
// sorted by path. Per-file failures are reported in the results. The error is
// non-nil only when ctx ended first; the unfinished files then carry a
// cancellation error.
func (p *Processor) Process(ctx context.Context, paths []string) ([]Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ordered := sortedUnique(paths)
	if len(ordered) == 0 {
		return nil, nil
	}
	logger := logging.WithContext(ctx, p.logger)
	start := time.Now()

	var (
		results map[string]Result
		err     error
		mode    string
	)
	switch {
	case !p.opts.UseProcessPool:
		mode = "sequential"
		results, err = p.runSequential(ctx, ordered)
	case p.opts.SequentialThreshold > 0 && len(ordered) >= p.opts.SequentialThreshold:
		mode = "sequential"
		logger.Info("batch exceeds process pool threshold; enriching sequentially",
			logging.String(logging.FieldEventType, "enrich_sequential_threshold"),
			logging.Int("files", len(ordered)),
			logging.Int("threshold", p.opts.SequentialThreshold),
		)
		results, err = p.runSequential(ctx, ordered)
	default:
		mode = "process_pool"
		results, err = p.runPool(ctx, ordered)
		if errors.Is(err, errPoolUnavailable) {
			logging.WarnWithContext(logger, "process pool unavailable; enriching sequentially", "enrich_pool_fallback",
				logging.String(logging.FieldErrorHint, "worker processes could not be started"),
				logging.String(logging.FieldImpact, "enrichment runs in-process without crash isolation"),
				logging.Error(err),
			)
			mode = "sequential_fallback"
			results, err = p.runSequential(ctx, ordered)
		}
	}

	out := make([]Result, 0, len(ordered))
	var failed int
	for _, path := range ordered {
		res, ok := results[path]
		if !ok {
			res = p.failed(path, cancelledMessage)
		}
		if res.Error != "" {
			failed++
		}
		out = append(out, res)
	}
	logger.Info("enrichment finished",
		logging.String(logging.FieldEventType, "enrich_complete"),
		logging.String("mode", mode),
		logging.Int("files", len(out)),
		logging.Int("failed", failed),
		logging.Duration("elapsed", time.Since(start)),
	)
	return out, err
}

func (p *Processor) runSequential(ctx context.Context, paths []string) (map[string]Result, error) {
	results := make(map[string]Result, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			p.failRemaining(results, paths, cancelledMessage)
			return results, err
		}
		results[path] = safeEnrich(ctx, p.opts.Handler, path, p.opts.Item)
	}
	return results, nil
}

func (p *Processor) failed(path, msg string) Result {
	return Result{
		Path:     path,
		RelPath:  relativeTo(p.opts.Item.OutputDir, path),
		Filename: filepath.Base(path),
		Error:    msg,
	}
}

// failRemaining marks every path without a result as failed with msg.
func (p *Processor) failRemaining(results map[string]Result, paths []string, msg string) int {
	var n int
	for _, path := range paths {
		if _, done := results[path]; done {
			continue
		}
		results[path] = p.failed(path, msg)
		n++
	}
	return n
}

func (p *Processor) command() (string, error) {
	if p.opts.Command != "" {
		return p.opts.Command, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func sortedUnique(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
