package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"exhume/internal/carve"
	"exhume/internal/config"
	"exhume/internal/extract"
	"exhume/internal/logging"
	"exhume/internal/preflight"
)

// LockFileName is the lock file created in the output directory for the
// duration of a run.
const LockFileName = ".exhume.lock"

// ErrOutputLocked is returned when another run holds the output directory.
var ErrOutputLocked = errors.New("output directory is in use by another exhume run")

// Runner executes extraction runs against one configuration.
type Runner struct {
	cfg      *config.Config
	base     *slog.Logger
	logger   *slog.Logger
	progress func(done, total int, stats extract.Stats)
	carver   *carve.Runner
}

// Option configures a Runner.
type Option func(*Runner)

// WithProgress reports extraction progress after every finished task.
func WithProgress(fn func(done, total int, stats extract.Stats)) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}

// WithCarver overrides the carver built from the [carving] section.
func WithCarver(c *carve.Runner) Option {
	return func(r *Runner) {
		r.carver = c
	}
}

// New constructs a runner.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		base:   logger,
		logger: logging.NewComponentLogger(logger, "workflow"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// begin prepares the output directory and takes the run lock. The returned
// function releases it.
func (r *Runner) begin(ctx context.Context) (func(), error) {
	if r.cfg == nil {
		return nil, errors.New("workflow: config required")
	}
	if err := r.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	if err := r.runPreflightChecks(ctx); err != nil {
		return nil, err
	}

	lockPath := filepath.Join(r.cfg.Paths.OutputDir, LockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", r.cfg.Paths.OutputDir, ErrOutputLocked)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release output lock",
				logging.String("lock", lockPath),
				logging.Error(err),
			)
		}
	}, nil
}

// runPreflightChecks fails the run before any work when a directory check
// fails.
func (r *Runner) runPreflightChecks(ctx context.Context) error {
	logger := logging.WithContext(ctx, r.logger)
	var failures []string
	for _, res := range preflight.RunAll(r.cfg) {
		if res.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", res.Name),
				logging.String("detail", res.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", res.Name),
			logging.String("detail", res.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported directory and rerun"),
		)
		failures = append(failures, fmt.Sprintf("%s: %s", res.Name, res.Detail))
	}
	if len(failures) > 0 {
		return fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
	}
	return nil
}
