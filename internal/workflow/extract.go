package workflow

import (
	"context"
	"fmt"
	"path/filepath"

	"exhume/internal/carve"
	"exhume/internal/config"
	"exhume/internal/evidence"
	"exhume/internal/extract"
	"exhume/internal/logging"
	"exhume/internal/manifest"
)

// Outcome describes a finished run.
type Outcome struct {
	RunID        string
	ManifestPath string
	Manifest     manifest.Manifest
	// Discovered counts candidate files before filtering; Selected counts
	// the tasks handed to the extractor.
	Discovered int
	Selected   int
	Bodyfile   *evidence.BodyfileStats
	Carve      *carve.RunResult
}

// extract runs the extractor over tasks and writes the manifest. A
// cancelled run still writes its manifest and then returns an error
// wrapping extract.ErrCancelled.
func (r *Runner) extract(ctx context.Context, c evidence.Container, tasks []extract.Task, meta manifest.Meta, out *Outcome) error {
	ctx = logging.WithStage(logging.WithRunID(ctx, meta.RunID), "extract")
	logger := logging.WithContext(ctx, r.logger)

	opts := extract.OptionsFromConfig(r.cfg)
	opts.Progress = r.progress
	report, err := extract.New(opts, r.base).Run(ctx, c, tasks)
	if err != nil {
		logging.ErrorWithContext(logger, "extraction failed", "extract_failed",
			logging.Int("tasks", len(tasks)),
			logging.Error(err),
		)
		return err
	}

	meta.Config = runConfig(r.cfg)
	meta.VerifySignatures = r.cfg.Extraction.VerifySignatures
	m := manifest.FromReport(report, meta)
	path := filepath.Join(r.cfg.Paths.OutputDir, manifest.FileName)
	if err := manifest.Write(path, m); err != nil {
		return err
	}
	out.RunID = m.RunID
	out.ManifestPath = path
	out.Manifest = m
	out.Selected = len(tasks)

	logger.Info("manifest written",
		logging.String(logging.FieldEventType, "manifest_written"),
		logging.String("manifest", path),
		logging.Int("files", len(m.Files)),
		logging.Int64("errors", m.ErrorCount),
		logging.Bool("cancelled", m.WasCancelled),
	)
	if report.Cancelled {
		return fmt.Errorf("%w: %w", extract.ErrCancelled, context.Cause(ctx))
	}
	return nil
}

func runConfig(cfg *config.Config) manifest.RunConfig {
	ex := cfg.Extraction
	return manifest.RunConfig{
		IncludePatterns:         append([]string(nil), ex.IncludePatterns...),
		ExcludePatterns:         append([]string(nil), ex.ExcludePatterns...),
		MinSizeBytes:            ex.MinSizeBytes,
		MaxSizeBytes:            ex.MaxSizeBytes,
		VerifySignatures:        ex.VerifySignatures,
		PreserveFolderStructure: ex.PreserveFolderStructure,
	}
}

func filterFromConfig(cfg *config.Config) evidence.Filter {
	ex := cfg.Extraction
	return evidence.Filter{
		Include: ex.IncludePatterns,
		Exclude: ex.ExcludePatterns,
		MinSize: ex.MinSizeBytes,
		MaxSize: ex.MaxSizeBytes,
	}
}
