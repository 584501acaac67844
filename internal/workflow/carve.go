package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"exhume/internal/carve"
	"exhume/internal/deps"
	"exhume/internal/evidence"
	"exhume/internal/extract"
	"exhume/internal/logging"
	"exhume/internal/manifest"
)

// CarveRequest names the raw image to carve.
type CarveRequest struct {
	Image string
}

// ImportRequest names an existing foremost or scalpel output directory.
type ImportRequest struct {
	Dir string
}

// CarveRun carves the image with the configured tool and extracts the
// carved images with their byte offsets.
func (r *Runner) CarveRun(ctx context.Context, req CarveRequest) (Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	release, err := r.begin(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	carver := r.carver
	if carver == nil {
		carver, err = carve.RunnerFromConfig(r.cfg, carve.WithLogger(r.base))
		if err != nil {
			return Outcome{}, err
		}
	}

	image, err := filepath.Abs(req.Image)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve image path: %w", err)
	}
	res, err := carver.Run(ctx, image, r.cfg.Paths.OutputDir)
	if err != nil {
		return Outcome{Carve: &res}, err
	}

	toolPath := res.Binary
	if resolved, err := deps.Resolve(res.Binary); err == nil {
		toolPath = resolved
	}
	meta := manifest.Meta{
		RunID:     manifest.NewCarveRunID(time.Now()),
		Extractor: extractorForTool(res.Tool),
		Tool: &manifest.Tool{
			Name:     res.Tool,
			Path:     toolPath,
			Args:     res.Args,
			ExitCode: res.ExitCode,
			Duration: res.Duration.Seconds(),
		},
		Source: manifest.Source{Kind: manifest.SourceImage, Path: image},
	}
	out := Outcome{Carve: &res}
	err = r.extractCarved(ctx, res.OutputDir, res.Files, res.Audit, meta, &out)
	return out, err
}

// ImportRun copies an existing carver output directory into the output
// directory and extracts it as a carve run.
func (r *Runner) ImportRun(ctx context.Context, req ImportRequest) (Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	release, err := r.begin(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	src, err := filepath.Abs(req.Dir)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve carver output path: %w", err)
	}
	imp, err := carve.ImportDir(src, r.cfg.Paths.OutputDir)
	if err != nil {
		return Outcome{}, err
	}
	audit := carve.Audit{}
	if imp.AuditPath != "" {
		if audit, err = carve.ReadAudit(imp.AuditPath); err != nil {
			return Outcome{}, err
		}
	}
	r.logger.Info("imported carver output",
		logging.String(logging.FieldEventType, "carve_import"),
		logging.String("tool", imp.Tool),
		logging.String("source", src),
		logging.Int("files", len(imp.Files)),
	)

	meta := manifest.Meta{
		RunID:     manifest.NewCarveRunID(time.Now()),
		Extractor: extractorForTool(imp.Tool),
		Tool:      &manifest.Tool{Name: imp.Tool},
		Source:    manifest.Source{Kind: manifest.SourceCarved, Path: src},
	}
	var out Outcome
	carvedDir := filepath.Join(r.cfg.Paths.OutputDir, carve.CarvedDir)
	err = r.extractCarved(ctx, carvedDir, imp.Files, audit, meta, &out)
	return out, err
}

// extractCarved builds tasks for the collected carved files, attaching the
// audit offsets, and extracts them.
func (r *Runner) extractCarved(ctx context.Context, carvedDir string, files []string, audit carve.Audit, meta manifest.Meta, out *Outcome) error {
	dir, err := evidence.OpenDir(carvedDir)
	if err != nil {
		return err
	}
	defer dir.Close()

	entries, err := dir.List(ctx)
	if err != nil {
		return fmt.Errorf("list carved files: %w", err)
	}
	keep := make(map[string]struct{}, len(files))
	for _, f := range files {
		keep[evidence.CleanPath(f)] = struct{}{}
	}
	selected := entries[:0]
	for _, e := range entries {
		if _, ok := keep[e.Path]; ok {
			selected = append(selected, e)
		}
	}
	out.Discovered = len(files)

	tasks := extract.NewTasks(selected)
	offsets := audit.ByName()
	var located int
	for i := range tasks {
		entry, ok := offsets[tasks[i].Name]
		if !ok {
			continue
		}
		offset := entry.Offset
		tasks[i].CarveOffset = &offset
		if audit.BlockSize > 0 {
			block := audit.BlockSize
			tasks[i].CarveBlockSize = &block
		}
		located++
	}
	if len(tasks) > 0 && located < len(tasks) {
		r.logger.Debug("carved files without audit offsets",
			logging.String(logging.FieldEventType, "carve_offsets_missing"),
			logging.Int("missing", len(tasks)-located),
		)
	}
	return r.extract(ctx, dir, tasks, meta, out)
}

func extractorForTool(tool string) string {
	if tool == carve.ToolScalpel {
		return manifest.ExtractorScalpel
	}
	return manifest.ExtractorForemost
}
