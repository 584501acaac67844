package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"exhume/internal/enrich"
	"exhume/internal/logging"
	"exhume/internal/manifest"
	"exhume/internal/store"
)

// Counts summarizes one ingestion.
type Counts struct {
	Inserted  int
	Enriched  int
	Errors    int
	Total     int
	Missing   int
	Cancelled bool
}

// Options tunes an Orchestrator.
type Options struct {
	// Processor enriches files before insertion; nil skips enrichment.
	Processor *enrich.Processor
	// Progress, when set, is called after every manifest entry is written.
	Progress func(done, total int)
}

// Orchestrator ingests manifests into a store it does not own.
type Orchestrator struct {
	store  *store.Store
	opts   Options
	logger *slog.Logger
}

// New constructs an orchestrator.
func New(st *store.Store, opts Options, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:  st,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "ingestion"),
	}
}

// Ingest writes the run described by the manifest at manifestPath into the
// catalog for evidenceID and records the counts in the manifest. When ctx
// ends mid-batch the transaction is rolled back, the partial counts are
// returned with Cancelled set, and the error is ctx's.
func (o *Orchestrator) Ingest(ctx context.Context, manifestPath string, evidenceID int64) (Counts, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.store == nil {
		return Counts{}, errors.New("ingest: store not configured")
	}
	m, err := manifest.Read(manifestPath)
	if err != nil {
		return Counts{}, err
	}
	ctx = logging.WithStage(logging.WithRunID(logging.WithEvidenceID(ctx, evidenceID), m.RunID), "ingest")
	logger := logging.WithContext(ctx, o.logger)
	baseDir := filepath.Dir(manifestPath)

	counts := Counts{Total: len(m.Files)}
	enriched, missing, err := o.enrich(ctx, baseDir, m.Files)
	counts.Missing = missing
	if err != nil {
		counts.Cancelled = ctx.Err() != nil
		return counts, err
	}
	if missing > 0 {
		logging.WarnWithContext(logger, "extracted files missing on disk", "ingest_missing_files",
			logging.Int("missing", missing),
			logging.String(logging.FieldErrorHint, "output directory was modified after extraction"),
			logging.String(logging.FieldImpact, "missing files are recorded without enrichment"),
		)
	}

	tx, err := o.store.Begin(ctx)
	if err != nil {
		counts.Cancelled = ctx.Err() != nil
		return counts, err
	}
	defer func() { _ = tx.Rollback() }()

	deleted, err := tx.DeleteDiscoveriesByRun(ctx, evidenceID, m.RunID)
	if err != nil {
		counts.Cancelled = ctx.Err() != nil
		return counts, err
	}
	if deleted > 0 {
		logger.Info("replacing discoveries from earlier ingestion",
			logging.String(logging.FieldEventType, "ingest_reingest"),
			logging.Int64("deleted", deleted),
		)
	}

	for i, file := range m.Files {
		if err := ctx.Err(); err != nil {
			_ = tx.Rollback()
			counts.Cancelled = true
			logging.WarnWithContext(logger, "ingestion cancelled; transaction rolled back", "ingest_cancelled",
				logging.Int("written", i),
				logging.Int("total", counts.Total),
				logging.String(logging.FieldImpact, "no records from this run were committed"),
			)
			return counts, err
		}

		img, disc := buildRecords(m, file, enriched[filepath.Join(baseDir, filepath.FromSlash(file.RelPath))])
		_, wasNew, err := tx.InsertWithDiscovery(ctx, evidenceID, img, disc)
		switch {
		case err != nil:
			counts.Errors++
			logger.Warn("failed to ingest file",
				logging.String(logging.FieldEventType, "ingest_record_failed"),
				logging.SourcePath(file.SourcePath),
				logging.String(logging.FieldErrorHint, "record skipped"),
				logging.String(logging.FieldImpact, "file missing from catalog"),
				logging.Error(err),
			)
		case wasNew:
			counts.Inserted++
		default:
			counts.Enriched++
		}
		if o.opts.Progress != nil {
			o.opts.Progress(i+1, counts.Total)
		}
	}

	if err := tx.Commit(); err != nil {
		counts.Cancelled = ctx.Err() != nil
		return counts, fmt.Errorf("ingest run %s: %w", m.RunID, err)
	}

	if err := manifest.AppendIngestion(manifestPath, manifest.Ingestion{
		Inserted:   counts.Inserted,
		Enriched:   counts.Enriched,
		Errors:     counts.Errors,
		Total:      counts.Total,
		Missing:    counts.Missing,
		IngestedAt: time.Now().UTC(),
	}); err != nil {
		return counts, fmt.Errorf("record ingestion in manifest: %w", err)
	}

	logger.Info("ingestion complete",
		logging.String(logging.FieldEventType, "ingest_complete"),
		logging.Int("inserted", counts.Inserted),
		logging.Int("enriched", counts.Enriched),
		logging.Int("errors", counts.Errors),
		logging.Int("total", counts.Total),
	)
	return counts, nil
}

// enrich runs the processor over the files present on disk and returns the
// results keyed by absolute path, plus the number of missing files.
func (o *Orchestrator) enrich(ctx context.Context, baseDir string, files []manifest.File) (map[string]enrich.Result, int, error) {
	var (
		paths   []string
		missing int
	)
	for _, f := range files {
		if f.RelPath == "" {
			missing++
			continue
		}
		full := filepath.Join(baseDir, filepath.FromSlash(f.RelPath))
		if _, err := os.Stat(full); err != nil {
			missing++
			continue
		}
		paths = append(paths, full)
	}
	if o.opts.Processor == nil || len(paths) == 0 {
		return nil, missing, ctx.Err()
	}
	results, err := o.opts.Processor.Process(ctx, paths)
	out := make(map[string]enrich.Result, len(results))
	for _, res := range results {
		out[res.Path] = res
	}
	return out, missing, err
}

func buildRecords(m *manifest.Manifest, f manifest.File, res enrich.Result) (store.Image, store.Discovery) {
	img := store.Image{
		RelPath:   f.RelPath,
		Filename:  f.Filename,
		MD5:       f.MD5,
		SHA256:    f.SHA256,
		SizeBytes: f.SizeBytes,
	}
	if img.RelPath == "" {
		img.RelPath = f.SourcePath
	}
	if img.Filename == "" {
		img.Filename = filepath.Base(img.RelPath)
	}
	switch {
	case res.Path == "":
	case res.Error != "":
		img.Notes = "Processing error: " + res.Error
	default:
		img.PHash = res.PHash
		img.ExifJSON = res.ExifJSON
		img.Width = res.Width
		img.Height = res.Height
		img.Format = res.Format
		img.ThumbnailPath = res.ThumbnailPath
		img.Notes = res.Notes
	}

	modified, accessed, created, changed := f.Times()
	disc := store.Discovery{
		DiscoveredBy:     m.Extractor,
		RunID:            m.RunID,
		ExtractorVersion: m.ExtractorVersion,
		FSPath:           f.SourcePath,
		FSInode:          f.Inode,
		FSPartition:      f.Partition,
		FSModified:       modified,
		FSAccessed:       accessed,
		FSCreated:        created,
		FSChanged:        changed,
		CarvedOffset:     f.CarveOffset,
		CarvedBlockSize:  f.CarveBlockSize,
	}
	if f.CarveOffset != nil || f.CarveBlockSize != nil {
		disc.CarvedToolOutput = m.Source.Path
	}
	return img, disc
}
