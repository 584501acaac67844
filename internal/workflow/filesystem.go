package workflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"exhume/internal/evidence"
	"exhume/internal/extract"
	"exhume/internal/logging"
	"exhume/internal/manifest"
)

// FilesystemRequest selects the evidence for a filesystem run.
type FilesystemRequest struct {
	// Root is the mounted filesystem or directory files are read from.
	Root string
	// Bodyfile, when set, is a Sleuth Kit listing whose paths are resolved
	// under Root instead of walking it.
	Bodyfile    string
	Partition   int
	StripPrefix string
}

// FilesystemRun extracts the image files of a mounted filesystem.
func (r *Runner) FilesystemRun(ctx context.Context, req FilesystemRequest) (Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	release, err := r.begin(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	dir, err := evidence.OpenDir(req.Root)
	if err != nil {
		return Outcome{}, err
	}
	defer dir.Close()

	var (
		container evidence.Container = dir
		out       Outcome
		source    = manifest.Source{Kind: manifest.SourceDirectory, Path: dir.Base()}
	)
	if req.Bodyfile != "" {
		entries, stats, err := readBodyfile(req)
		if err != nil {
			return Outcome{}, err
		}
		container = evidence.WithCatalog(dir, entries)
		source = manifest.Source{Kind: manifest.SourceBodyfile, Path: req.Bodyfile}
		out.Bodyfile = &stats
		if stats.Malformed > 0 {
			logging.WarnWithContext(r.logger, "bodyfile contains malformed lines", "bodyfile_malformed",
				logging.Int("malformed", stats.Malformed),
				logging.String(logging.FieldErrorHint, "check the bodyfile was produced by fls -m"),
				logging.String(logging.FieldImpact, "malformed rows are not extracted"),
			)
		}
	}

	entries, err := container.List(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("list evidence: %w", err)
	}
	out.Discovered = len(entries)
	tasks := extract.NewTasks(filterFromConfig(r.cfg).Apply(entries))

	meta := manifest.Meta{
		RunID:     manifest.NewRunID(time.Now()),
		Extractor: manifest.ExtractorFilesystem,
		Source:    source,
	}
	err = r.extract(ctx, container, tasks, meta, &out)
	return out, err
}

func readBodyfile(req FilesystemRequest) ([]evidence.Entry, evidence.BodyfileStats, error) {
	f, err := os.Open(req.Bodyfile)
	if err != nil {
		return nil, evidence.BodyfileStats{}, fmt.Errorf("open bodyfile: %w", err)
	}
	defer f.Close()
	return evidence.ParseBodyfile(f, evidence.BodyfileOptions{
		Partition:   req.Partition,
		StripPrefix: req.StripPrefix,
	})
}
