package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"exhume/internal/config"
	"exhume/internal/evidence"
	"exhume/internal/logging"
)

// ErrCancelled is returned when a run stops because its context ended.
var ErrCancelled = errors.New("extraction cancelled")

const (
	cancelledMessage  = "Cancelled during extraction"
	notStartedMessage = "Cancelled before extraction"
)

// Options tunes an Extractor.
type Options struct {
	OutputDir string

	ParallelEnabled  bool
	MaxWorkers       int
	MinParallelTasks int
	TasksPerWorker   int

	ChunkSize          int
	CancelCheckBytes   int64
	SparseWindowBytes  int
	SparseMinSizeBytes int64

	VerifySignatures  bool
	PreserveStructure bool

	// Progress, when set, is called after every finished task. Calls are
	// serialized.
	Progress func(done, total int, stats Stats)
}

// OptionsFromConfig derives extractor options from the extraction section.
func OptionsFromConfig(cfg *config.Config) Options {
	ex := cfg.Extraction
	return Options{
		OutputDir:          cfg.Paths.OutputDir,
		ParallelEnabled:    ex.ParallelEnabled,
		MaxWorkers:         cfg.ExtractionWorkers(),
		MinParallelTasks:   ex.MinParallelTasks,
		TasksPerWorker:     ex.TasksPerWorker,
		ChunkSize:          ex.ChunkSize,
		CancelCheckBytes:   ex.CancelCheckBytes,
		SparseWindowBytes:  ex.SparseWindowBytes,
		SparseMinSizeBytes: ex.SparseMinSizeBytes,
		VerifySignatures:   ex.VerifySignatures,
		PreserveStructure:  ex.PreserveFolderStructure,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 1
	}
	if o.MinParallelTasks <= 0 {
		o.MinParallelTasks = 10
	}
	if o.TasksPerWorker <= 0 {
		o.TasksPerWorker = 10
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 64 * 1024
	}
	if o.CancelCheckBytes <= 0 {
		o.CancelCheckBytes = 1024 * 1024
	}
	if o.SparseWindowBytes <= 0 {
		o.SparseWindowBytes = 64 * 1024
	}
	if o.SparseMinSizeBytes <= 0 {
		o.SparseMinSizeBytes = 1024
	}
	return o
}

// Extractor runs extraction batches.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

// New constructs an extractor.
func New(opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{
		opts:   opts.withDefaults(),
		logger: logging.NewComponentLogger(logger, "extractor"),
	}
}

// plan decides whether a batch of n tasks runs in parallel and with how many
// workers.
func (e *Extractor) plan(n int) Mode {
	effective := min(e.opts.MaxWorkers, max(1, n/e.opts.TasksPerWorker))
	return Mode{
		UsedParallel:      e.opts.ParallelEnabled && effective > 1 && n >= e.opts.MinParallelTasks,
		EffectiveWorkers:  effective,
		ConfiguredWorkers: e.opts.MaxWorkers,
		ParallelEnabled:   e.opts.ParallelEnabled,
	}
}

// Run extracts tasks from c. c stays owned by the caller; worker clones are
// closed before Run returns. Per-task failures are reported in the results;
// the returned error is reserved for setup failures.
func (e *Extractor) Run(ctx context.Context, c evidence.Container, tasks []Task) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c == nil {
		return Report{}, errors.New("extract: nil container")
	}
	if e.opts.OutputDir == "" {
		return Report{}, errors.New("extract: output directory not set")
	}
	outputDir, err := filepath.Abs(e.opts.OutputDir)
	if err != nil {
		return Report{}, fmt.Errorf("resolve output dir: %w", err)
	}

	ordered := append([]Task(nil), tasks...)
	sortTasks(ordered)

	batch := &batch{
		ctx:       ctx,
		opts:      e.opts,
		outputDir: outputDir,
		tasks:     ordered,
		dests:     planDestinations(ordered, e.opts.PreserveStructure),
		results:   make([]Result, len(ordered)),
		done:      make([]bool, len(ordered)),
	}

	report := Report{StartedAt: time.Now().UTC()}
	mode := e.plan(len(ordered))
	logger := logging.WithContext(ctx, e.logger)

	var handles []evidence.Container
	if mode.UsedParallel {
		handles, err = cloneHandles(c, mode.EffectiveWorkers)
		if err != nil {
			mode.UsedParallel = false
			mode.FallbackReason = err.Error()
			logging.WarnWithContext(logger, "parallel extraction unavailable; running sequentially", "extract_fallback",
				logging.String(logging.FieldErrorHint, "container handles could not be cloned"),
				logging.String(logging.FieldImpact, "extraction runs on a single handle"),
				logging.Error(err),
			)
		}
	}
	if !mode.UsedParallel {
		mode.EffectiveWorkers = 1
	}

	logger.Info("extraction started",
		logging.String(logging.FieldEventType, "extract_start"),
		logging.Int("tasks", len(ordered)),
		logging.Bool("parallel", mode.UsedParallel),
		logging.Int("workers", mode.EffectiveWorkers),
	)

	if mode.UsedParallel {
		batch.runParallel(handles)
	} else {
		batch.runSequential(c)
	}
	batch.fillNotStarted()

	report.Results = batch.results
	report.Stats = batch.stats.snapshot()
	report.Mode = mode
	report.Cancelled = ctx.Err() != nil
	report.CompletedAt = time.Now().UTC()

	logger.Info("extraction finished",
		logging.String(logging.FieldEventType, "extract_complete"),
		logging.Int64("extracted", report.Stats.Extracted),
		logging.Int64("bytes", report.Stats.Bytes),
		logging.Int64("errors", report.Stats.Errors),
		logging.Int64("sparse", report.Stats.Sparse),
		logging.Int64("signature_mismatches", report.Stats.Mismatches),
		logging.Bool("cancelled", report.Cancelled),
		logging.Duration("elapsed", report.CompletedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func cloneHandles(c evidence.Container, n int) ([]evidence.Container, error) {
	handles := make([]evidence.Container, 0, n)
	for i := 0; i < n; i++ {
		h, err := c.Clone()
		if err != nil {
			for _, opened := range handles {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("clone handle %d: %w", i, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// batch is the shared state of one Run. Workers write disjoint indices of
// results and done; only stats and progress are locked.
type batch struct {
	ctx       context.Context
	opts      Options
	outputDir string
	tasks     []Task
	dests     []string
	results   []Result
	done      []bool
	stats     statsCollector

	progressMu sync.Mutex
	finished   int
}

func (b *batch) runSequential(c evidence.Container) {
	for i := range b.tasks {
		if b.ctx.Err() != nil {
			return
		}
		b.process(c, i)
	}
}

func (b *batch) runParallel(handles []evidence.Container) {
	jobs := make(chan int)
	var g errgroup.Group
	for _, h := range handles {
		g.Go(func() error {
			defer h.Close()
			for i := range jobs {
				if b.ctx.Err() != nil {
					continue
				}
				b.process(h, i)
			}
			return nil
		})
	}

dispatch:
	for i := range b.tasks {
		select {
		case <-b.ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	_ = g.Wait()
}

func (b *batch) process(c evidence.Container, i int) {
	res := b.extractOne(c, b.tasks[i], b.dests[i])
	b.results[i] = res
	b.done[i] = true
	b.stats.record(res)

	if b.opts.Progress != nil {
		b.progressMu.Lock()
		b.finished++
		b.opts.Progress(b.finished, len(b.tasks), b.stats.snapshot())
		b.progressMu.Unlock()
	}
}

func (b *batch) fillNotStarted() {
	for i, ok := range b.done {
		if ok {
			continue
		}
		b.results[i] = Result{Task: b.tasks[i], Cancelled: true, Error: notStartedMessage}
	}
}

type statsCollector struct {
	mu    sync.Mutex
	stats Stats
}

func (s *statsCollector) record(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case res.Success:
		s.stats.Extracted++
		s.stats.Bytes += res.BytesWritten
		if res.SignatureChecked && !res.SignatureValid {
			s.stats.Mismatches++
		}
	case res.Sparse:
		s.stats.Sparse++
	case res.Cancelled:
	default:
		s.stats.Errors++
	}
}

func (s *statsCollector) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
