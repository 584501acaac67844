package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"exhume/internal/extract"
	"exhume/internal/workflow"
)

type runFlags struct {
	ingest     bool
	evidenceID int64
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.ingest, "ingest", false, "Ingest the manifest into the catalog after extraction")
	cmd.Flags().Int64Var(&f.evidenceID, "evidence-id", 1, "Evidence unit the run is ingested under")
}

type runSummary struct {
	RunID        string         `json:"run_id"`
	Extractor    string         `json:"extractor"`
	ManifestPath string         `json:"manifest_path"`
	Discovered   int            `json:"discovered,omitempty"`
	Selected     int            `json:"selected"`
	Files        int            `json:"files"`
	Bytes        int64          `json:"bytes"`
	Errors       int64          `json:"errors"`
	Mismatches   int64          `json:"signature_mismatches"`
	Sparse       int64          `json:"sparse"`
	Cancelled    bool           `json:"cancelled"`
	CarveExit    *int           `json:"carver_exit_code,omitempty"`
	Ingestion    *ingestSummary `json:"ingestion,omitempty"`
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var req workflow.FilesystemRequest

	cmd := &cobra.Command{
		Use:   "extract <root>",
		Short: "Extract image files from a mounted filesystem or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Root = args[0]
			return runWorkflow(cmd, ctx, flags, func(r *workflow.Runner) (workflow.Outcome, error) {
				return r.FilesystemRun(cmd.Context(), req)
			})
		},
	}

	cmd.Flags().StringVar(&req.Bodyfile, "bodyfile", "", "Sleuth Kit bodyfile listing the files under <root>")
	cmd.Flags().IntVar(&req.Partition, "partition", 0, "Partition number recorded for bodyfile entries")
	cmd.Flags().StringVar(&req.StripPrefix, "strip-prefix", "", "Prefix removed from bodyfile paths before resolving them")
	flags.bind(cmd)
	return cmd
}

func newCarveCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "carve <image>",
		Short: "Carve images from a raw disk image with foremost or scalpel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, ctx, flags, func(r *workflow.Runner) (workflow.Outcome, error) {
				return r.CarveRun(cmd.Context(), workflow.CarveRequest{Image: args[0]})
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newImportCarvedCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "import-carved <dir>",
		Short: "Import an existing foremost or scalpel output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, ctx, flags, func(r *workflow.Runner) (workflow.Outcome, error) {
				return r.ImportRun(cmd.Context(), workflow.ImportRequest{Dir: args[0]})
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

// runWorkflow executes one run, optionally ingests it, and prints the
// summary. A cancelled run still prints what its manifest recorded.
func runWorkflow(cmd *cobra.Command, ctx *commandContext, flags runFlags, run func(*workflow.Runner) (workflow.Outcome, error)) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	progress := newProgressLine(cmd.ErrOrStderr())
	runner := workflow.New(cfg, logger, workflow.WithProgress(progress.extraction))
	outcome, runErr := run(runner)
	progress.done()
	if outcome.ManifestPath == "" {
		return runErr
	}

	summary := summarizeOutcome(outcome)
	if runErr == nil && flags.ingest {
		counts, err := ingestManifest(cmd, ctx, outcome.ManifestPath, flags.evidenceID)
		ing := summarizeCounts(counts)
		summary.Ingestion = &ing
		if err != nil {
			runErr = err
		}
	}

	if ctx.jsonOutput() {
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), renderRunSummary(summary))
	}

	if errors.Is(runErr, extract.ErrCancelled) {
		return fmt.Errorf("run %s cancelled; partial manifest at %s: %w", outcome.RunID, outcome.ManifestPath, runErr)
	}
	return runErr
}

func summarizeOutcome(o workflow.Outcome) runSummary {
	m := o.Manifest
	s := runSummary{
		RunID:        o.RunID,
		Extractor:    m.Extractor,
		ManifestPath: o.ManifestPath,
		Discovered:   o.Discovered,
		Selected:     o.Selected,
		Files:        m.TotalFiles,
		Bytes:        m.TotalBytes,
		Errors:       m.ErrorCount,
		Mismatches:   m.SignatureVerification.Mismatches,
		Sparse:       m.SparseFiles.Count,
		Cancelled:    m.WasCancelled,
	}
	if o.Carve != nil {
		code := o.Carve.ExitCode
		s.CarveExit = &code
	}
	return s
}

func renderRunSummary(s runSummary) string {
	pairs := [][2]string{
		{"Run", s.RunID},
		{"Extractor", s.Extractor},
		{"Manifest", s.ManifestPath},
	}
	if s.Discovered > 0 {
		pairs = append(pairs, [2]string{"Discovered", strconv.Itoa(s.Discovered)})
	}
	pairs = append(pairs,
		[2]string{"Selected", strconv.Itoa(s.Selected)},
		[2]string{"Extracted", strconv.Itoa(s.Files)},
		[2]string{"Bytes", strconv.FormatInt(s.Bytes, 10)},
		[2]string{"Errors", strconv.FormatInt(s.Errors, 10)},
		[2]string{"Signature mismatches", strconv.FormatInt(s.Mismatches, 10)},
		[2]string{"Sparse skipped", strconv.FormatInt(s.Sparse, 10)},
		[2]string{"Cancelled", yesNo(s.Cancelled)},
	)
	if s.CarveExit != nil {
		pairs = append(pairs, [2]string{"Carver exit code", strconv.Itoa(*s.CarveExit)})
	}
	if s.Ingestion != nil {
		pairs = append(pairs, ingestionPairs(*s.Ingestion)...)
	}
	return renderSummary(pairs)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
