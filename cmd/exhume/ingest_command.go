package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"exhume/internal/enrich"
	"exhume/internal/ingest"
	"exhume/internal/store"
)

type ingestSummary struct {
	Inserted  int  `json:"inserted"`
	Enriched  int  `json:"enriched"`
	Errors    int  `json:"errors"`
	Total     int  `json:"total"`
	Missing   int  `json:"missing_files"`
	Cancelled bool `json:"cancelled"`
}

func summarizeCounts(c ingest.Counts) ingestSummary {
	return ingestSummary{
		Inserted:  c.Inserted,
		Enriched:  c.Enriched,
		Errors:    c.Errors,
		Total:     c.Total,
		Missing:   c.Missing,
		Cancelled: c.Cancelled,
	}
}

func ingestionPairs(s ingestSummary) [][2]string {
	return [][2]string{
		{"Ingested", strconv.Itoa(s.Inserted) + " new of " + strconv.Itoa(s.Total)},
		{"Enriched", strconv.Itoa(s.Enriched)},
		{"Ingest errors", strconv.Itoa(s.Errors)},
		{"Missing files", strconv.Itoa(s.Missing)},
		{"Ingest cancelled", yesNo(s.Cancelled)},
	}
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var evidenceID int64

	cmd := &cobra.Command{
		Use:   "ingest <manifest>",
		Short: "Ingest a run manifest into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve manifest path: %w", err)
			}
			counts, ingestErr := ingestManifest(cmd, ctx, path, evidenceID)
			if counts.Total == 0 && ingestErr != nil {
				return ingestErr
			}
			summary := summarizeCounts(counts)
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, summary); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(ingestionPairs(summary)))
			}
			return ingestErr
		},
	}

	cmd.Flags().Int64Var(&evidenceID, "evidence-id", 1, "Evidence unit the run is ingested under")
	return cmd
}

// ingestManifest enriches and inserts the run recorded at manifestPath.
// Thumbnails land next to the manifest, inside the run's output tree.
func ingestManifest(cmd *cobra.Command, ctx *commandContext, manifestPath string, evidenceID int64) (ingest.Counts, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return ingest.Counts{}, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return ingest.Counts{}, err
	}

	var processor *enrich.Processor
	if cfg.Enrichment.Enabled {
		opts := enrich.ProcessorOptionsFromConfig(cfg)
		opts.Item.OutputDir = filepath.Dir(manifestPath)
		processor = enrich.NewProcessor(opts, logger)
	}

	progress := newProgressLine(cmd.ErrOrStderr())
	defer progress.done()

	var counts ingest.Counts
	err = ctx.withStore(func(st *store.Store) error {
		orch := ingest.New(st, ingest.Options{Processor: processor, Progress: progress.ingestion}, logger)
		var ingestErr error
		counts, ingestErr = orch.Ingest(cmd.Context(), manifestPath, evidenceID)
		return ingestErr
	})
	return counts, err
}
