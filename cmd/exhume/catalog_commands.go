package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"exhume/internal/manifest"
	"exhume/internal/store"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect run manifests",
	}
	manifestCmd.AddCommand(newManifestShowCommand(ctx))
	return manifestCmd
}

func newManifestShowCommand(ctx *commandContext) *cobra.Command {
	var listFiles bool

	cmd := &cobra.Command{
		Use:         "show <manifest>",
		Short:       "Summarize a run manifest",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Read(args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, m)
			}

			out := cmd.OutOrStdout()
			pairs := [][2]string{
				{"Run", m.RunID},
				{"Extractor", m.Extractor + " " + m.ExtractorVersion},
				{"Source", m.Source.Kind + " " + m.Source.Path},
				{"Started", formatTime(m.StartedAt)},
				{"Completed", formatTime(m.CompletedAt)},
				{"Files", strconv.Itoa(m.TotalFiles)},
				{"Bytes", strconv.FormatInt(m.TotalBytes, 10)},
				{"Errors", strconv.FormatInt(m.ErrorCount, 10)},
				{"Signature mismatches", strconv.FormatInt(m.SignatureVerification.Mismatches, 10)},
				{"Sparse skipped", strconv.FormatInt(m.SparseFiles.Count, 10)},
				{"Parallel", fmt.Sprintf("%s (%d workers)", yesNo(m.ExtractionMode.UsedParallel), m.ExtractionMode.EffectiveWorkers)},
				{"Cancelled", yesNo(m.WasCancelled)},
			}
			if m.Tool != nil {
				pairs = append(pairs, [2]string{"Tool", fmt.Sprintf("%s (exit %d, %.1fs)", m.Tool.Name, m.Tool.ExitCode, m.Tool.Duration)})
			}
			if m.Ingestion != nil {
				pairs = append(pairs, [2]string{"Ingested", formatTime(m.Ingestion.IngestedAt)})
				pairs = append(pairs, ingestionPairs(ingestSummary{
					Inserted:  m.Ingestion.Inserted,
					Enriched:  m.Ingestion.Enriched,
					Errors:    m.Ingestion.Errors,
					Total:     m.Ingestion.Total,
					Missing:   m.Ingestion.Missing,
					Cancelled: m.Ingestion.Cancelled,
				})...)
			} else {
				pairs = append(pairs, [2]string{"Ingested", "no"})
			}
			fmt.Fprintln(out, renderSummary(pairs))

			if listFiles && len(m.Files) > 0 {
				rows := make([][]string, 0, len(m.Files))
				for _, f := range m.Files {
					rows = append(rows, []string{f.RelPath, strconv.FormatInt(f.SizeBytes, 10), shortHash(f.SHA256), signatureLabel(f)})
				}
				fmt.Fprintln(out, renderTable([]string{"Path", "Size", "SHA-256", "Signature"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft}))
			}
			if len(m.Failures) > 0 {
				rows := make([][]string, 0, len(m.Failures))
				for _, f := range m.Failures {
					rows = append(rows, []string{f.SourcePath, f.Error})
				}
				fmt.Fprintln(out, renderTable([]string{"Failed source", "Error"}, rows, nil))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&listFiles, "files", false, "List extracted files")
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var evidenceID int64

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics for an evidence unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				stats, err := st.Stats(cmd.Context(), evidenceID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, statsJSON(stats))
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderSummary([][2]string{
					{"Images", strconv.FormatInt(stats.Images, 10)},
					{"Discoveries", strconv.FormatInt(stats.Discoveries, 10)},
					{"Found by several runs", strconv.FormatInt(stats.MultiSource, 10)},
					{"With perceptual hash", strconv.FormatInt(stats.WithPHash, 10)},
				}))
				if len(stats.ByExtractor) == 0 {
					return nil
				}
				names := make([]string, 0, len(stats.ByExtractor))
				for name := range stats.ByExtractor {
					names = append(names, name)
				}
				sort.Strings(names)
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{
						name,
						strconv.FormatInt(stats.ByExtractor[name], 10),
						strconv.FormatInt(stats.FirstByExtractor[name], 10),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Extractor", "Discoveries", "First found"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&evidenceID, "evidence-id", 1, "Evidence unit to summarize")
	return cmd
}

func statsJSON(s store.Stats) map[string]any {
	return map[string]any{
		"images":             s.Images,
		"discoveries":        s.Discoveries,
		"multi_source":       s.MultiSource,
		"with_phash":         s.WithPHash,
		"by_extractor":       s.ByExtractor,
		"first_by_extractor": s.FirstByExtractor,
	}
}

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	var evidenceID int64

	cmd := &cobra.Command{
		Use:   "sources <sha256>",
		Short: "List every run that discovered an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				img, err := st.FindBySHA256(cmd.Context(), evidenceID, args[0])
				if err != nil {
					return err
				}
				if img == nil {
					return fmt.Errorf("no image with sha256 %s in evidence %d", strings.TrimSpace(args[0]), evidenceID)
				}
				sources, err := st.ImageSources(cmd.Context(), img.ID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"image": img, "sources": sources})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderSummary([][2]string{
					{"Image", img.RelPath},
					{"SHA-256", img.SHA256},
					{"Size", strconv.FormatInt(img.SizeBytes, 10)},
					{"Dimensions", dimensions(img)},
					{"First found by", img.FirstDiscoveredBy},
				}))
				rows := make([][]string, 0, len(sources))
				for _, d := range sources {
					rows = append(rows, []string{d.DiscoveredBy, d.RunID, discoveryLocation(d), formatTime(d.DiscoveredAt)})
				}
				fmt.Fprintln(out, renderTable([]string{"Extractor", "Run", "Location", "Discovered"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&evidenceID, "evidence-id", 1, "Evidence unit to search")
	return cmd
}

func discoveryLocation(d *store.Discovery) string {
	if d.CarvedOffset != nil {
		return "offset " + strconv.FormatInt(*d.CarvedOffset, 10)
	}
	loc := d.FSPath
	if d.FSPartition > 0 {
		loc = fmt.Sprintf("p%d:%s", d.FSPartition, loc)
	}
	if d.FSInode != "" {
		loc += " (inode " + d.FSInode + ")"
	}
	return loc
}

func dimensions(img *store.Image) string {
	if img.Width == 0 || img.Height == 0 {
		return "-"
	}
	return fmt.Sprintf("%dx%d %s", img.Width, img.Height, img.Format)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func signatureLabel(f manifest.File) string {
	switch {
	case f.SignatureValid == nil:
		return "-"
	case *f.SignatureValid:
		return "ok"
	case f.DetectedType != nil:
		return "mismatch (" + *f.DetectedType + ")"
	default:
		return "mismatch"
	}
}
