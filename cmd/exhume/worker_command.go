package main

import (
	"github.com/spf13/cobra"

	"exhume/internal/enrich"
)

// newEnrichWorkerCommand is the process the enrichment pool launches. It
// speaks the CBOR request/response protocol on stdin/stdout and must not
// write anything else to stdout.
func newEnrichWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:         enrich.WorkerCommand,
		Short:       "Run an enrichment worker on stdin/stdout",
		Hidden:      true,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return enrich.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
