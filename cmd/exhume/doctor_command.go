package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"exhume/internal/preflight"
)

type doctorCheck struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories and external tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var checks []doctorCheck
			for _, r := range preflight.RunAll(cfg) {
				checks = append(checks, doctorCheck{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
			}
			for _, s := range preflight.CheckSystemDeps(cfg) {
				detail := s.Path
				if !s.Available {
					detail = s.Detail
				}
				checks = append(checks, doctorCheck{Name: s.Name, Passed: s.Available, Optional: s.Optional, Detail: detail})
			}

			failed := 0
			for _, c := range checks {
				if !c.Passed && !c.Optional {
					failed++
				}
			}

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, checks); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(checks))
				for _, c := range checks {
					rows = append(rows, []string{c.Name, checkStatus(c), c.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			}

			if failed > 0 {
				return fmt.Errorf("%d required check(s) failed", failed)
			}
			return nil
		},
	}
}

func checkStatus(c doctorCheck) string {
	switch {
	case c.Passed:
		return "ok"
	case c.Optional:
		return "missing (optional)"
	default:
		return "FAILED"
	}
}
