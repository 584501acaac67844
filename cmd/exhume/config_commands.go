package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"exhume/internal/config"
)

// configSummary is the --json shape of config init and config validate.
type configSummary struct {
	ConfigPath string `json:"config_path"`
	Source     string `json:"source"`
	OutputDir  string `json:"output_dir,omitempty"`
	Catalog    string `json:"catalog,omitempty"`
	LogDir     string `json:"log_dir,omitempty"`
	Carver     string `json:"carver,omitempty"`
	Workers    int    `json:"extraction_workers,omitempty"`
	Enrichment bool   `json:"enrichment"`
	Status     string `json:"status"`
}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the exhume configuration",
	}
	configCmd.AddCommand(newConfigValidateCommand(ctx), newConfigInitCommand(ctx))
	return configCmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var (
		targetPath string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if err := refuseExisting(target, overwrite); err != nil {
				return err
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			return emitConfigSummary(cmd, ctx, configSummary{
				ConfigPath: target,
				Source:     "sample",
				Status:     "written",
			})
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Where to write the sample (default: the standard config location)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace a config file that already exists")
	return cmd
}

func initTarget(flagValue string) (string, error) {
	if strings.TrimSpace(flagValue) == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(strings.TrimSpace(flagValue))
	if err != nil {
		return "", fmt.Errorf("config path: %w", err)
	}
	return target, nil
}

func refuseExisting(target string, overwrite bool) error {
	if overwrite {
		return nil
	}
	_, err := os.Stat(target)
	switch {
	case err == nil:
		return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("stat %s: %w", target, err)
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load, normalize, and check the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source := "file"
			if !ctx.configSeen {
				source = "defaults"
			}
			return emitConfigSummary(cmd, ctx, configSummary{
				ConfigPath: ctx.configPath,
				Source:     source,
				OutputDir:  cfg.Paths.OutputDir,
				Catalog:    cfg.Paths.DatabasePath,
				LogDir:     cfg.Paths.LogDir,
				Carver:     cfg.Carving.Tool,
				Workers:    cfg.ExtractionWorkers(),
				Enrichment: cfg.Enrichment.Enabled,
				Status:     "valid",
			})
		},
	}
}

func emitConfigSummary(cmd *cobra.Command, ctx *commandContext, s configSummary) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, s)
	}
	pairs := [][2]string{
		{"Config path", s.ConfigPath},
		{"Source", s.Source},
	}
	if s.OutputDir != "" {
		pairs = append(pairs,
			[2]string{"Output directory", s.OutputDir},
			[2]string{"Catalog", s.Catalog},
			[2]string{"Log directory", s.LogDir},
			[2]string{"Carver", s.Carver},
			[2]string{"Extraction workers", strconv.Itoa(s.Workers)},
			[2]string{"Enrichment", yesNo(s.Enrichment)},
		)
	}
	pairs = append(pairs, [2]string{"Status", s.Status})
	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(pairs))
	return nil
}
