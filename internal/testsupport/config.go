package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"exhume/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Enrichment runs in-process unless a test opts back into the process pool.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.DatabasePath = filepath.Join(base, "state", "exhume.db")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Enrichment.UseProcessPool = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers pins both worker pools to n.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Extraction.MaxWorkers = n
		b.cfg.Enrichment.MaxWorkers = n
	}
}

// WithSequentialExtraction disables the parallel extractor.
func WithSequentialExtraction() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Extraction.ParallelEnabled = false
	}
}

// WithoutEnrichment turns the enrichment stage off.
func WithoutEnrichment() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enrichment.Enabled = false
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, both carvers are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{config.CarverForemost, config.CarverScalpel}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
