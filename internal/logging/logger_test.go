package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"exhume/internal/config"
	"exhume/internal/logging"
)

func newFileLogger(t *testing.T, format, level string) (string, func() string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{
		Format:           format,
		Level:            level,
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	slogger := logging.NewComponentLogger(logger, "extract")
	ctx := logging.WithRunID(context.Background(), "fs_20260101_000000_abcd1234")
	logging.WithContext(ctx, slogger).Info("extraction complete", logging.Int("files", 3))
	return logPath, func() string {
		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		return string(data)
	}
}

func TestConsoleLoggerFormatsSubject(t *testing.T) {
	_, read := newFileLogger(t, "console", "info")
	line := read()
	if !strings.Contains(line, "INFO extract [fs_20260101_000000_abcd1234]: extraction complete files=3") {
		t.Fatalf("unexpected console line: %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", line)
	}
}

func TestConsoleLoggerShowsEvidenceAndShortensDigests(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := logging.WithEvidenceID(logging.WithRunID(context.Background(), "fs_run"), 7)
	digest := strings.Repeat("ab", 32)
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "ingestion")).Info("stored", logging.String("sha256", digest))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "INFO ingestion [fs_run evidence 7]: stored sha256=abababababab\n") {
		t.Fatalf("unexpected console line: %q", line)
	}
	if strings.Contains(line, digest) {
		t.Fatalf("expected shortened digest in %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	_, read := newFileLogger(t, "console", "debug")
	if !strings.Contains(read(), "logger_test.go:") {
		t.Fatal("expected caller information in debug logs")
	}
}

func TestJSONLoggerRenamesKeys(t *testing.T) {
	_, read := newFileLogger(t, "json", "info")
	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &record); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "component", "run_id", "files"} {
		if _, ok := record[key]; !ok {
			t.Fatalf("expected key %q in %v", key, record)
		}
	}
	if record["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", record["level"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", OutputPaths: []string{filepath.Join(t.TempDir(), "x.log")}}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logging.WarnWithContext(logger, "signature mismatch", "signature_mismatch", logging.String(logging.FieldImpact, "flagged only"))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldEventType] != "signature_mismatch" {
		t.Fatalf("unexpected event type: %v", record[logging.FieldEventType])
	}
	if record[logging.FieldImpact] != "flagged only" {
		t.Fatalf("caller impact should be preserved, got %v", record[logging.FieldImpact])
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error hint")
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello")
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "exhume.log")); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}
