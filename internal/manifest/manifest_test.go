package manifest_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"exhume/internal/evidence"
	"exhume/internal/extract"
	"exhume/internal/manifest"
	"exhume/internal/signature"
)

func sampleReport() extract.Report {
	mtime := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	return extract.Report{
		StartedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CompletedAt: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
		Stats:       extract.Stats{Extracted: 2, Bytes: 300, Errors: 1, Sparse: 1, Mismatches: 1},
		Mode:        extract.Mode{UsedParallel: true, EffectiveWorkers: 3, ConfiguredWorkers: 4, ParallelEnabled: true},
		Results: []extract.Result{
			{
				Task:    extract.Task{SourcePath: "a/ok.jpg", Name: "ok.jpg", Size: 100, Times: evidence.Times{Modified: mtime}, Inode: "12-128-1"},
				Success: true, RelPath: "extracted/a/ok.jpg", MD5: "m1", SHA256: "s1", BytesWritten: 100,
				SignatureChecked: true, DetectedType: signature.JPEG, SignatureValid: true,
			},
			{
				Task:    extract.Task{SourcePath: "b/fake.png", Name: "fake.png", Size: 200},
				Success: true, RelPath: "extracted/b/fake.png", MD5: "m2", SHA256: "s2", BytesWritten: 200,
				SignatureChecked: true, DetectedType: signature.JPEG, SignatureValid: false,
			},
			{Task: extract.Task{SourcePath: "c/cloud.jpg", Name: "cloud.jpg", Size: 10000}, Sparse: true},
			{Task: extract.Task{SourcePath: "d/bad.jpg", Name: "bad.jpg", Size: 5}, Error: "read source: boom"},
		},
	}
}

func TestFromReport(t *testing.T) {
	m := manifest.FromReport(sampleReport(), manifest.Meta{
		RunID:            "fs_20240101_000000_deadbeef",
		Extractor:        manifest.ExtractorFilesystem,
		Source:           manifest.Source{Kind: manifest.SourceDirectory, Path: "/mnt/evidence"},
		VerifySignatures: true,
	})

	if m.TotalFiles != 2 || len(m.Files) != 2 {
		t.Fatalf("expected 2 files, got %d (%d)", m.TotalFiles, len(m.Files))
	}
	if m.SparseFiles.Count != 1 {
		t.Fatalf("sparse count = %d, want 1", m.SparseFiles.Count)
	}
	if m.SignatureVerification.Mismatches != 1 || !m.SignatureVerification.Enabled {
		t.Fatalf("unexpected signature block %+v", m.SignatureVerification)
	}
	if m.ErrorCount != 1 || len(m.Failures) != 1 || m.Failures[0].SourcePath != "d/bad.jpg" {
		t.Fatalf("unexpected failures %+v (count %d)", m.Failures, m.ErrorCount)
	}
	for _, f := range m.Files {
		if f.SourcePath == "c/cloud.jpg" {
			t.Fatal("sparse entry must not appear in files")
		}
	}
	fake := m.Files[1]
	if fake.SignatureValid == nil || *fake.SignatureValid || fake.DetectedType == nil || *fake.DetectedType != "jpeg" {
		t.Fatalf("expected mismatch flags on fake.png, got %+v", fake)
	}
	ok := m.Files[0]
	if ok.Modified == nil || ok.Accessed != nil || ok.Inode != "12-128-1" {
		t.Fatalf("unexpected provenance on ok.jpg: %+v", ok)
	}
	if !m.ExtractionMode.UsedParallel || m.ExtractionMode.EffectiveWorkers != 3 {
		t.Fatalf("unexpected mode %+v", m.ExtractionMode)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", manifest.FileName)
	m := manifest.FromReport(sampleReport(), manifest.Meta{RunID: "r1", Extractor: manifest.ExtractorFilesystem})
	if err := manifest.Write(path, m); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := manifest.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.RunID != "r1" || len(got.Files) != 2 || got.Files[0].SHA256 != "s1" {
		t.Fatalf("unexpected manifest %+v", got)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestReadRequiresRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	if err := os.WriteFile(path, []byte(`{"files": []}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := manifest.Read(path); !errors.Is(err, manifest.ErrNoRunID) {
		t.Fatalf("expected ErrNoRunID, got %v", err)
	}
}

func TestAppendIngestionPreservesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	doc := `{"run_id": "r9", "files": [], "custom_audit": {"examiner": "jd", "case": 42}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := manifest.AppendIngestion(path, manifest.Ingestion{Inserted: 2, Enriched: 1, Total: 3}); err != nil {
		t.Fatalf("AppendIngestion failed: %v", err)
	}
	if err := manifest.AppendIngestion(path, manifest.Ingestion{Inserted: 0, Enriched: 3, Total: 3}); err != nil {
		t.Fatalf("second AppendIngestion failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("parse: %v", err)
	}
	custom, ok := raw["custom_audit"].(map[string]any)
	if !ok || custom["examiner"] != "jd" {
		t.Fatalf("unknown key lost: %v", raw["custom_audit"])
	}

	m, err := manifest.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if m.Ingestion == nil || m.Ingestion.Enriched != 3 || m.Ingestion.IngestedAt.IsZero() {
		t.Fatalf("unexpected ingestion block %+v", m.Ingestion)
	}
}

func TestAppendIngestionRejectsNullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	if err := os.WriteFile(path, []byte("null\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := manifest.AppendIngestion(path, manifest.Ingestion{Inserted: 1, Total: 1})
	if !errors.Is(err, manifest.ErrNotObject) {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "null\n" {
		t.Fatalf("manifest rewritten after rejection: %q", data)
	}
}

func TestRunIDFormats(t *testing.T) {
	now := time.Date(2024, 7, 8, 9, 10, 11, 0, time.UTC)
	fs := manifest.NewRunID(now)
	if !regexp.MustCompile(`^fs_20240708_091011_[0-9a-f]{8}$`).MatchString(fs) {
		t.Fatalf("unexpected filesystem run id %q", fs)
	}
	carve := manifest.NewCarveRunID(now)
	if !regexp.MustCompile(`^20240708_0910_[0-9a-f]{8}$`).MatchString(carve) {
		t.Fatalf("unexpected carve run id %q", carve)
	}
	if manifest.NewRunID(now) == fs {
		t.Fatal("run ids must be unique")
	}
}
