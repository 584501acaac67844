package extract_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"exhume/internal/evidence"
	"exhume/internal/extract"
	"exhume/internal/testsupport"
)

// memContainer serves files from memory. Every clone shares the same data.
type memContainer struct {
	files   map[string]func() io.Reader
	clones  *atomic.Int32
	closed  *atomic.Int32
	entries []evidence.Entry
}

func newMemContainer() *memContainer {
	return &memContainer{
		files:  map[string]func() io.Reader{},
		clones: &atomic.Int32{},
		closed: &atomic.Int32{},
	}
}

func (m *memContainer) add(path string, size int64, data []byte) {
	m.files[path] = func() io.Reader { return bytes.NewReader(data) }
	m.entries = append(m.entries, evidence.Entry{Path: path, Name: filepath.Base(path), Size: size})
}

func (m *memContainer) List(context.Context) ([]evidence.Entry, error) {
	return append([]evidence.Entry(nil), m.entries...), nil
}

func (m *memContainer) Open(path string) (io.ReadCloser, error) {
	open, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(open()), nil
}

func (m *memContainer) Clone() (evidence.Container, error) {
	m.clones.Add(1)
	return &memContainer{files: m.files, clones: m.clones, closed: m.closed, entries: m.entries}, nil
}

func (m *memContainer) Close() error {
	m.closed.Add(1)
	return nil
}

// patternReader yields size non-zero bytes and calls hook once after trigger
// bytes have been read.
type patternReader struct {
	remaining int64
	read      int64
	trigger   int64
	hook      func()
}

func (r *patternReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	n := int64(len(p))
	if n > r.remaining {
		n = r.remaining
	}
	for i := int64(0); i < n; i++ {
		p[i] = 0xAB
	}
	r.remaining -= n
	r.read += n
	if r.hook != nil && r.read >= r.trigger {
		r.hook()
		r.hook = nil
	}
	return int(n), nil
}

func newExtractor(t *testing.T, workers int, mutate ...func(*extract.Options)) (*extract.Extractor, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(workers))
	opts := extract.OptionsFromConfig(cfg)
	for _, fn := range mutate {
		fn(&opts)
	}
	return extract.New(opts, nil), opts.OutputDir
}

func run(t *testing.T, ex *extract.Extractor, c evidence.Container) extract.Report {
	t.Helper()
	entries, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	report, err := ex.Run(context.Background(), c, extract.NewTasks(entries))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return report
}

func TestSparseZeroBytesStreamed(t *testing.T) {
	c := newMemContainer()
	c.add("onedrive/photo.jpg", 10000, nil)
	ex, out := newExtractor(t, 1)

	report := run(t, ex, c)
	if len(report.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(report.Results))
	}
	res := report.Results[0]
	if res.Success || !res.Sparse {
		t.Fatalf("expected sparse failure, got %+v", res)
	}
	if report.Stats.Sparse != 1 || report.Stats.Errors != 0 {
		t.Fatalf("unexpected stats %+v", report.Stats)
	}
	if _, err := os.Stat(filepath.Join(out, "extracted", "onedrive", "photo.jpg")); !os.IsNotExist(err) {
		t.Fatalf("expected no output file, stat err=%v", err)
	}
	if len(report.Succeeded()) != 0 {
		t.Fatal("sparse result must not count as succeeded")
	}
}

func TestSparseZeroWindow(t *testing.T) {
	tests := []struct {
		name       string
		size       int64
		data       []byte
		wantSparse bool
	}{
		{"zero filled above threshold", 4096, make([]byte, 4096), true},
		{"zero filled below threshold", 512, make([]byte, 512), false},
		{"zero window then data", 200000, append(make([]byte, 70000), bytes.Repeat([]byte{1}, 130000)...), true},
		{"data inside window", 4096, append(make([]byte, 4000), bytes.Repeat([]byte{1}, 96)...), false},
		{"empty file", 0, nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newMemContainer()
			c.add("f.bin", tc.size, tc.data)
			ex, _ := newExtractor(t, 1, func(o *extract.Options) { o.VerifySignatures = false })
			res := run(t, ex, c).Results[0]
			if res.Sparse != tc.wantSparse {
				t.Fatalf("sparse = %v, want %v (%+v)", res.Sparse, tc.wantSparse, res)
			}
			if res.Success == tc.wantSparse {
				t.Fatalf("success = %v with sparse = %v", res.Success, tc.wantSparse)
			}
		})
	}
}

func TestCancellationRemovesPartialFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const size = 50 * 1024 * 1024
	c := newMemContainer()
	c.files["big.jpg"] = func() io.Reader {
		return &patternReader{remaining: size, trigger: 5 * 1024 * 1024, hook: cancel}
	}
	c.entries = append(c.entries, evidence.Entry{Path: "big.jpg", Name: "big.jpg", Size: size})
	c.add("later.jpg", 4, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	ex, out := newExtractor(t, 1)

	entries, _ := c.List(ctx)
	report, err := ex.Run(ctx, c, extract.NewTasks(entries))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.Cancelled {
		t.Fatal("expected cancelled report")
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected one result per task, got %d", len(report.Results))
	}
	big := report.Results[0]
	if big.Success || !big.Cancelled || big.Error != "Cancelled during extraction" {
		t.Fatalf("unexpected result for cancelled task: %+v", big)
	}
	if big.BytesWritten >= size {
		t.Fatalf("expected partial read, got %d bytes", big.BytesWritten)
	}
	if _, err := os.Stat(filepath.Join(out, "extracted", "big.jpg")); !os.IsNotExist(err) {
		t.Fatalf("partial file survived: %v", err)
	}
	later := report.Results[1]
	if later.Success || !later.Cancelled {
		t.Fatalf("task after cancellation should not run: %+v", later)
	}
	if report.Stats.Extracted != 0 || report.Stats.Errors != 0 {
		t.Fatalf("cancelled tasks must not count as extracted or errors: %+v", report.Stats)
	}
}

func TestSignatureMismatchStillSucceeds(t *testing.T) {
	c := newMemContainer()
	jpeg := testsupport.JPEGBytes(t, 8, 8, 1)
	c.add("pics/actually-jpeg.png", int64(len(jpeg)), jpeg)
	ex, _ := newExtractor(t, 1)

	report := run(t, ex, c)
	res := report.Results[0]
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !res.SignatureChecked || res.SignatureValid || res.DetectedType != "jpeg" {
		t.Fatalf("expected jpeg mismatch, got %+v", res)
	}
	if report.Stats.Mismatches != 1 {
		t.Fatalf("mismatches = %d, want 1", report.Stats.Mismatches)
	}
	if _, err := os.Stat(res.Destination); err != nil {
		t.Fatalf("mismatched file must stay on disk: %v", err)
	}
}

func populate(c *memContainer, n int) {
	for i := 0; i < n; i++ {
		data := []byte(fmt.Sprintf("\x89PNG\r\n\x1a\nfile-%03d-payload", i))
		dir := []string{"a", "b", "c"}[i%3]
		c.add(fmt.Sprintf("%s/img_%03d.png", dir, n-i), int64(len(data)), data)
	}
}

func TestDeterministicAcrossWorkerCounts(t *testing.T) {
	type row struct {
		path, rel, sha string
		ok             bool
	}
	collect := func(report extract.Report) []row {
		rows := make([]row, 0, len(report.Results))
		for _, r := range report.Results {
			rows = append(rows, row{r.Task.SourcePath, r.RelPath, r.SHA256, r.Success})
		}
		return rows
	}

	seq := newMemContainer()
	populate(seq, 40)
	exSeq, _ := newExtractor(t, 1)
	seqReport := run(t, exSeq, seq)
	if seqReport.Mode.UsedParallel {
		t.Fatal("single worker run should be sequential")
	}

	par := newMemContainer()
	populate(par, 40)
	exPar, _ := newExtractor(t, 4)
	parReport := run(t, exPar, par)
	if !parReport.Mode.UsedParallel || parReport.Mode.EffectiveWorkers != 4 {
		t.Fatalf("expected 4 parallel workers, got %+v", parReport.Mode)
	}
	if got := par.clones.Load(); got != 4 {
		t.Fatalf("expected 4 cloned handles, got %d", got)
	}
	if got := par.closed.Load(); got != 4 {
		t.Fatalf("expected every clone closed, got %d", got)
	}

	a, b := collect(seqReport), collect(parReport)
	if len(a) != len(b) {
		t.Fatalf("result counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("result %d differs: %+v vs %+v", i, a[i], b[i])
		}
		if i > 0 && a[i-1].path > a[i].path {
			t.Fatalf("results not sorted at %d", i)
		}
	}
	if seqReport.Stats != parReport.Stats {
		t.Fatalf("stats differ: %+v vs %+v", seqReport.Stats, parReport.Stats)
	}
}

func TestSmallBatchRunsSequentially(t *testing.T) {
	c := newMemContainer()
	populate(c, 9)
	ex, _ := newExtractor(t, 8)
	report := run(t, ex, c)
	if report.Mode.UsedParallel || report.Mode.EffectiveWorkers != 1 {
		t.Fatalf("expected sequential run for 9 tasks, got %+v", report.Mode)
	}
	if c.clones.Load() != 0 {
		t.Fatal("sequential run must not clone handles")
	}
}

func TestFallbackWhenHandlesUnsupported(t *testing.T) {
	c := newMemContainer()
	populate(c, 30)
	ex, _ := newExtractor(t, 3)
	report := run(t, ex, evidence.SingleHandle(c))
	if report.Mode.UsedParallel {
		t.Fatal("expected sequential fallback")
	}
	if report.Mode.FallbackReason == "" {
		t.Fatal("expected fallback reason recorded")
	}
	if report.Stats.Extracted != 30 {
		t.Fatalf("expected all tasks extracted, got %+v", report.Stats)
	}
}

func TestFlatNamingUsesInodeAndResolvesCollisions(t *testing.T) {
	c := newMemContainer()
	data := []byte("GIF89a-content")
	c.files["a/x.gif"] = func() io.Reader { return bytes.NewReader(data) }
	c.files["b/x.gif"] = func() io.Reader { return bytes.NewReader(data) }
	c.files["c/x.gif"] = func() io.Reader { return bytes.NewReader(data) }
	c.entries = []evidence.Entry{
		{Path: "a/x.gif", Name: "x.gif", Size: int64(len(data))},
		{Path: "b/x.gif", Name: "x.gif", Size: int64(len(data))},
		{Path: "c/x.gif", Name: "x.gif", Size: int64(len(data)), Inode: "77-128-1"},
	}
	ex, _ := newExtractor(t, 1, func(o *extract.Options) { o.PreserveStructure = false })
	report := run(t, ex, c)

	want := []string{"extracted/x.gif", "extracted/x_1.gif", "extracted/77_x.gif"}
	for i, res := range report.Results {
		if res.RelPath != want[i] {
			t.Fatalf("result %d rel path = %q, want %q", i, res.RelPath, want[i])
		}
	}
}

func TestPreserveStructureWithPartition(t *testing.T) {
	c := newMemContainer()
	data := []byte("GIF89a")
	c.files["Users/pic.gif"] = func() io.Reader { return bytes.NewReader(data) }
	c.entries = []evidence.Entry{{Path: "Users/pic.gif", Name: "pic.gif", Size: 6, Partition: 2}}
	ex, out := newExtractor(t, 1)
	res := run(t, ex, c).Results[0]
	if res.RelPath != "extracted/partition_2/Users/pic.gif" {
		t.Fatalf("unexpected rel path %q", res.RelPath)
	}
	if res.Destination != filepath.Join(out, "extracted", "partition_2", "Users", "pic.gif") {
		t.Fatalf("unexpected destination %q", res.Destination)
	}
}

func TestOpenFailureIsPerTaskError(t *testing.T) {
	c := newMemContainer()
	c.add("ok.gif", 6, []byte("GIF89a"))
	c.entries = append(c.entries, evidence.Entry{Path: "missing.gif", Name: "missing.gif", Size: 10})
	ex, _ := newExtractor(t, 1)
	report := run(t, ex, c)
	if report.Stats.Extracted != 1 || report.Stats.Errors != 1 {
		t.Fatalf("unexpected stats %+v", report.Stats)
	}
	if report.Results[0].Error == "" || report.Results[0].Task.SourcePath != "missing.gif" {
		t.Fatalf("expected open error on missing.gif, got %+v", report.Results[0])
	}
}

func TestRunOverDirectory(t *testing.T) {
	root := t.TempDir()
	png := testsupport.WritePNG(t, filepath.Join(root, "DCIM", "one.png"), 4, 4, 9)
	testsupport.WriteJPEG(t, filepath.Join(root, "two.jpg"), 4, 4, 3)

	dir, err := evidence.OpenDir(root)
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer dir.Close()

	ex, _ := newExtractor(t, 1)
	report := run(t, ex, dir)
	if report.Stats.Extracted != 2 || report.Stats.Mismatches != 0 {
		t.Fatalf("unexpected stats %+v", report.Stats)
	}
	got, err := os.ReadFile(report.Results[0].Destination)
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if !bytes.Equal(got, png) {
		t.Fatal("extracted bytes differ from source")
	}
	if report.Results[0].Task.Times.Modified.IsZero() {
		t.Fatal("expected modification time from directory walk")
	}
}

func TestDecomposedNamesExtractAndSortComposed(t *testing.T) {
	root := t.TempDir()
	decomposed := "cafe\u0301.png"
	testsupport.WritePNG(t, filepath.Join(root, decomposed), 4, 4, 1)
	testsupport.WritePNG(t, filepath.Join(root, "cafz.png"), 4, 4, 2)

	dir, err := evidence.OpenDir(root)
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer dir.Close()

	ex, _ := newExtractor(t, 1)
	report := run(t, ex, dir)
	if report.Stats.Extracted != 2 || report.Stats.Errors != 0 {
		t.Fatalf("unexpected stats %+v", report.Stats)
	}
	// Composed "é" sorts after "z"; the decomposed spelling would sort before it.
	if report.Results[0].Task.SourcePath != "cafz.png" || report.Results[1].Task.SourcePath != decomposed {
		t.Fatalf("unexpected order %q, %q", report.Results[0].Task.SourcePath, report.Results[1].Task.SourcePath)
	}
}
