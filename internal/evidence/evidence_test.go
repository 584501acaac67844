package evidence_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"exhume/internal/evidence"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func TestDirListAndOpen(t *testing.T) {
	root := writeTree(t, map[string]string{
		"Users/alice/Pictures/a.jpg": "aaaa",
		"Users/bob/b.png":            "bb",
		"notes.txt":                  "n",
	})
	dir, err := evidence.OpenDir(root)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	t.Cleanup(func() { _ = dir.Close() })

	entries, err := dir.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
		if e.Times.Modified.IsZero() {
			t.Fatalf("expected mtime for %s", e.Path)
		}
	}
	sort.Strings(paths)
	want := []string{"Users/alice/Pictures/a.jpg", "Users/bob/b.png", "notes.txt"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected paths %v", paths)
	}

	rc, err := dir.Open("Users/alice/Pictures/a.jpg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "aaaa" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestDirOpenCannotEscapeRoot(t *testing.T) {
	parent := t.TempDir()
	if err := os.WriteFile(filepath.Join(parent, "secret"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	inner := filepath.Join(parent, "evidence")
	if err := os.Mkdir(inner, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dir, err := evidence.OpenDir(inner)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer dir.Close()
	if rc, err := dir.Open("../secret"); err == nil {
		_ = rc.Close()
		t.Fatal("expected traversal outside the root to fail")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	root := writeTree(t, map[string]string{"a.jpg": "data"})
	dir, err := evidence.OpenDir(root)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	clone, err := dir.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if err := dir.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	rc, err := clone.Open("a.jpg")
	if err != nil {
		t.Fatalf("clone should survive closing the original: %v", err)
	}
	_ = rc.Close()
	_ = clone.Close()

	if _, err := evidence.SingleHandle(clone).Clone(); !errors.Is(err, evidence.ErrHandleUnsupported) {
		t.Fatalf("expected ErrHandleUnsupported, got %v", err)
	}
}

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		`/Users/a/../b/c.jpg`: "Users/b/c.jpg",
		`Windows\Web\x.jpg`:   "Windows/Web/x.jpg",
		"cafe\u0301.jpg":      "cafe\u0301.jpg",
		"/":                   ".",
	}
	for in, want := range cases {
		if got := evidence.CleanPath(in); got != want {
			t.Errorf("CleanPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDirKeepsDecomposedNamesReadable(t *testing.T) {
	decomposed := "cafe\u0301.jpg"
	root := writeTree(t, map[string]string{decomposed: "nfd"})

	dir, err := evidence.OpenDir(root)
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer dir.Close()

	entries, err := dir.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != decomposed {
		t.Fatalf("expected listing to keep %q, got %+v", decomposed, entries)
	}
	rc, err := dir.Open(entries[0].Path)
	if err != nil {
		t.Fatalf("Open listed path: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil || string(data) != "nfd" {
		t.Fatalf("read %q: %q, %v", decomposed, data, err)
	}
	if got := evidence.SortKey(entries[0].Path); got != "caf\u00e9.jpg" {
		t.Fatalf("SortKey = %q, want composed form", got)
	}
}

const sampleBodyfile = `0|/Users/alice/Pictures/beach.jpg|1234-128-1|r/rrwxrwxrwx|0|0|20480|1600000000|1600000100|1600000200|1599999999
0|/Users/alice/Pictures|1200-144-1|d/drwxrwxrwx|0|0|4096|0|0|0|0
0|/Users/alice/Pictures/beach.jpg ($FILE_NAME)|1234-48-2|r/rrwxrwxrwx|0|0|82|0|0|0|0
0|* /Users/bob/old|pipe.png (deleted)|99-128-1|r/rrwxrwxrwx|0|0|512|0|1600000300|0|0
0|/$Extend/$UsnJrnl:$J:$DATA|11-128-3|r/rrwxrwxrwx|0|0|0|0|0|0|0
garbage line without fields
d41d8cd98f00b204e9800998ecf8427e|/x.gif|5|r/r---------|0|0|notanumber|0|0|0|0
`

func TestParseBodyfile(t *testing.T) {
	entries, stats, err := evidence.ParseBodyfile(strings.NewReader(sampleBodyfile), evidence.BodyfileOptions{Partition: 2})
	if err != nil {
		t.Fatalf("ParseBodyfile: %v", err)
	}
	if stats.Parsed != 2 || stats.Directories != 1 || stats.Attributes != 2 || stats.Malformed != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	beach := entries[0]
	if beach.Path != "Users/alice/Pictures/beach.jpg" || beach.Name != "beach.jpg" {
		t.Fatalf("unexpected first entry %+v", beach)
	}
	if beach.Size != 20480 || beach.Inode != "1234-128-1" || beach.Partition != 2 {
		t.Fatalf("unexpected metadata %+v", beach)
	}
	if beach.Times.Modified.Unix() != 1600000100 || beach.Times.Created.Unix() != 1599999999 {
		t.Fatalf("unexpected times %+v", beach.Times)
	}

	old := entries[1]
	if !old.Deleted || old.Path != "Users/bob/old|pipe.png" {
		t.Fatalf("expected deleted entry with pipe in name, got %+v", old)
	}
	if !old.Times.Accessed.IsZero() {
		t.Fatal("zero timestamps should be treated as absent")
	}
}

func TestFilter(t *testing.T) {
	f := evidence.Filter{
		Include: []string{"*.jpg", "*.png"},
		Exclude: []string{"thumbs.db", "$recycle.bin/*", "*/cache/*"},
		MinSize: 10,
		MaxSize: 1000,
	}
	cases := []struct {
		path string
		size int64
		want bool
	}{
		{"Users/a/Photo.JPG", 100, true},
		{"Users/a/photo.gif", 100, false},
		{"Users/a/tiny.jpg", 5, false},
		{"Users/a/huge.jpg", 5000, false},
		{"$Recycle.Bin/S-1-5/x.jpg", 100, false},
		{"Users/a/AppData/cache/y.png", 100, false},
	}
	for _, tc := range cases {
		got := f.Match(evidence.Entry{Path: tc.path, Size: tc.size})
		if got != tc.want {
			t.Errorf("Match(%q, %d) = %v, want %v", tc.path, tc.size, got, tc.want)
		}
	}
}

func TestCatalogOverridesListing(t *testing.T) {
	root := writeTree(t, map[string]string{"a.jpg": "1", "b.jpg": "2"})
	dir, err := evidence.OpenDir(root)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	c := evidence.WithCatalog(dir, []evidence.Entry{{Path: "b.jpg", Name: "b.jpg", Size: 1}})
	defer c.Close()
	entries, err := c.List(context.Background())
	if err != nil || len(entries) != 1 || entries[0].Path != "b.jpg" {
		t.Fatalf("unexpected catalog listing %v (%v)", entries, err)
	}
	clone, err := c.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	defer clone.Close()
	if listed, _ := clone.List(context.Background()); len(listed) != 1 {
		t.Fatalf("clone lost catalog: %v", listed)
	}
}
