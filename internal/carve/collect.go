package carve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"exhume/internal/fileutil"
)

// ErrNotCarverOutput is returned by ImportDir when a directory has neither
// an audit file nor carver type subdirectories.
var ErrNotCarverOutput = errors.New("directory is not foremost or scalpel output")

var (
	carvedExtensions = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".tif": {}, ".tiff": {},
	}
	scalpelDirPattern = regexp.MustCompile(`^[a-z0-9]+-\d+-\d+$`)
)

// IsCarvedImage reports whether name has an extension Collect keeps.
func IsCarvedImage(name string) bool {
	_, ok := carvedExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

// Collect returns the carved image files under dir as sorted,
// slash-separated paths relative to dir.
func Collect(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !IsCarvedImage(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect carved files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// DetectTool guesses which carver produced dir. It returns "" when dir does
// not look like carver output.
func DetectTool(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var foremostDirs, scalpelDirs int
	hasAudit := false
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		switch {
		case !e.IsDir():
			if name == AuditFile {
				hasAudit = true
			}
		case scalpelDirPattern.MatchString(name):
			scalpelDirs++
		default:
			if _, ok := builtinTypes[name]; ok {
				foremostDirs++
			}
		}
	}
	switch {
	case scalpelDirs > foremostDirs:
		return ToolScalpel, nil
	case foremostDirs > 0:
		return ToolForemost, nil
	case hasAudit:
		return auditTool(filepath.Join(dir, AuditFile)), nil
	}
	return "", nil
}

func auditTool(p string) string {
	f, err := os.Open(p)
	if err != nil {
		return ToolForemost
	}
	defer f.Close()
	head := make([]byte, 256)
	n, _ := f.Read(head)
	if strings.Contains(strings.ToLower(string(head[:n])), ToolScalpel) {
		return ToolScalpel
	}
	return ToolForemost
}

// Import summarizes one ImportDir call.
type Import struct {
	Tool      string
	Files     []string
	AuditPath string
}

// ImportDir copies the carved images and audit file of an existing carver
// output directory into outputDir/carved, keeping the carver's layout. Each
// copy is verified by size and SHA-256.
func ImportDir(src, outputDir string) (Import, error) {
	tool, err := DetectTool(src)
	if err != nil {
		return Import{}, fmt.Errorf("inspect carver output: %w", err)
	}
	if tool == "" {
		return Import{}, fmt.Errorf("%s: %w", src, ErrNotCarverOutput)
	}
	files, err := Collect(src)
	if err != nil {
		return Import{}, err
	}

	dst := filepath.Join(outputDir, CarvedDir)
	if same, err := samePath(src, dst); err != nil || same {
		if err == nil {
			err = errors.New("source is the destination carved directory")
		}
		return Import{}, err
	}
	if err := os.RemoveAll(dst); err != nil {
		return Import{}, fmt.Errorf("clear carved directory: %w", err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return Import{}, fmt.Errorf("create carved directory: %w", err)
	}

	result := Import{Tool: tool, Files: files}
	for _, rel := range files {
		target := filepath.Join(dst, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return result, fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := fileutil.CopyFileVerified(filepath.Join(src, filepath.FromSlash(rel)), target); err != nil {
			return result, fmt.Errorf("import %s: %w", rel, err)
		}
	}

	audit := filepath.Join(src, AuditFile)
	if _, err := os.Stat(audit); err == nil {
		result.AuditPath = filepath.Join(dst, AuditFile)
		if err := fileutil.CopyFileVerified(audit, result.AuditPath); err != nil {
			return result, fmt.Errorf("import audit: %w", err)
		}
	}
	return result, nil
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}
