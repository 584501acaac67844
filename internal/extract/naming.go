package extract

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"exhume/internal/evidence"
)

// ExtractedDir is the directory under the output root that receives files.
const ExtractedDir = "extracted"

// planDestinations assigns every task a unique output-relative path before any
// worker starts, so naming never depends on scheduling order.
func planDestinations(tasks []Task, preserve bool) []string {
	used := make(map[string]struct{}, len(tasks))
	out := make([]string, len(tasks))
	for i, task := range tasks {
		var rel string
		if preserve {
			rel = preservedPath(task)
		} else {
			rel = flatPath(task)
		}
		out[i] = uniquePath(path.Join(ExtractedDir, rel), used)
	}
	return out
}

func preservedPath(task Task) string {
	rel := strings.TrimPrefix(task.SourcePath, "/")
	if rel == "" || rel == "." {
		rel = safeName(task.Name)
	}
	if prefix := partitionPrefix(task.Partition); prefix != "" {
		rel = path.Join(prefix, rel)
	}
	return rel
}

func flatPath(task Task) string {
	name := safeName(task.Name)
	if id := inodeNumber(task.Inode); id != "" {
		name = id + "_" + name
	}
	if prefix := partitionPrefix(task.Partition); prefix != "" {
		return path.Join(prefix, name)
	}
	return name
}

func partitionPrefix(partition int) string {
	switch {
	case partition > 0:
		return fmt.Sprintf("partition_%d", partition)
	case partition < 0:
		return "partition_auto"
	}
	return ""
}

// inodeNumber returns the leading numeric component of an identifier such as
// "1234-128-1".
func inodeNumber(inode string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(inode), "-")
	if head == "" {
		return ""
	}
	for _, r := range head {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return head
}

func safeName(name string) string {
	name = baseName(name)
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}

func baseName(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// uniquePath appends _N before the extension until rel is unused. Matching is
// case-insensitive and Unicode-normalized so results stay distinct on
// case-folding or normalizing output filesystems.
func uniquePath(rel string, used map[string]struct{}) string {
	candidate := rel
	ext := path.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)
	for n := 1; ; n++ {
		key := strings.ToLower(evidence.SortKey(candidate))
		if _, taken := used[key]; !taken {
			used[key] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
}
