package evidence

import (
	"path"
	"strings"
)

// Filter selects entries by glob pattern and size. Patterns are matched
// case-insensitively; a pattern without '/' matches the file name, one with
// '/' matches the whole container path. Empty Include keeps everything.
type Filter struct {
	Include []string
	Exclude []string
	MinSize int64
	MaxSize int64
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if e.Size < f.MinSize {
		return false
	}
	if f.MaxSize > 0 && e.Size > f.MaxSize {
		return false
	}
	full := strings.ToLower(strings.ReplaceAll(e.Path, "\\", "/"))
	name := strings.ToLower(path.Base(full))
	if matchAny(f.Exclude, full, name) {
		return false
	}
	if len(f.Include) == 0 {
		return true
	}
	return matchAny(f.Include, full, name)
}

// Apply returns the entries that pass the filter, preserving order.
func (f Filter) Apply(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

func matchAny(patterns []string, full, name string) bool {
	for _, p := range patterns {
		p = strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
		target := name
		if strings.Contains(p, "/") {
			target = full
			p = strings.TrimPrefix(p, "/")
		}
		if ok, err := path.Match(p, target); err == nil && ok {
			return true
		}
		// Directory patterns such as "$recycle.bin/*" also match nested paths.
		if target == full && matchPrefix(p, full) {
			return true
		}
	}
	return false
}

func matchPrefix(pattern, full string) bool {
	if !strings.HasSuffix(pattern, "/*") {
		return false
	}
	dir := strings.TrimSuffix(pattern, "/*")
	parts := strings.Split(full, "/")
	depth := strings.Count(dir, "/") + 1
	for i := 0; i+depth < len(parts); i++ {
		if ok, _ := path.Match(dir, strings.Join(parts[i:i+depth], "/")); ok {
			return true
		}
	}
	return false
}
