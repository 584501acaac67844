package evidence

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// BodyfileOptions controls how Sleuth Kit bodyfile listings are interpreted.
type BodyfileOptions struct {
	Partition int
	// StripPrefix removes a mount-point prefix (for example "C:") from every path.
	StripPrefix string
	// KeepNTFSAttributes retains "($FILE_NAME)" and ":$DATA" attribute rows.
	KeepNTFSAttributes bool
}

// BodyfileStats summarizes one parse.
type BodyfileStats struct {
	Lines       int
	Parsed      int
	Malformed   int
	Directories int
	Attributes  int
}

var (
	ntfsAttributePattern = regexp.MustCompile(`(?i)\s*\(\$[A-Z0-9_]+\)\s*(?:\(deleted(?:-realloc)?\))?$|:\$[A-Z0-9_]+$`)
	deletedSuffixPattern = regexp.MustCompile(`(?i)\s*\(deleted(?:-realloc)?\)$`)
)

const bodyfileFields = 11

// ParseBodyfile reads a bodyfile (fls -m output) with the field layout
//
//	MD5|name|inode|mode|UID|GID|size|atime|mtime|ctime|crtime
//
// Paths may contain '|', so the ten trailing fields are split from the
// right. Directories, NTFS attribute rows, and malformed lines are skipped
// and counted.
func ParseBodyfile(r io.Reader, opts BodyfileOptions) ([]Entry, BodyfileStats, error) {
	var (
		entries []Entry
		stats   BodyfileStats
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		stats.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, skip, ok := parseBodyfileLine(line, opts)
		switch {
		case !ok:
			stats.Malformed++
		case skip == skipDirectory:
			stats.Directories++
		case skip == skipAttribute:
			stats.Attributes++
		default:
			stats.Parsed++
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("read bodyfile: %w", err)
	}
	return entries, stats, nil
}

type skipReason int

const (
	skipNone skipReason = iota
	skipDirectory
	skipAttribute
)

func parseBodyfileLine(line string, opts BodyfileOptions) (Entry, skipReason, bool) {
	first := strings.IndexByte(line, '|')
	if first < 0 {
		return Entry{}, skipNone, false
	}
	rest := line[first+1:]

	// Split the nine trailing numeric/mode fields off the right.
	tail := make([]string, 0, bodyfileFields-2)
	for len(tail) < bodyfileFields-2 {
		idx := strings.LastIndexByte(rest, '|')
		if idx < 0 {
			return Entry{}, skipNone, false
		}
		tail = append(tail, rest[idx+1:])
		rest = rest[:idx]
	}
	// tail is reversed: crtime, ctime, mtime, atime, size, gid, uid, mode, inode.
	name := rest
	inode := strings.TrimSpace(tail[8])
	mode := strings.TrimSpace(tail[7])
	size, err := strconv.ParseInt(strings.TrimSpace(tail[4]), 10, 64)
	if err != nil || size < 0 {
		return Entry{}, skipNone, false
	}

	if strings.HasPrefix(mode, "d") {
		return Entry{}, skipDirectory, true
	}
	if !opts.KeepNTFSAttributes && ntfsAttributePattern.MatchString(name) {
		return Entry{}, skipAttribute, true
	}

	deleted := false
	if strings.HasPrefix(name, "*") {
		deleted = true
		name = strings.TrimSpace(strings.TrimPrefix(name, "*"))
	}
	if deletedSuffixPattern.MatchString(name) {
		deleted = true
		name = deletedSuffixPattern.ReplaceAllString(name, "")
	}
	if opts.StripPrefix != "" {
		name = strings.TrimPrefix(name, opts.StripPrefix)
	}
	clean := CleanPath(name)
	if clean == "." {
		return Entry{}, skipNone, false
	}

	return Entry{
		Path: clean,
		Name: path.Base(clean),
		Size: size,
		Times: Times{
			Accessed: epoch(tail[3]),
			Modified: epoch(tail[2]),
			Changed:  epoch(tail[1]),
			Created:  epoch(tail[0]),
		},
		Inode:     inode,
		Partition: opts.Partition,
		Deleted:   deleted,
	}, skipNone, true
}

// epoch parses a bodyfile timestamp; zero and garbage both mean absent.
func epoch(field string) time.Time {
	field = strings.TrimSpace(field)
	if field == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseFloat(field, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC()
}
