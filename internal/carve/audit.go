package carve

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// AuditEntry is one carved file listed in foremost's audit.txt.
type AuditEntry struct {
	Index  int
	Name   string
	Size   int64
	Offset int64
}

// Audit is the parsed audit.txt of one foremost run.
type Audit struct {
	// BlockSize is the sector size foremost reports in its column header,
	// zero when absent.
	BlockSize int64
	Entries   []AuditEntry
}

var (
	auditLinePattern   = regexp.MustCompile(`^\s*(\d+):\s+(\S+)\s+(\d+(?:\.\d+)?)\s*([KMGT]?B)?\s+(\d+)`)
	scalpelLinePattern = regexp.MustCompile(`^\s*(\S+\.[A-Za-z0-9]+)\s+(\d+)\s+(?:YES|NO)\s+(\d+)\s+\S`)
	blockSizePattern   = regexp.MustCompile(`\(bs=(\d+)\)`)
	sizeUnitMultiples  = map[string]float64{
		"":   1,
		"B":  1,
		"KB": 1 << 10,
		"MB": 1 << 20,
		"GB": 1 << 30,
		"TB": 1 << 40,
	}
)

// ParseAudit reads foremost audit lines of the form
//
//	N: name size offset [comment]
//
// where size may carry a unit suffix, and scalpel audit lines of the form
//
//	name start chop length source
//
// Lines matching neither are ignored.
func ParseAudit(r io.Reader) (Audit, error) {
	var audit Audit
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if audit.BlockSize == 0 {
			if m := blockSizePattern.FindStringSubmatch(line); m != nil {
				audit.BlockSize, _ = strconv.ParseInt(m[1], 10, 64)
				continue
			}
		}
		m := auditLinePattern.FindStringSubmatch(line)
		if m == nil {
			if entry, ok := parseScalpelLine(line, len(audit.Entries)); ok {
				audit.Entries = append(audit.Entries, entry)
			}
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		offset, err := strconv.ParseInt(m[5], 10, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		audit.Entries = append(audit.Entries, AuditEntry{
			Index:  index,
			Name:   m[2],
			Size:   int64(size * sizeUnitMultiples[strings.ToUpper(m[4])]),
			Offset: offset,
		})
	}
	if err := scanner.Err(); err != nil {
		return audit, fmt.Errorf("read audit: %w", err)
	}
	return audit, nil
}

func parseScalpelLine(line string, index int) (AuditEntry, bool) {
	m := scalpelLinePattern.FindStringSubmatch(line)
	if m == nil {
		return AuditEntry{}, false
	}
	offset, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return AuditEntry{}, false
	}
	size, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return AuditEntry{}, false
	}
	return AuditEntry{Index: index, Name: m[1], Size: size, Offset: offset}, true
}

// ReadAudit parses the audit file at path. A missing file yields an empty
// audit.
func ReadAudit(path string) (Audit, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Audit{}, nil
		}
		return Audit{}, err
	}
	defer f.Close()
	return ParseAudit(f)
}

// ByName indexes entries by carved file name. Later duplicates win.
func (a Audit) ByName() map[string]AuditEntry {
	out := make(map[string]AuditEntry, len(a.Entries))
	for _, e := range a.Entries {
		out[e.Name] = e
	}
	return out
}
