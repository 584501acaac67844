package evidence

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrHandleUnsupported reports that a container cannot open a second
// independent handle. Callers fall back to a single sequential reader.
var ErrHandleUnsupported = errors.New("evidence container does not support independent handles")

// Times holds the optional timestamps a filesystem reports for an entry. A
// zero value means the filesystem did not provide it.
type Times struct {
	Modified time.Time
	Accessed time.Time
	Created  time.Time
	Changed  time.Time
}

// Entry describes one candidate file inside a container.
type Entry struct {
	Path      string
	Name      string
	Size      int64
	Times     Times
	Inode     string
	Partition int
	Deleted   bool
}

// Container is a read-only view of one piece of evidence.
type Container interface {
	// List returns every regular file in the container.
	List(ctx context.Context) ([]Entry, error)
	// Open opens one listed path for streaming reads.
	Open(path string) (io.ReadCloser, error)
	// Clone opens an independent handle onto the same container, or returns
	// ErrHandleUnsupported.
	Clone() (Container, error)
	Close() error
}

// CleanPath converts p to the slash-separated, root-relative form used for
// every Entry.Path. The bytes of each name are kept as stored so the path
// still opens on filesystems that do not normalize Unicode.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		p = "."
	}
	return p
}

// SortKey returns the NFC form of p. Composed and decomposed spellings of a
// name share a key, so ordering does not depend on how a filesystem stored it.
func SortKey(p string) string {
	return norm.NFC.String(p)
}

// catalog overrides a container's listing with a precomputed one.
type catalog struct {
	Container
	entries []Entry
}

// WithCatalog returns a container that lists entries instead of walking c.
// Reads and clones still go to c.
func WithCatalog(c Container, entries []Entry) Container {
	return &catalog{Container: c, entries: entries}
}

func (c *catalog) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Entry(nil), c.entries...), nil
}

func (c *catalog) Clone() (Container, error) {
	inner, err := c.Container.Clone()
	if err != nil {
		return nil, err
	}
	return &catalog{Container: inner, entries: c.entries}, nil
}

// singleHandle wraps a container whose access cannot be duplicated.
type singleHandle struct {
	Container
}

// SingleHandle returns c restricted to one handle; Clone always fails.
func SingleHandle(c Container) Container {
	return singleHandle{Container: c}
}

func (singleHandle) Clone() (Container, error) {
	return nil, ErrHandleUnsupported
}
