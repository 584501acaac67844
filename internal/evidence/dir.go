package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Dir is a container backed by a mounted filesystem or exported directory.
// Each Dir owns its own os.Root, so reads cannot escape the evidence root.
type Dir struct {
	base string
	root *os.Root
}

// OpenDir opens the directory at base as an evidence container.
func OpenDir(base string) (*Dir, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve evidence root: %w", err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("open evidence root: %w", err)
	}
	return &Dir{base: abs, root: root}, nil
}

// Base returns the absolute directory backing the container.
func (d *Dir) Base() string { return d.base }

// List walks the container and returns every regular file.
func (d *Dir) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := fs.WalkDir(d.root.FS(), ".", func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			// Unreadable subtrees are skipped rather than failing the listing.
			if de != nil && de.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !de.Type().IsRegular() {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return nil
		}
		entry := Entry{
			Path: CleanPath(p),
			Name: path.Base(p),
			Size: info.Size(),
		}
		entry.Times.Modified = info.ModTime()
		fillStat(filepath.Join(d.base, filepath.FromSlash(p)), &entry)
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk evidence root: %w", err)
	}
	return entries, nil
}

// Open opens p, a container-relative path, for reading.
func (d *Dir) Open(p string) (io.ReadCloser, error) {
	p = CleanPath(p)
	if p == "." || strings.HasPrefix(p, "../") {
		return nil, fmt.Errorf("open %q: %w", p, fs.ErrInvalid)
	}
	f, err := d.root.Open(filepath.FromSlash(p))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Clone opens a second os.Root on the same directory.
func (d *Dir) Clone() (Container, error) {
	return OpenDir(d.base)
}

// Close releases the root handle.
func (d *Dir) Close() error {
	if d == nil || d.root == nil {
		return nil
	}
	err := d.root.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
