package enrich

import "errors"

// ErrDecompressionBomb reports an image whose declared pixel count exceeds
// the configured ceiling.
var ErrDecompressionBomb = errors.New("decompression bomb")

// ErrWorkerStuck reports tasks abandoned by the stuck-worker watchdog.
var ErrWorkerStuck = errors.New("worker stuck")

// Options controls per-file enrichment.
type Options struct {
	// OutputDir is the extraction output root. Relative paths and the
	// thumbnails directory are resolved against it.
	OutputDir     string `cbor:"output_dir"`
	MaxPixels     int64  `cbor:"max_pixels"`
	ThumbnailSize int    `cbor:"thumbnail_size"`
}

// Result is the enrichment outcome for one file. Error is set only when the
// file could not be fingerprinted at all; decode problems leave the digests
// in place and are described in Notes.
type Result struct {
	Path      string `cbor:"path"`
	RelPath   string `cbor:"rel_path"`
	Filename  string `cbor:"filename"`
	SizeBytes int64  `cbor:"size_bytes"`

	MD5    string `cbor:"md5,omitempty"`
	SHA256 string `cbor:"sha256,omitempty"`
	PHash  string `cbor:"phash,omitempty"`

	ExifJSON      string `cbor:"exif_json,omitempty"`
	Width         int    `cbor:"width,omitempty"`
	Height        int    `cbor:"height,omitempty"`
	Format        string `cbor:"format,omitempty"`
	ThumbnailPath string `cbor:"thumbnail_path,omitempty"`

	Notes string `cbor:"notes,omitempty"`
	Error string `cbor:"error,omitempty"`
}

// OK reports whether the file was fingerprinted.
func (r Result) OK() bool {
	return r.Error == "" && r.SHA256 != ""
}
