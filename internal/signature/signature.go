// Package signature identifies image formats from their leading magic bytes
// and checks them against a file's declared extension.
package signature

import (
	"bytes"
	"path"
	"strings"
)

// HeaderSize is the number of leading bytes Detect needs to recognise every
// supported format.
const HeaderSize = 32

// Kind names a detected image format.
type Kind string

const (
	Unknown Kind = ""
	JPEG    Kind = "jpeg"
	PNG     Kind = "png"
	GIF     Kind = "gif"
	BMP     Kind = "bmp"
	ICO     Kind = "ico"
	TIFF    Kind = "tiff"
	WebP    Kind = "webp"
	SVG     Kind = "svg"
	AVIF    Kind = "avif"
	HEIC    Kind = "heic"
)

var extensions = map[Kind][]string{
	JPEG: {".jpg", ".jpeg", ".jpe", ".jfif"},
	PNG:  {".png"},
	GIF:  {".gif"},
	BMP:  {".bmp", ".dib"},
	ICO:  {".ico", ".cur"},
	TIFF: {".tif", ".tiff"},
	WebP: {".webp"},
	SVG:  {".svg"},
	AVIF: {".avif"},
	HEIC: {".heic", ".heif"},
}

var (
	magicPNG   = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	magicTIFFI = []byte{'I', 'I', '*', 0}
	magicTIFFM = []byte{'M', 'M', 0, '*'}
	magicICO   = []byte{0, 0, 1, 0}
	magicCUR   = []byte{0, 0, 2, 0}
)

// Detect returns the format implied by header, or Unknown.
func Detect(header []byte) Kind {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return JPEG
	case bytes.HasPrefix(header, magicPNG):
		return PNG
	case bytes.HasPrefix(header, []byte("GIF87a")), bytes.HasPrefix(header, []byte("GIF89a")):
		return GIF
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return WebP
	case bytes.HasPrefix(header, magicTIFFI), bytes.HasPrefix(header, magicTIFFM):
		return TIFF
	case bytes.HasPrefix(header, magicICO), bytes.HasPrefix(header, magicCUR):
		return ICO
	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")):
		return detectISOBMFF(header[8:12])
	case bytes.HasPrefix(header, []byte("BM")) && len(header) >= 6:
		return BMP
	}
	return detectSVG(header)
}

func detectISOBMFF(brand []byte) Kind {
	switch string(brand) {
	case "avif", "avis":
		return AVIF
	case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
		return HEIC
	}
	return Unknown
}

func detectSVG(header []byte) Kind {
	trimmed := bytes.TrimLeft(header, " \t\r\n\xef\xbb\xbf")
	lower := bytes.ToLower(trimmed)
	if bytes.HasPrefix(lower, []byte("<svg")) {
		return SVG
	}
	if bytes.HasPrefix(lower, []byte("<?xml")) && bytes.Contains(lower, []byte("<svg")) {
		return SVG
	}
	return Unknown
}

// Extensions returns the lower-case extensions (with dot) that belong to k.
func Extensions(k Kind) []string {
	return append([]string(nil), extensions[k]...)
}

// Verify detects the format of header and reports whether it agrees with the
// extension of name. A name without an extension agrees with any recognised
// format; unrecognised content never agrees.
func Verify(header []byte, name string) (Kind, bool) {
	kind := Detect(header)
	if kind == Unknown {
		return Unknown, false
	}
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/")))
	if ext == "" {
		return kind, true
	}
	for _, candidate := range extensions[kind] {
		if candidate == ext {
			return kind, true
		}
	}
	return kind, false
}
