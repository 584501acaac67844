package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteBytes writes data to path, creating parent directories.
func WriteBytes(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Pattern returns a w x h gradient image; seed shifts the colors so distinct
// seeds produce distinct content.
func Pattern(w, h int, seed uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*255/max(w, 1)) + seed,
				G: uint8(y*255/max(h, 1)) ^ seed,
				B: seed * 3,
				A: 0xff,
			})
		}
	}
	return img
}

// PNGBytes encodes a seeded pattern as PNG.
func PNGBytes(t testing.TB, w, h int, seed uint8) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, Pattern(w, h, seed)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEGBytes encodes a seeded pattern as JPEG.
func JPEGBytes(t testing.TB, w, h int, seed uint8) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Pattern(w, h, seed), &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// WritePNG writes a seeded PNG fixture to path.
func WritePNG(t testing.TB, path string, w, h int, seed uint8) []byte {
	t.Helper()

	data := PNGBytes(t, w, h, seed)
	WriteBytes(t, path, data)
	return data
}

// WriteJPEG writes a seeded JPEG fixture to path.
func WriteJPEG(t testing.TB, path string, w, h int, seed uint8) []byte {
	t.Helper()

	data := JPEGBytes(t, w, h, seed)
	WriteBytes(t, path, data)
	return data
}
