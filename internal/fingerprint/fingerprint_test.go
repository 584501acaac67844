package fingerprint_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"exhume/internal/fingerprint"
)

func TestHashReaderMatchesStdlibDigests(t *testing.T) {
	payload := bytes.Repeat([]byte("exhume"), 50_000)
	d, err := fingerprint.HashReader(context.Background(), bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	sha := sha256.Sum256(payload)
	sum := md5.Sum(payload)
	if d.SHA256 != hex.EncodeToString(sha[:]) {
		t.Fatalf("sha256 mismatch: %s", d.SHA256)
	}
	if d.MD5 != hex.EncodeToString(sum[:]) {
		t.Fatalf("md5 mismatch: %s", d.MD5)
	}
	if d.Size != int64(len(payload)) {
		t.Fatalf("size = %d, want %d", d.Size, len(payload))
	}
}

func TestHashReaderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fingerprint.HashReader(ctx, bytes.NewReader([]byte("data")))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHashFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	d, err := fingerprint.HashFile(context.Background(), path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if d.SHA256 != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("unexpected empty sha256 %s", d.SHA256)
	}
}

func gradient(w, h int, invert bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			if invert {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestPerceptualDeterministicAndDiscriminating(t *testing.T) {
	first, err := fingerprint.Perceptual(gradient(128, 96, false))
	if err != nil {
		t.Fatalf("Perceptual: %v", err)
	}
	if len(first) != 16 {
		t.Fatalf("expected 16 hex digits, got %q", first)
	}
	again, err := fingerprint.Perceptual(gradient(128, 96, false))
	if err != nil {
		t.Fatalf("Perceptual again: %v", err)
	}
	if first != again {
		t.Fatalf("hash not deterministic: %s vs %s", first, again)
	}

	inverted, err := fingerprint.Perceptual(gradient(128, 96, true))
	if err != nil {
		t.Fatalf("Perceptual inverted: %v", err)
	}
	dist, err := fingerprint.PerceptualDistance(first, inverted)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if dist == 0 {
		t.Fatal("inverted image should not hash identically")
	}
}

func TestPerceptualDistanceRejectsGarbage(t *testing.T) {
	if _, err := fingerprint.PerceptualDistance("zz", "00"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPerceptualRejectsEmptyImage(t *testing.T) {
	if _, err := fingerprint.Perceptual(image.NewGray(image.Rect(0, 0, 0, 0))); err == nil {
		t.Fatal("expected error for empty image")
	}
}
