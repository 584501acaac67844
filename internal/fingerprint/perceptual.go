package fingerprint

import (
	"errors"
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"
)

// Perceptual returns the 64-bit DCT perceptual hash of img as 16 hex digits.
func Perceptual(img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("perceptual hash: nil image")
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return "", errors.New("perceptual hash: empty image")
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("perceptual hash: %w", err)
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

// PerceptualDistance returns the Hamming distance between two hashes
// produced by Perceptual.
func PerceptualDistance(a, b string) (int, error) {
	x, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse perceptual hash %q: %w", a, err)
	}
	y, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse perceptual hash %q: %w", b, err)
	}
	return bits.OnesCount64(x ^ y), nil
}
