package fingerprint

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Digest holds the hex-encoded cryptographic digests of one artifact.
type Digest struct {
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Hasher accumulates MD5 and SHA-256 over everything written to it.
type Hasher struct {
	md5    hash.Hash
	sha256 hash.Hash
	size   int64
}

// NewHasher returns an empty dual-digest hasher.
func NewHasher() *Hasher {
	return &Hasher{md5: md5.New(), sha256: sha256.New()}
}

// Write feeds p to both digests. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	h.md5.Write(p)
	h.sha256.Write(p)
	h.size += int64(len(p))
	return len(p), nil
}

// Sum returns the digests of all bytes written so far.
func (h *Hasher) Sum() Digest {
	return Digest{
		MD5:    hex.EncodeToString(h.md5.Sum(nil)),
		SHA256: hex.EncodeToString(h.sha256.Sum(nil)),
		Size:   h.size,
	}
}

const readChunk = 64 * 1024

// HashReader streams r through a Hasher, checking ctx between chunks.
func HashReader(ctx context.Context, r io.Reader) (Digest, error) {
	h := NewHasher()
	buf := make([]byte, readChunk)
	for {
		select {
		case <-ctx.Done():
			return Digest{}, ctx.Err()
		default:
		}
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			return h.Sum(), nil
		}
		if err != nil {
			return Digest{}, err
		}
	}
}

// HashFile computes the digests of the file at path.
func HashFile(ctx context.Context, path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	d, err := HashReader(ctx, f)
	if err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return d, nil
}
