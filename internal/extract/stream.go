package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"exhume/internal/evidence"
	"exhume/internal/fingerprint"
	"exhume/internal/signature"
)

// extractOne streams one task to rel under the output directory.
func (b *batch) extractOne(c evidence.Container, task Task, rel string) Result {
	res := Result{Task: task}
	if b.ctx.Err() != nil {
		res.Cancelled = true
		res.Error = notStartedMessage
		return res
	}

	src, err := c.Open(task.SourcePath)
	if err != nil {
		res.Error = fmt.Sprintf("open source: %v", err)
		return res
	}
	defer src.Close()

	dest := filepath.Join(b.outputDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		res.Error = fmt.Sprintf("create destination directory: %v", err)
		return res
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		res.Error = fmt.Sprintf("create destination: %v", err)
		return res
	}

	s := stream{
		hasher:     fingerprint.NewHasher(),
		zeroWindow: int64(b.opts.SparseWindowBytes),
		allZero:    true,
	}
	copyErr := b.copy(&s, src, out)
	closeErr := out.Close()

	discard := func() { _ = os.Remove(dest) }
	switch {
	case errors.Is(copyErr, ErrCancelled):
		discard()
		res.Cancelled = true
		res.Error = cancelledMessage
		res.BytesWritten = s.written
		return res
	case copyErr != nil:
		discard()
		res.Error = copyErr.Error()
		res.BytesWritten = s.written
		return res
	case closeErr != nil:
		discard()
		res.Error = fmt.Sprintf("close destination: %v", closeErr)
		return res
	}

	res.BytesWritten = s.written
	if b.isSparse(task, &s) {
		discard()
		res.Sparse = true
		return res
	}

	digest := s.hasher.Sum()
	res.Success = true
	res.Destination = dest
	res.RelPath = rel
	res.MD5 = digest.MD5
	res.SHA256 = digest.SHA256
	if b.opts.VerifySignatures && len(s.header) > 0 {
		res.SignatureChecked = true
		res.DetectedType, res.SignatureValid = signature.Verify(s.header, task.Name)
	}
	return res
}

type stream struct {
	hasher     *fingerprint.Hasher
	header     []byte
	written    int64
	zeroWindow int64
	allZero    bool
}

// observe records chunk for the header, zero window, and digests.
func (s *stream) observe(chunk []byte) {
	if need := signature.HeaderSize - len(s.header); need > 0 {
		s.header = append(s.header, chunk[:min(need, len(chunk))]...)
	}
	if s.allZero && s.written < s.zeroWindow {
		window := chunk[:min(int64(len(chunk)), s.zeroWindow-s.written)]
		for _, v := range window {
			if v != 0 {
				s.allZero = false
				break
			}
		}
	}
	_, _ = s.hasher.Write(chunk)
	s.written += int64(len(chunk))
}

func (b *batch) copy(s *stream, src io.Reader, dst io.Writer) error {
	buf := make([]byte, b.opts.ChunkSize)
	var sinceCheck int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, err := dst.Write(chunk); err != nil {
				return fmt.Errorf("write destination: %w", err)
			}
			s.observe(chunk)
			sinceCheck += int64(n)
			if sinceCheck >= b.opts.CancelCheckBytes {
				sinceCheck = 0
				if b.ctx.Err() != nil {
					return ErrCancelled
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read source: %w", readErr)
		}
	}
}

// isSparse reports placeholder content: a non-empty task that streamed
// nothing, or a task at least SparseMinSizeBytes whose leading window is all
// zero bytes.
func (b *batch) isSparse(task Task, s *stream) bool {
	if task.Size > 0 && s.written == 0 {
		return true
	}
	return task.Size >= b.opts.SparseMinSizeBytes && s.written > 0 && s.allZero
}
