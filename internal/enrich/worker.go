package enrich

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

// WorkerCommand is the hidden subcommand that runs Serve.
const WorkerCommand = "enrich-worker"

// Handler enriches one file inside a worker.
type Handler func(ctx context.Context, path string, opts Options) Result

// Serve runs the worker loop with Enrich as the handler.
func Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	return ServeHandler(ctx, r, w, Enrich)
}

// ServeHandler decodes requests from r, runs handle for each, and writes one
// response per request to w. It returns nil when r reaches EOF.
func ServeHandler(ctx context.Context, r io.Reader, w io.Writer, handle Handler) error {
	dec := decMode.NewDecoder(bufio.NewReader(r))
	bw := bufio.NewWriter(w)
	enc := encMode.NewEncoder(bw)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}
		resp := response{ID: req.ID, Result: handle(ctx, req.Path, req.Options)}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("flush response: %w", err)
		}
	}
}

// safeEnrich runs handle in-process, converting a panic into a failed result.
func safeEnrich(ctx context.Context, handle Handler, path string, opts Options) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Path: path, RelPath: relativeTo(opts.OutputDir, path), Error: fmt.Sprintf("enrichment panicked: %v", r)}
		}
	}()
	return handle(ctx, path, opts)
}
