package enrich

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/fxamacker/cbor/v2"

	"exhume/internal/logging"
)

const workerStopGrace = 2 * time.Second

// worker is one child process. Only the pool loop touches its fields after
// start; the read loop owns stdout.
type worker struct {
	id     int
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	bw     *bufio.Writer
	enc    *cbor.Encoder
	exited chan struct{}

	task  int
	alive bool
}

type completion struct {
	worker *worker
	resp   response
	err    error
}

func (p *Processor) startWorker(id int, completions chan<- completion, quit <-chan struct{}) (*worker, error) {
	name, err := p.command()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(name, p.opts.Args...)
	cmd.Env = append(os.Environ(), p.opts.Env...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	bw := bufio.NewWriter(stdin)
	w := &worker{
		id:     id,
		cmd:    cmd,
		stdin:  stdin,
		bw:     bw,
		enc:    encMode.NewEncoder(bw),
		exited: make(chan struct{}),
		task:   -1,
		alive:  true,
	}
	go w.readLoop(stdout, completions, quit)
	return w, nil
}

// readLoop forwards responses until stdout closes, then reaps the process
// and reports its exit. Once quit closes it stops forwarding but keeps
// draining stdout so the process is always reaped and exited always closes.
func (w *worker) readLoop(stdout io.Reader, completions chan<- completion, quit <-chan struct{}) {
	dec := decMode.NewDecoder(bufio.NewReader(stdout))
	forward := true
	for {
		var resp response
		if err := dec.Decode(&resp); err != nil {
			waitErr := w.cmd.Wait()
			close(w.exited)
			if !forward {
				return
			}
			exitErr := fmt.Errorf("worker exited: %v", err)
			if waitErr != nil {
				exitErr = fmt.Errorf("worker exited: %v", waitErr)
			}
			select {
			case completions <- completion{worker: w, err: exitErr}:
			case <-quit:
			}
			return
		}
		if !forward {
			continue
		}
		select {
		case completions <- completion{worker: w, resp: resp}:
		case <-quit:
			forward = false
		}
	}
}

func (w *worker) send(req request) error {
	if err := w.enc.Encode(req); err != nil {
		return err
	}
	return w.bw.Flush()
}

func (w *worker) kill() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
}

// stop closes stdin so the worker exits on EOF, killing it after a grace
// period.
func (w *worker) stop() {
	_ = w.stdin.Close()
	select {
	case <-w.exited:
	case <-time.After(workerStopGrace):
		w.kill()
		<-w.exited
	}
}

// pool is the state of one runPool call.
type pool struct {
	p           *Processor
	logger      *slog.Logger
	paths       []string
	results     map[string]Result
	workers     []*worker
	completions chan completion
	quit        chan struct{}

	next         int
	inflight     int
	lastProgress time.Time
}

func (p *Processor) runPool(ctx context.Context, paths []string) (map[string]Result, error) {
	pl := &pool{
		p:           p,
		logger:      logging.WithContext(ctx, p.logger),
		paths:       paths,
		results:     make(map[string]Result, len(paths)),
		completions: make(chan completion),
		quit:        make(chan struct{}),
	}
	defer pl.shutdown()

	size := min(p.opts.Workers, len(paths))
	for i := 0; i < size; i++ {
		w, err := p.startWorker(i, pl.completions, pl.quit)
		if err != nil {
			if len(pl.workers) == 0 {
				return nil, fmt.Errorf("%w: %v", errPoolUnavailable, err)
			}
			pl.logger.Debug("worker start failed; continuing with smaller pool", logging.Error(err))
			break
		}
		pl.workers = append(pl.workers, w)
	}

	pl.lastProgress = time.Now()
	for _, w := range pl.workers {
		pl.dispatch(w)
	}

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for len(pl.results) < len(paths) {
		if pl.aliveCount() == 0 {
			pl.logger.Warn("no enrichment workers left; finishing batch in-process",
				logging.String(logging.FieldEventType, "enrich_pool_exhausted"),
				logging.Int("remaining", len(paths)-len(pl.results)),
			)
			return pl.finishSequential(ctx)
		}
		select {
		case c := <-pl.completions:
			pl.handle(c)
		case <-ticker.C:
			idle := time.Since(pl.lastProgress)
			if pl.inflight > 0 && idle >= p.opts.StuckTimeout {
				pl.abortStuck(idle)
				return pl.results, nil
			}
		case <-ctx.Done():
			pl.killBusy()
			p.failRemaining(pl.results, paths, cancelledMessage)
			return pl.results, ctx.Err()
		}
	}
	return pl.results, nil
}

// dispatch hands w the next undispatched path, if any.
func (pl *pool) dispatch(w *worker) {
	if !w.alive || w.task >= 0 || pl.next >= len(pl.paths) {
		return
	}
	id := pl.next
	if err := w.send(request{ID: id, Path: pl.paths[id], Options: pl.p.opts.Item}); err != nil {
		// The read loop reports the exit; the path stays undispatched.
		w.alive = false
		w.kill()
		return
	}
	w.task = id
	pl.next++
	pl.inflight++
}

func (pl *pool) handle(c completion) {
	w := c.worker
	if c.err != nil {
		w.alive = false
		if w.task >= 0 {
			path := pl.paths[w.task]
			pl.results[path] = pl.p.failed(path, c.err.Error())
			pl.inflight--
			pl.lastProgress = time.Now()
			logging.WarnWithContext(pl.logger, "enrichment worker died", "enrich_worker_exit",
				logging.SourcePath(path),
				logging.String(logging.FieldErrorHint, "file may be malformed or hostile"),
				logging.String(logging.FieldImpact, "file recorded without enrichment"),
				logging.Error(c.err),
			)
			w.task = -1
		}
		if pl.next < len(pl.paths) {
			replacement, err := pl.p.startWorker(len(pl.workers), pl.completions, pl.quit)
			if err == nil {
				pl.workers = append(pl.workers, replacement)
				pl.dispatch(replacement)
			}
		}
		return
	}

	id := c.resp.ID
	if id != w.task || id < 0 || id >= len(pl.paths) {
		pl.logger.Debug("discarding unexpected worker response", logging.Int("id", id), logging.Int("expected", w.task))
		return
	}
	res := c.resp.Result
	path := pl.paths[id]
	if res.Path == "" {
		res.Path = path
	}
	pl.results[path] = res
	pl.inflight--
	pl.lastProgress = time.Now()
	w.task = -1
	pl.dispatch(w)
}

// abortStuck force-fails every unfinished path and kills busy workers.
func (pl *pool) abortStuck(idle time.Duration) {
	msg := fmt.Sprintf("Worker stuck - no progress for %.0fs", idle.Seconds())
	n := pl.p.failRemaining(pl.results, pl.paths, msg)
	logging.WarnWithContext(pl.logger, "enrichment workers stuck; aborting remaining files", "enrich_worker_stuck",
		logging.Int("abandoned", n),
		logging.Duration("idle", idle),
		logging.String(logging.FieldErrorHint, "a file is hanging the decoder"),
		logging.String(logging.FieldImpact, "abandoned files are recorded without enrichment"),
		logging.Error(ErrWorkerStuck),
	)
	pl.killBusy()
}

func (pl *pool) killBusy() {
	for _, w := range pl.workers {
		if w.alive && w.task >= 0 {
			w.alive = false
			w.kill()
		}
	}
}

// shutdown releases read loops blocked on completions before stopping the
// workers; stop waits for each read loop to reap its process.
func (pl *pool) shutdown() {
	close(pl.quit)
	for _, w := range pl.workers {
		w.stop()
	}
}

func (pl *pool) aliveCount() int {
	var n int
	for _, w := range pl.workers {
		if w.alive {
			n++
		}
	}
	return n
}

// finishSequential processes the undispatched paths in-process.
func (pl *pool) finishSequential(ctx context.Context) (map[string]Result, error) {
	for _, path := range pl.paths[pl.next:] {
		if err := ctx.Err(); err != nil {
			pl.p.failRemaining(pl.results, pl.paths, cancelledMessage)
			return pl.results, err
		}
		if _, done := pl.results[path]; done {
			continue
		}
		pl.results[path] = safeEnrich(ctx, pl.p.opts.Handler, path, pl.p.opts.Item)
	}
	pl.next = len(pl.paths)
	pl.p.failRemaining(pl.results, pl.paths, "worker exited")
	return pl.results, nil
}
