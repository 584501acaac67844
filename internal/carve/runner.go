package carve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"exhume/internal/config"
	"exhume/internal/logging"
)

// ErrTimeout is returned when the carver outlives its configured timeout.
var ErrTimeout = errors.New("carving timed out")

// Executor abstracts command execution for testability. A non-zero exit is
// reported through the exit code, not the error.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (exitCode int, output []byte, err error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (int, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err == nil {
		return 0, out.Bytes(), nil
	}
	if ctx.Err() != nil {
		return -1, out.Bytes(), ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), out.Bytes(), nil
	}
	return -1, out.Bytes(), err
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logging.NewComponentLogger(logger, "carver")
	}
}

// Runner invokes one carving tool.
type Runner struct {
	tool    string
	binary  string
	timeout time.Duration
	types   []FileType
	exec    Executor
	logger  *slog.Logger
}

// NewRunner constructs a runner for tool ("foremost" or "scalpel").
func NewRunner(tool, binary string, timeoutSeconds int, types []FileType, opts ...Option) (*Runner, error) {
	tool = strings.ToLower(strings.TrimSpace(tool))
	if tool != ToolForemost && tool != ToolScalpel {
		return nil, fmt.Errorf("unsupported carving tool %q", tool)
	}
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, fmt.Errorf("%s binary required", tool)
	}
	if len(types) == 0 {
		return nil, errors.New("carve: no file types configured")
	}
	r := &Runner{
		tool:    tool,
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		types:   types,
		exec:    commandExecutor{},
		logger:  logging.NewComponentLogger(nil, "carver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunnerFromConfig builds a runner from the carving section.
func RunnerFromConfig(cfg *config.Config, opts ...Option) (*Runner, error) {
	types, unknown := ResolveTypes(cfg.Carving.FileTypes, cfg.Carving.MaxFileSize)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("carving.file_types: unknown types %s (known: %s)",
			strings.Join(unknown, ", "), strings.Join(BuiltinTypeNames(), ", "))
	}
	return NewRunner(cfg.Carving.Tool, cfg.CarverBinary(), cfg.Carving.TimeoutSeconds, types, opts...)
}

// Tool returns the carver name.
func (r *Runner) Tool() string { return r.tool }

// Binary returns the carver executable.
func (r *Runner) Binary() string { return r.binary }

// RunResult describes one finished carver invocation.
type RunResult struct {
	Tool       string
	Binary     string
	Args       []string
	ExitCode   int
	Duration   time.Duration
	OutputDir  string
	ConfigPath string
	Files      []string
	Audit      Audit
	Output     string
}

// Run carves image into outputDir/carved, replacing any earlier carve
// output there. A non-zero exit is logged, not returned, because carvers
// report partial success that way.
func (r *Runner) Run(ctx context.Context, image, outputDir string) (RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(image); err != nil {
		return RunResult{}, fmt.Errorf("carve source: %w", err)
	}
	carved := filepath.Join(outputDir, CarvedDir)
	if err := os.RemoveAll(carved); err != nil {
		return RunResult{}, fmt.Errorf("clear carved directory: %w", err)
	}
	if err := os.MkdirAll(carved, 0o755); err != nil {
		return RunResult{}, fmt.Errorf("create carved directory: %w", err)
	}
	confPath := filepath.Join(outputDir, ConfigFile)
	if err := WriteConfig(confPath, r.types); err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		Tool:       r.tool,
		Binary:     r.binary,
		Args:       r.args(image, carved, confPath),
		OutputDir:  carved,
		ConfigPath: confPath,
	}
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("carving started",
		logging.String(logging.FieldEventType, "carve_start"),
		logging.String("tool", r.tool),
		logging.String("image", image),
		logging.Duration("timeout", r.timeout),
	)

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	exitCode, output, err := r.exec.Run(runCtx, r.binary, result.Args)
	result.Duration = time.Since(start)
	result.ExitCode = exitCode
	result.Output = string(output)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
		}
		return result, fmt.Errorf("run %s: %w", r.tool, err)
	}
	if exitCode != 0 {
		logging.WarnWithContext(logger, "carver exited non-zero", "carve_exit_nonzero",
			logging.Int("exit_code", exitCode),
			logging.String(logging.FieldErrorHint, "carver output may be partial"),
			logging.String(logging.FieldImpact, "collected files are still extracted"),
		)
	}

	if result.Files, err = Collect(carved); err != nil {
		return result, err
	}
	if result.Audit, err = ReadAudit(filepath.Join(carved, AuditFile)); err != nil {
		return result, err
	}
	logger.Info("carving finished",
		logging.String(logging.FieldEventType, "carve_complete"),
		logging.Int("files", len(result.Files)),
		logging.Int("audit_entries", len(result.Audit.Entries)),
		logging.Int("exit_code", exitCode),
		logging.Duration("elapsed", result.Duration),
	)
	return result, nil
}

func (r *Runner) args(image, carved, confPath string) []string {
	if r.tool == ToolForemost {
		return []string{"-o", carved, "-c", confPath, "-v", "-q", image}
	}
	return []string{"-o", carved, "-c", confPath, image}
}
