// Package invoke runs the tool under test as a child process and captures
// its merged output and exit status.
package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/roach88/jpegconform/internal/config"
)

// Flags appended when an output directory is requested: overwrite
// existing targets and write into the directory instead of in place.
var outputDirFlags = []string{"-o", "-d"}

// Invocation describes one run of the tool.
type Invocation struct {
	// Args are passed to the tool verbatim, in order.
	Args []string

	// Dir, when set, is created if missing and passed to the tool as the
	// destination directory. Relative paths are relative to the work dir.
	Dir string

	// Check makes a non-zero exit an execution failure.
	Check bool
}

// Result is the captured outcome of a single completed process.
type Result struct {
	Command  []string      `json:"command"`
	Output   string        `json:"output"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"-"`
}

// CommandLine returns the command joined with spaces, for display.
func (r *Result) CommandLine() string {
	return strings.Join(r.Command, " ")
}

// ExecutionError means the tool itself misbehaved: it could not be
// started, or it exited non-zero when the invocation required success.
// It is never used for output or filesystem mismatches.
type ExecutionError struct {
	Result       // ExitCode is -1 when the process never ran
	Err    error // start error, nil for a plain non-zero exit
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution failed: %s: %v", e.CommandLine(), e.Err)
	}
	return fmt.Sprintf("execution failed: %s: exit status %d\n---\n%s---", e.CommandLine(), e.ExitCode, e.Output)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionError reports whether err is or wraps an *ExecutionError.
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}

// Runner spawns the tool. A Runner holds no per-run state and is safe for
// concurrent use; every Run owns its own output buffer.
type Runner struct {
	program string
	workDir string
	env     []string
	fs      afero.Fs
	logger  *slog.Logger
}

// NewRunner creates a runner for cfg. A nil logger discards diagnostics.
func NewRunner(cfg config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		program: cfg.Program,
		workDir: cfg.WorkDir,
		env:     cfg.Env,
		fs:      afero.NewOsFs(),
		logger:  logger,
	}
}

// Program returns the executable path the runner spawns.
func (r *Runner) Program() string {
	return r.program
}

// WorkDir returns the directory the tool runs in.
func (r *Runner) WorkDir() string {
	return r.workDir
}

// Fs returns the filesystem used for output directories.
func (r *Runner) Fs() afero.Fs {
	return r.fs
}

// Run executes the tool once and waits for it to exit.
//
// The returned Result is non-nil whenever the process ran, including when
// an *ExecutionError is returned for a Check invocation, so callers can
// always report the captured output.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	args := append([]string{}, inv.Args...)

	if inv.Dir != "" {
		if err := r.fs.MkdirAll(r.resolve(inv.Dir), 0o755); err != nil {
			return nil, fmt.Errorf("create output directory %s: %w", inv.Dir, err)
		}
		args = append(args, outputDirFlags...)
		args = append(args, inv.Dir)
	}

	res := &Result{Command: append([]string{r.program}, args...)}
	r.logger.Debug("run command", "cmd", res.CommandLine())

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, r.program, args...)
	cmd.Dir = r.workDir
	cmd.Stdout = &out
	cmd.Stderr = &out
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res.Output = DecodeOutput(out.Bytes())
	res.Duration = elapsed
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			res.ExitCode = -1
			return nil, &ExecutionError{Result: *res, Err: err}
		}
		res.ExitCode = exitErr.ExitCode()
	}

	r.logger.Debug("command finished",
		"exit_code", res.ExitCode,
		"duration", res.Duration,
		"output", res.Output,
	)

	if inv.Check && res.ExitCode != 0 {
		return res, &ExecutionError{Result: *res}
	}
	return res, nil
}

func (r *Runner) resolve(p string) string {
	if filepath.IsAbs(p) || r.workDir == "" {
		return p
	}
	return filepath.Join(r.workDir, p)
}
