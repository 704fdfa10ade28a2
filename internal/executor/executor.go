// ABOUTME: Code-execution collaborator that runs tool code through an interpreter
// ABOUTME: Subprocess feeds code on stdin and reports stdout plus the final line

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single execution.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxOutput caps each of stdout and stderr.
	DefaultMaxOutput = 1 << 20
)

var (
	// ErrNoInterpreter indicates no interpreter command is configured.
	ErrNoInterpreter = errors.New("no interpreter configured")
	// ErrOutputLimit indicates the interpreter printed more than the cap
	// and was stopped.
	ErrOutputLimit = errors.New("output limit exceeded")
)

// Options controls what an execution reports back.
type Options struct {
	// Quiet drops the printed output but keeps the result value.
	Quiet bool
	// Silent drops both output and value.
	Silent bool
}

// Result is what an execution produced.
type Result struct {
	Output string
	Value  string
}

// Executor runs code strings.
type Executor interface {
	Execute(ctx context.Context, code string, opts Options) (Result, error)
}

// ExecError is returned when the interpreter exits unsuccessfully.
type ExecError struct {
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("interpreter exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("interpreter exited with status %d: %s", e.ExitCode, msg)
}

// SubprocessConfig contains configuration options for Subprocess.
type SubprocessConfig struct {
	Command []string // interpreter argv, e.g. ["python3", "-"]
	Dir     string
	Env     []string
	Timeout time.Duration
	// MaxOutput caps stdout and stderr separately, in bytes.
	MaxOutput int
	Logger    *slog.Logger
}

// Subprocess runs each execution in a fresh interpreter process.
type Subprocess struct {
	argv    []string
	dir     string
	env     []string
	timeout   time.Duration
	maxOutput int
	logger    *slog.Logger
}

// NewSubprocess creates a Subprocess executor.
func NewSubprocess(cfg SubprocessConfig) (*Subprocess, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, ErrNoInterpreter
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOutput := cfg.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Subprocess{
		argv:      append([]string(nil), cfg.Command...),
		dir:       cfg.Dir,
		env:       cfg.Env,
		timeout:   timeout,
		maxOutput: maxOutput,
		logger:    logger,
	}, nil
}

// Execute runs code and returns its output. The value is the last non-empty
// line the interpreter printed.
func (s *Subprocess) Execute(ctx context.Context, code string, opts Options) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.Dir = s.dir
	if len(s.env) > 0 {
		cmd.Env = s.env
	}
	cmd.Stdin = strings.NewReader(code)
	// Children of the interpreter may hold the pipes open after a kill.
	cmd.WaitDelay = time.Second
	stdout := &cappedBuffer{limit: s.maxOutput, onOverflow: cancel}
	stderr := &cappedBuffer{limit: s.maxOutput, onOverflow: cancel}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	s.logger.Debug("execution finished",
		"interpreter", s.argv[0],
		"duration", time.Since(start),
		"error", err,
	)

	if stdout.overflowed || stderr.overflowed {
		return Result{}, fmt.Errorf("%w (%d bytes)", ErrOutputLimit, s.maxOutput)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("execution aborted: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, &ExecError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return Result{}, fmt.Errorf("starting interpreter: %w", err)
	}

	out := stdout.String()
	res := Result{Output: out, Value: lastLine(out)}
	switch {
	case opts.Silent:
		res = Result{}
	case opts.Quiet:
		res.Output = ""
	}
	return res, nil
}

// cappedBuffer keeps at most limit bytes and calls onOverflow once when more
// arrive. Writes never fail so the interpreter is not killed by a broken pipe
// before onOverflow stops it.
type cappedBuffer struct {
	buf        bytes.Buffer
	limit      int
	overflowed bool
	onOverflow func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.overflowed {
		return len(p), nil
	}
	if room := b.limit - b.buf.Len(); len(p) > room {
		b.buf.Write(p[:room])
		b.overflowed = true
		if b.onOverflow != nil {
			b.onOverflow()
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimRight(lines[i], "\r"); strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
