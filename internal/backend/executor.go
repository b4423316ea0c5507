package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// killGrace bounds how long Wait keeps reading pipes after the process was killed.
const killGrace = 2 * time.Second

// CommandRunner is the interface for running commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)
}

// ExecCommandRunner uses os/exec. The process is killed when ctx ends.
type ExecCommandRunner struct{}

// Run runs a command.
func (ExecCommandRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.WaitDelay = killGrace

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// ExitError reports a command that ran and failed. It matches ErrSynthesisFailed.
type ExitError struct {
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", ErrSynthesisFailed, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", ErrSynthesisFailed, e.Err, e.Stderr)
}

// Unwrap exposes both the sentinel and the underlying process error.
func (e *ExitError) Unwrap() []error {
	return []error{ErrSynthesisFailed, e.Err}
}

// Executor runs commands.
type Executor struct {
	runner     CommandRunner
	binaryPath string
	timeout    time.Duration
}

// NewExecutor creates an executor. binaryPath may be a bare name looked up in PATH.
func NewExecutor(binaryPath string, timeout time.Duration) (*Executor, error) {
	resolved, err := exec.LookPath(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("binary not found: %w", err)
	}

	return &Executor{
		binaryPath: resolved,
		timeout:    timeout,
		runner:     ExecCommandRunner{},
	}, nil
}

// NewExecutorWithRunner creates an executor with a custom runner.
func NewExecutorWithRunner(binaryPath string, timeout time.Duration, runner CommandRunner) *Executor {
	return &Executor{
		binaryPath: binaryPath,
		timeout:    timeout,
		runner:     runner,
	}
}

// Execute runs the command and returns output. A command still running when
// the budget expires is killed and ErrTimeout is returned. A non-zero exit
// yields an *ExitError carrying stderr.
func (e *Executor) Execute(ctx context.Context, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	stdout, stderr, err = e.runner.Run(ctx, e.binaryPath, args, stdin)
	if err == nil {
		return stdout, stderr, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return stdout, stderr, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return stdout, stderr, fmt.Errorf("command canceled: %w", ctx.Err())
	default:
		return stdout, stderr, &ExitError{Err: err, Stderr: strings.TrimSpace(string(stderr))}
	}
}
