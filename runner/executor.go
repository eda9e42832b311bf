package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

var _ CommandExecutor = (*ProcessExecutor)(nil)

// CommandExecutor starts an external command and waits for it to exit.
// The returned exit code is only meaningful when err is nil; err is reserved for
// commands that could not be started or whose exit status could not be determined.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd Command) (int, error)
}

// ProcessExecutor runs commands as child processes of the current process.
type ProcessExecutor struct{}

// NewProcessExecutor creates a new process executor
func NewProcessExecutor() *ProcessExecutor {
	return &ProcessExecutor{}
}

// Execute runs cmd synchronously. Unset streams are inherited from the current
// process so the operator sees the output live. The context is only checked before
// the process starts: a running attempt is never killed by the orchestrator.
func (e *ProcessExecutor) Execute(ctx context.Context, cmd Command) (int, error) {
	if err := ctx.Err(); err != nil {
		return exitCodeNotStarted, err
	}

	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdin = readerOr(cmd.Stdin, os.Stdin)
	c.Stdout = writerOr(cmd.Stdout, os.Stdout)
	c.Stderr = writerOr(cmd.Stderr, os.Stderr)

	err := c.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed by a signal: ExitCode reports -1, which is still a failure
		if code := exitErr.ExitCode(); code != -1 {
			return code, nil
		}
		return exitCodeNotStarted, fmt.Errorf("command %q terminated: %w", cmd.Name, err)
	}
	return exitCodeNotStarted, fmt.Errorf("failed to run %q: %w", cmd.Name, err)
}

func readerOr(r io.Reader, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func writerOr(w io.Writer, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}

// Output is the pair of writers one invocation streams to
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
	closer func() error
}

// NewOutput creates an Output; closer may be nil
func NewOutput(stdout, stderr io.Writer, closer func() error) *Output {
	return &Output{Stdout: stdout, Stderr: stderr, closer: closer}
}

// Close flushes and releases anything the writers hold
func (o *Output) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer()
}

// OutputFactory provides the writers for a named invocation such as "attempt-1"
type OutputFactory interface {
	Output(name string) (*Output, error)
}

// InheritedOutput streams every invocation straight to the process's stdout and stderr
type InheritedOutput struct{}

func (InheritedOutput) Output(string) (*Output, error) {
	return NewOutput(os.Stdout, os.Stderr, nil), nil
}
