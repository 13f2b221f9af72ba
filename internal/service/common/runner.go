//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/oshokin/snapup/internal/logger"
)

// ErrCommand is matched by every ExitError.
var ErrCommand = errors.New("command failed")

// ExitError reports an external program that could not run or exited non-zero.
type ExitError struct {
	// Command is the program and its arguments.
	Command string
	// ExitCode is the exit status, or -1 when the program never ran.
	ExitCode int
	// Err is the underlying exec error.
	Err error
}

// Error implements error.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d: %v", e.Command, e.ExitCode, e.Err)
}

// Unwrap exposes ErrCommand and the exec error.
func (e *ExitError) Unwrap() []error {
	return []error{ErrCommand, e.Err}
}

// Runner runs external programs synchronously.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs programs with os/exec on the given standard streams.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner attaches programs to the process's own terminal.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run starts name and waits for it.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	command := strings.Join(append([]string{name}, args...), " ")

	logger.DebugKV(ctx, "Running command", "command", command)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return &ExitError{Command: command, ExitCode: exitCode, Err: err}
	}

	return nil
}
