//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when interactive mode is requested without a terminal.
var ErrNotTerminal = errors.New("interactive mode needs a terminal on stdin")

// Prompter asks the operator yes/no questions.
type Prompter struct {
	out     io.Writer
	scanner *bufio.Scanner
}

// NewPrompter creates a prompter on stdin/stderr.
// It fails when stdin is not a terminal.
func NewPrompter() (*Prompter, error) {
	if !IsTerminal() {
		return nil, ErrNotTerminal
	}

	return NewPrompterWithIO(os.Stdin, os.Stderr), nil
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec // File descriptors fit in int.
}

// Confirm prints question and returns true only for an explicit yes.
// End of input and anything else count as no.
func (p *Prompter) Confirm(question string) bool {
	_, _ = fmt.Fprintf(p.out, "%s [y/N] ", question)

	if !p.scanner.Scan() {
		_, _ = fmt.Fprintln(p.out)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(p.scanner.Text())) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
