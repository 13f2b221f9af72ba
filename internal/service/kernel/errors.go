package kernel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCopy is matched by every CopyError.
	ErrCopy = errors.New("kernel file copy failed")
	// ErrBackup marks failures that happened before any kernel file was replaced.
	ErrBackup = errors.New("kernel backup failed")
)

// PathPair is one copy from From to To, both relative to the root.
type PathPair struct {
	From string
	To   string
}

// String renders the pair as "from -> to".
func (p PathPair) String() string {
	return p.From + " -> " + p.To
}

// Inverse swaps the copy direction.
func (p PathPair) Inverse() PathPair {
	return PathPair{From: p.To, To: p.From}
}

// CopyError lists the copies that failed in one operation.
type CopyError struct {
	// Op is "backup", "rollback" or "install".
	Op string
	// Failed are the pairs that could not be copied.
	Failed []PathPair
	// Err aggregates the per-pair failures.
	Err error
}

// Error implements error.
func (e *CopyError) Error() string {
	failed := make([]string, 0, len(e.Failed))
	for _, pair := range e.Failed {
		failed = append(failed, pair.String())
	}

	return fmt.Sprintf("%s: %v: %s: %v", e.Op, ErrCopy, strings.Join(failed, ", "), e.Err)
}

// Unwrap exposes ErrCopy and the per-pair failures.
func (e *CopyError) Unwrap() []error {
	return []error{ErrCopy, e.Err}
}
