package fetch

import (
	"errors"
	"fmt"
)

// ErrTransfer is matched by every TransferError.
var ErrTransfer = errors.New("transfer failed")

var errNoFileName = errors.New("url has no file name")

// TransferError describes a failed remote fetch.
type TransferError struct {
	// URL is the remote location.
	URL string
	// Status is the HTTP status, or 0 when the transfer did not get a response.
	Status int
	// ExitCode is the exit status of the transfer program, or 0 for HTTP transfers.
	ExitCode int
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *TransferError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	case e.ExitCode != 0:
		return fmt.Sprintf("fetch %s: transfer exited with status %d", e.URL, e.ExitCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

// Unwrap exposes ErrTransfer and the cause.
func (e *TransferError) Unwrap() []error {
	return []error{ErrTransfer, e.Err}
}
