package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oshokin/snapup/internal/service/common"
)

// Transferer copies one remote object to a local file, replacing its contents.
type Transferer interface {
	Transfer(ctx context.Context, url, dst string) error
}

// HTTPTransferer downloads with the shared HTTP client.
type HTTPTransferer struct {
	client *common.Client
}

// NewHTTPTransferer creates a transferer over client.
func NewHTTPTransferer(client *common.Client) *HTTPTransferer {
	return &HTTPTransferer{client: client}
}

// Transfer implements Transferer.
func (t *HTTPTransferer) Transfer(ctx context.Context, url, dst string) error {
	body, err := t.client.Open(ctx, url)
	if err != nil {
		transferErr := &TransferError{URL: url, Err: err}

		var statusErr *common.StatusError
		if errors.As(err, &statusErr) {
			transferErr.Status = statusErr.StatusCode
		}

		return transferErr
	}

	defer func() {
		_ = body.Close()
	}()

	file, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec // Release artifacts are world readable.
	if err != nil {
		return fmt.Errorf("open %s: %w", dst, err)
	}

	if _, err = io.Copy(file, body); err != nil {
		_ = file.Close()
		return &TransferError{URL: url, Err: err}
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}

	return nil
}

// DefaultTransferProgram is the OpenBSD file transfer client.
const DefaultTransferProgram = "ftp"

// CommandTransferer shells out to ftp(1) with the operator's options.
type CommandTransferer struct {
	runner  common.Runner
	program string
	options []string
}

// NewCommandTransferer runs DefaultTransferProgram with options before "-o dst url".
func NewCommandTransferer(runner common.Runner, options []string) *CommandTransferer {
	return &CommandTransferer{
		runner:  runner,
		program: DefaultTransferProgram,
		options: options,
	}
}

// Transfer implements Transferer.
func (t *CommandTransferer) Transfer(ctx context.Context, url, dst string) error {
	args := make([]string, 0, len(t.options)+3) //nolint:mnd // "-o", dst and url.
	args = append(args, t.options...)
	args = append(args, "-o", dst, url)

	if err := t.runner.Run(ctx, t.program, args...); err != nil {
		transferErr := &TransferError{URL: url, Err: err, ExitCode: -1}

		var exitErr *common.ExitError
		if errors.As(err, &exitErr) {
			transferErr.ExitCode = exitErr.ExitCode
		}

		return transferErr
	}

	return nil
}
