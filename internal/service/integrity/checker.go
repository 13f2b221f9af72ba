package integrity

import (
	"context"
	"fmt"
	"os"

	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/service/signify"
)

// Fetcher retrieves a remote file into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, remoteURL, destDir string) (string, error)
}

// Checker verifies an executable against a detached signify signature.
type Checker struct {
	keyPath      string
	fetcher      Fetcher
	signatureURL string
}

// NewChecker verifies with the key at keyPath. When no local signature is
// supplied, one is fetched from signatureURL.
func NewChecker(keyPath string, fetcher Fetcher, signatureURL string) *Checker {
	return &Checker{
		keyPath:      keyPath,
		fetcher:      fetcher,
		signatureURL: signatureURL,
	}
}

// CheckSelf verifies executablePath. sigPath may be empty.
func (c *Checker) CheckSelf(ctx context.Context, executablePath, sigPath string) error {
	ctx = logger.WithName(ctx, "integrity")

	if sigPath == "" {
		tmp, err := os.MkdirTemp("", "snapup-integrity-")
		if err != nil {
			return fmt.Errorf("create temporary directory: %w", err)
		}

		defer func() {
			_ = os.RemoveAll(tmp)
		}()

		sigPath, err = c.fetcher.Fetch(ctx, c.signatureURL, tmp)
		if err != nil {
			return fmt.Errorf("fetch signature: %w", err)
		}
	}

	logger.InfoKV(ctx, "Checking executable signature",
		"executable", executablePath, "signature", sigPath, "key", c.keyPath)

	if err := signify.VerifyDetached(c.keyPath, sigPath, executablePath); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}

	logger.Info(ctx, "Executable signature is valid")

	return nil
}
