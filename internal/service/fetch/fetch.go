package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/oshokin/snapup/internal/logger"
)

// dirMode is used when the download directory does not exist yet.
const dirMode os.FileMode = 0o755

// Fetcher retrieves remote files into a directory, at most once per name.
type Fetcher struct {
	transferer Transferer
}

// New creates a Fetcher over transferer.
func New(transferer Transferer) *Fetcher {
	return &Fetcher{transferer: transferer}
}

// FileName returns the base name a remote URL is stored under.
func FileName(remoteURL string) (string, error) {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", remoteURL, err)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("%q: %w", remoteURL, errNoFileName)
	}

	return name, nil
}

// Fetch downloads remoteURL into destDir and returns the local path.
// A file already present under the same name is kept and nothing is transferred.
func (f *Fetcher) Fetch(ctx context.Context, remoteURL, destDir string) (string, error) {
	name, err := FileName(remoteURL)
	if err != nil {
		return "", err
	}

	final := filepath.Join(destDir, name)

	if _, err = os.Lstat(final); err == nil {
		logger.DebugKV(ctx, "Already fetched", "file", final)
		return final, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", final, err)
	}

	if err = os.MkdirAll(destDir, dirMode); err != nil {
		return "", fmt.Errorf("create %s: %w", destDir, err)
	}

	tmp, err := os.CreateTemp(destDir, "."+name+".part-*")
	if err != nil {
		return "", fmt.Errorf("create temporary file: %w", err)
	}

	tmpName := tmp.Name()

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", tmpName, err)
	}

	logger.InfoKV(ctx, "Fetching", "url", remoteURL)

	if err = f.transferer.Transfer(ctx, remoteURL, tmpName); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}

	if err = os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // Release artifacts are world readable.
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("chmod %s: %w", tmpName, err)
	}

	if err = os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename %s: %w", final, err)
	}

	return final, nil
}

// Refresh removes any local copy of remoteURL and fetches it again.
func (f *Fetcher) Refresh(ctx context.Context, remoteURL, destDir string) (string, error) {
	name, err := FileName(remoteURL)
	if err != nil {
		return "", err
	}

	if err = os.Remove(filepath.Join(destDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove stale %s: %w", name, err)
	}

	return f.Fetch(ctx, remoteURL, destDir)
}
