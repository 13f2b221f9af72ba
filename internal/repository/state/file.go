package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Repository persists the identifier of the last applied build.
type Repository interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, build string) error
}

// FileRepository keeps the last applied build in a one-line text file.
type FileRepository struct {
	// path is the filesystem location of the marker file.
	path string
	// mu serialises access to the marker file.
	mu sync.Mutex
}

// ErrNotFound is returned when no build has been recorded yet.
var ErrNotFound = errors.New("last upgrade marker not found")

// markerFileMode keeps the marker readable by the operator only.
const markerFileMode os.FileMode = 0o600

// NewFileRepository creates a repository for the marker at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the marker location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load returns the recorded build identifier.
func (r *FileRepository) Load(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("read last upgrade marker: %w", err)
	}

	build := strings.TrimSpace(string(contents))
	if build == "" {
		return "", ErrNotFound
	}

	return build, nil
}

// Save records build, replacing the previous marker atomically.
func (r *FileRepository) Save(_ context.Context, build string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeAtomic(r.path, []byte(strings.TrimSpace(build)+"\n"), markerFileMode)
}

// writeAtomic writes data to a temporary sibling of path and renames it into place.
func writeAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err = os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}

	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}

	return nil
}
