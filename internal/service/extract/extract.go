package extract

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"

	"github.com/oshokin/snapup/internal/logger"
)

var (
	// ErrExtraction is matched by every failure to unpack a set.
	ErrExtraction = errors.New("extraction failed")

	// ErrOutsideRoot is returned for an entry that would be written through a
	// symbolic link leading outside the root.
	ErrOutsideRoot = errors.New("path resolves outside root")
)

const dirMode os.FileMode = 0o755

// Extractor unpacks archives below root.
type Extractor struct {
	root      string
	sameOwner bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSameOwner controls whether ownership from the archive is applied.
func WithSameOwner(sameOwner bool) Option {
	return func(e *Extractor) {
		e.sameOwner = sameOwner
	}
}

// NewExtractor extracts onto root, keeping ownership when running as root.
func NewExtractor(root string, opts ...Option) *Extractor {
	e := &Extractor{
		root:      root,
		sameOwner: os.Geteuid() == 0,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Extract streams archivePath onto the root filesystem.
// On failure the files written so far stay in place. Once started, a set is
// unpacked to the end even if ctx is cancelled.
func (e *Extractor) Extract(ctx context.Context, archivePath string) error {
	logger.InfoKV(ctx, "Extracting", "archive", filepath.Base(archivePath), "root", e.root)

	realRoot, err := filepath.EvalSymlinks(e.root)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", archivePath, ErrExtraction, err)
	}

	file, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("%s: %w: %w", archivePath, ErrExtraction, err)
	}

	defer func() {
		_ = file.Close()
	}()

	gz, err := pgzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", archivePath, ErrExtraction, err)
	}

	defer func() {
		_ = gz.Close()
	}()

	entries, err := e.extractAll(ctx, realRoot, tar.NewReader(gz))
	if err != nil {
		return fmt.Errorf("%s: %w: %w", archivePath, ErrExtraction, err)
	}

	logger.DebugKV(ctx, "Extracted", "archive", filepath.Base(archivePath), "entries", entries)

	return nil
}

func (e *Extractor) extractAll(ctx context.Context, realRoot string, reader *tar.Reader) (int, error) {
	entries := 0

	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}

		if err != nil {
			return entries, fmt.Errorf("read header: %w", err)
		}

		if err = e.extractEntry(ctx, realRoot, header, reader); err != nil {
			return entries, fmt.Errorf("%s: %w", header.Name, err)
		}

		entries++
	}
}

// target maps an archive name to a path below root. Cleaning the name as an
// absolute path drops any leading "..".
func (e *Extractor) target(name string) string {
	return filepath.Join(e.root, filepath.FromSlash(path.Clean("/"+name)))
}

// confine resolves the deepest existing ancestor of p, p included, and fails
// when it lies outside realRoot. Absolute symbolic links below an alternate
// root resolve against the host and are rejected.
func confine(realRoot, p string) error {
	for dir := p; ; dir = filepath.Dir(dir) {
		if _, err := os.Lstat(dir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			if parent := filepath.Dir(dir); parent != dir {
				continue
			}

			return err
		}

		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return err
		}

		if !within(realRoot, resolved) {
			return fmt.Errorf("%s: %w", p, ErrOutsideRoot)
		}

		return nil
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

//nolint:cyclop // One branch per tar entry type.
func (e *Extractor) extractEntry(ctx context.Context, realRoot string, header *tar.Header, body io.Reader) error {
	target := e.target(header.Name)
	if target == filepath.Clean(e.root) {
		return nil
	}

	mode := header.FileInfo().Mode()

	// Directories are chmodded in place, so the entry itself must stay inside.
	guarded := filepath.Dir(target)
	if header.Typeflag == tar.TypeDir {
		guarded = target
	}

	if err := confine(realRoot, guarded); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return err
	}

	switch header.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, dirMode); err != nil {
			return err
		}
	case tar.TypeReg:
		if err := writeRegular(target, body); err != nil {
			return err
		}
	case tar.TypeSymlink:
		if err := replace(target, func() error { return os.Symlink(header.Linkname, target) }); err != nil {
			return err
		}

		return e.chown(target, header)
	case tar.TypeLink:
		source := e.target(header.Linkname)
		if err := confine(realRoot, source); err != nil {
			return err
		}

		if err := replace(target, func() error { return os.Link(source, target) }); err != nil {
			return err
		}

		return nil
	case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
		if err := replace(target, func() error { return makeNode(target, header) }); err != nil {
			return err
		}
	default:
		logger.DebugKV(ctx, "Skipping unsupported entry", "name", header.Name, "type", string(header.Typeflag))
		return nil
	}

	if err := e.chown(target, header); err != nil {
		return err
	}

	// chmod after chown: chown clears set-id bits.
	if err := os.Chmod(target, mode&(os.ModePerm|os.ModeSetuid|os.ModeSetgid|os.ModeSticky)); err != nil {
		return err
	}

	return os.Chtimes(target, header.ModTime, header.ModTime)
}

func (e *Extractor) chown(target string, header *tar.Header) error {
	if !e.sameOwner {
		return nil
	}

	return os.Lchown(target, header.Uid, header.Gid)
}

// writeRegular writes body to a temporary sibling and renames it over target.
func writeRegular(target string, body io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".snapup-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err = io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err = os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return nil
}

// replace removes a non-directory at target and then calls create.
func replace(target string, create func() error) error {
	if info, err := os.Lstat(target); err == nil && !info.IsDir() {
		if err = os.Remove(target); err != nil {
			return err
		}
	}

	return create()
}
