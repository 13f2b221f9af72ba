package kernel

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const tempSuffix = ".snapup-tmp"

// copyFile copies src on srcFs to dst on dstFs through a temporary sibling of dst.
func copyFile(srcFs afero.Fs, src string, dstFs afero.Fs, dst string) error {
	in, err := srcFs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}

	defer func() {
		_ = in.Close()
	}()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	return writeFile(dstFs, dst, info.Mode().Perm(), func(w io.Writer) error {
		_, copyErr := io.Copy(w, in)
		return copyErr
	})
}

// writeFile creates dst atomically with the contents produced by fill.
func writeFile(fs afero.Fs, dst string, mode os.FileMode, fill func(io.Writer) error) error {
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	tmp := dst + tempSuffix

	out, err := fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	if err = fill(out); err != nil {
		_ = out.Close()
		_ = fs.Remove(tmp)

		return fmt.Errorf("write %s: %w", tmp, err)
	}

	if err = out.Close(); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err = fs.Chmod(tmp, mode); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}

	if err = fs.Rename(tmp, dst); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", dst, err)
	}

	return nil
}
