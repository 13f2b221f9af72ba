package extract

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
)

type entry struct {
	header tar.Header
	body   string
}

func writeArchive(t *testing.T, entries []entry) string {
	t.Helper()

	var buf bytes.Buffer

	gz := pgzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		header := e.header
		header.Size = int64(len(e.body))

		if header.ModTime.IsZero() {
			header.ModTime = time.Unix(1700000000, 0)
		}

		require.NoError(t, tw.WriteHeader(&header))

		if e.body != "" {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	archive := filepath.Join(t.TempDir(), "base105.tgz")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	return archive
}

// TestExtract unpacks directories, files and links with their modes.
func TestExtract(t *testing.T) {
	t.Parallel()

	mtime := time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC)
	archive := writeArchive(t, []entry{
		{header: tar.Header{Name: "./", Typeflag: tar.TypeDir, Mode: 0o755}},
		{header: tar.Header{Name: "./bin/", Typeflag: tar.TypeDir, Mode: 0o755}},
		{header: tar.Header{Name: "./bin/ksh", Typeflag: tar.TypeReg, Mode: 0o555, ModTime: mtime}, body: "new ksh"},
		{header: tar.Header{Name: "./bin/sh", Typeflag: tar.TypeLink, Linkname: "./bin/ksh"}},
		{header: tar.Header{Name: "./etc/examples/rc.conf", Typeflag: tar.TypeReg, Mode: 0o644, ModTime: mtime}, body: "rc"},
		{header: tar.Header{Name: "./usr/lib/libc.so", Typeflag: tar.TypeSymlink, Linkname: "libc.so.100.0"}},
		{header: tar.Header{Name: "../../escape", Typeflag: tar.TypeReg, Mode: 0o644}, body: "contained"},
	})

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "ksh"), []byte("old ksh"), 0o555))

	require.NoError(t, NewExtractor(root, WithSameOwner(false)).Extract(context.Background(), archive))

	data, err := os.ReadFile(filepath.Join(root, "bin", "ksh"))
	require.NoError(t, err)
	require.Equal(t, "new ksh", string(data))

	info, err := os.Stat(filepath.Join(root, "bin", "ksh"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o555), info.Mode().Perm())
	require.True(t, info.ModTime().Equal(mtime))

	linked, err := os.Stat(filepath.Join(root, "bin", "sh"))
	require.NoError(t, err)
	require.True(t, os.SameFile(info, linked))

	link, err := os.Readlink(filepath.Join(root, "usr", "lib", "libc.so"))
	require.NoError(t, err)
	require.Equal(t, "libc.so.100.0", link)

	require.FileExists(t, filepath.Join(root, "escape"))
	require.NoFileExists(t, filepath.Join(filepath.Dir(filepath.Dir(root)), "escape"))
}

// TestExtract_Corrupt reports ErrExtraction for data that is not a gzip tar.
func TestExtract_Corrupt(t *testing.T) {
	t.Parallel()

	archive := filepath.Join(t.TempDir(), "comp105.tgz")
	require.NoError(t, os.WriteFile(archive, []byte("not an archive"), 0o644))

	err := NewExtractor(t.TempDir()).Extract(context.Background(), archive)
	require.ErrorIs(t, err, ErrExtraction)
}

// TestExtract_Missing reports ErrExtraction for a missing archive.
func TestExtract_Missing(t *testing.T) {
	t.Parallel()

	err := NewExtractor(t.TempDir()).Extract(context.Background(), filepath.Join(t.TempDir(), "man105.tgz"))
	require.ErrorIs(t, err, ErrExtraction)
}

// TestExtract_SymlinkEscape refuses to write through links that leave the root.
func TestExtract_SymlinkEscape(t *testing.T) {
	t.Parallel()

	outside := t.TempDir()
	secret := filepath.Join(outside, "master.passwd")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o600))

	tests := []struct {
		name    string
		entries []entry
	}{
		{
			name: "file below absolute link",
			entries: []entry{
				{header: tar.Header{Name: "./var", Typeflag: tar.TypeSymlink, Linkname: outside}},
				{header: tar.Header{Name: "./var/pwned", Typeflag: tar.TypeReg, Mode: 0o644}, body: "pwned"},
			},
		},
		{
			name: "file below relative link",
			entries: []entry{
				{header: tar.Header{Name: "./var", Typeflag: tar.TypeSymlink, Linkname: "../../../../../../../../.." + outside}},
				{header: tar.Header{Name: "./var/pwned", Typeflag: tar.TypeReg, Mode: 0o644}, body: "pwned"},
			},
		},
		{
			name: "directory entry on link",
			entries: []entry{
				{header: tar.Header{Name: "./var", Typeflag: tar.TypeSymlink, Linkname: outside}},
				{header: tar.Header{Name: "./var/", Typeflag: tar.TypeDir, Mode: 0o777}},
			},
		},
		{
			name: "hard link through link",
			entries: []entry{
				{header: tar.Header{Name: "./etc", Typeflag: tar.TypeSymlink, Linkname: outside}},
				{header: tar.Header{Name: "./pwned", Typeflag: tar.TypeLink, Linkname: "./etc/master.passwd"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			archive := writeArchive(t, tt.entries)

			err := NewExtractor(root, WithSameOwner(false)).Extract(context.Background(), archive)
			require.ErrorIs(t, err, ErrExtraction)
			require.ErrorIs(t, err, ErrOutsideRoot)

			require.NoFileExists(t, filepath.Join(outside, "pwned"))
			require.NoFileExists(t, filepath.Join(root, "pwned"))

			info, err := os.Stat(outside)
			require.NoError(t, err)
			require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
		})
	}
}

// TestExtract_LinkInsideRoot follows links that stay below the root.
func TestExtract_LinkInsideRoot(t *testing.T) {
	t.Parallel()

	archive := writeArchive(t, []entry{
		{header: tar.Header{Name: "./usr/share/", Typeflag: tar.TypeDir, Mode: 0o755}},
		{header: tar.Header{Name: "./share", Typeflag: tar.TypeSymlink, Linkname: "usr/share"}},
		{header: tar.Header{Name: "./share/motd", Typeflag: tar.TypeReg, Mode: 0o644}, body: "hello"},
	})

	root := t.TempDir()
	require.NoError(t, NewExtractor(root, WithSameOwner(false)).Extract(context.Background(), archive))

	data, err := os.ReadFile(filepath.Join(root, "usr", "share", "motd"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

// TestExtract_IgnoresCancellation finishes a set that was started before ctx ended.
func TestExtract_IgnoresCancellation(t *testing.T) {
	t.Parallel()

	archive := writeArchive(t, []entry{
		{header: tar.Header{Name: "./bin/ksh", Typeflag: tar.TypeReg, Mode: 0o555}, body: "ksh"},
		{header: tar.Header{Name: "./bin/cat", Typeflag: tar.TypeReg, Mode: 0o555}, body: "cat"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := t.TempDir()
	require.NoError(t, NewExtractor(root, WithSameOwner(false)).Extract(ctx, archive))
	require.FileExists(t, filepath.Join(root, "bin", "ksh"))
	require.FileExists(t, filepath.Join(root, "bin", "cat"))
}
