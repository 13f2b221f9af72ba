package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/snapup/internal/domain/release"
)

func testSystem(home string) System {
	return System{Release: "10.5", Machine: "amd64", CPUs: 4, Home: home}
}

// TestResolveDefaults checks the configuration produced without a file or flags.
func TestResolveDefaults(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	cfg, err := Resolve(context.Background(), nil, Flags{Root: root}, testSystem("/home/op"))
	require.NoError(t, err)

	require.Equal(t, ModeFull, cfg.Mode)
	require.Equal(t, KernelAuto, cfg.KernelVariant)
	require.True(t, cfg.VerifySignatures)
	require.True(t, cfg.BackupKernel)
	require.True(t, cfg.IncludeExtended)
	require.Equal(t, filepath.Join(root, DefaultDest), cfg.Dest)
	require.Equal(t, "/home/op/"+MarkerFilename, cfg.MarkerPath())
	require.Equal(t, release.Target{
		Scheme: "https", Mirror: DefaultMirror, Channel: "10.5", Machine: "amd64", Version: "10.5",
	}, cfg.Target)
	require.True(t, cfg.Kernel.HasMP())
	require.Equal(t, 4, cfg.CPUs)
}

// TestResolveFileAndFlags applies file values and lets flags win.
func TestResolveFileAndFlags(t *testing.T) {
	t.Parallel()

	values := map[string]string{
		KeyMirror:      "http://mirror.example.net/pub/OpenBSD",
		KeyDest:        "/var/tmp/snap",
		KeyNoX11:       "yes",
		KeyMerge:       "true",
		KeyInstallBoot: "sd0",
		KeyAfter:       "false",
		KeyFTPOptions:  "-V -C",
		KeyInsUpdate:   "1",
		"BOGUS":        "x",
	}
	flags := Flags{
		Root:           t.TempDir(),
		Mirror:         "example.org",
		ForceSnapshot:  true,
		SetVersion:     "10.6",
		KernelOnly:     true,
		ForceSP:        true,
		NoBackupDevice: true,
	}

	cfg, err := Resolve(context.Background(), values, flags, testSystem(t.TempDir()))
	require.NoError(t, err)

	require.Equal(t, "example.org", cfg.Target.Mirror)
	require.Equal(t, "https", cfg.Target.Scheme)
	require.Equal(t, release.ChannelSnapshots, cfg.Target.Channel)
	require.Equal(t, "10.6", cfg.Target.Version)
	require.Equal(t, ModeKernelOnly, cfg.Mode)
	require.Equal(t, KernelForceSP, cfg.KernelVariant)
	require.Equal(t, "/var/tmp/snap", cfg.Dest)
	require.False(t, cfg.IncludeExtended)
	require.True(t, cfg.Merge)
	require.Empty(t, cfg.InstallBoot)
	require.Empty(t, cfg.After)
	require.Equal(t, []string{"-V", "-C"}, cfg.TransferOptions)
	require.True(t, cfg.InstallUpdate)
	require.True(t, cfg.CheckUpdate)
	require.True(t, cfg.UpdateOnly())
}

// TestResolveInstallURL falls back to /etc/installurl under the root.
func TestResolveInstallURL(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, InstallURLPath),
		[]byte("http://ftp.example.com/pub/OpenBSD\n"), 0o644))

	cfg, err := Resolve(context.Background(), nil, Flags{Root: root}, testSystem(root))
	require.NoError(t, err)
	require.Equal(t, "http", cfg.Target.Scheme)
	require.Equal(t, "ftp.example.com", cfg.Target.Mirror)
}

// TestCheckConflicts rejects mutually exclusive modes before any I/O.
func TestCheckConflicts(t *testing.T) {
	t.Parallel()

	err := CheckConflicts(Flags{KernelOnly: true, SetsOnly: true}, nil)
	require.ErrorIs(t, err, ErrConflict)

	err = CheckConflicts(Flags{DownloadOnly: true}, map[string]string{KeyExtractOnly: "yes"})
	require.ErrorIs(t, err, ErrConflict)

	err = CheckConflicts(Flags{ForceMP: true, ForceSP: true}, nil)
	require.ErrorIs(t, err, ErrConflict)

	require.NoError(t, CheckConflicts(Flags{KernelOnly: true, DownloadOnly: true}, nil))

	_, err = Resolve(context.Background(), nil, Flags{KernelOnly: true, SetsOnly: true}, System{})
	require.ErrorIs(t, err, ErrConflict)
}

// TestResolveErrors covers unusable values.
func TestResolveErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := Resolve(context.Background(), map[string]string{KeyMerge: "maybe"}, Flags{Root: root}, testSystem(root))
	require.ErrorIs(t, err, errBadBool)

	_, err = Resolve(context.Background(), nil, Flags{Root: root}, System{Machine: "amd64"})
	require.ErrorIs(t, err, errNoVersion)

	_, err = Resolve(context.Background(), nil, Flags{Root: root, Mirror: "http://"}, testSystem(root))
	require.ErrorIs(t, err, errBadMirror)

	for _, key := range []string{KeyInstallBoot, KeyAfter} {
		for _, value := range []string{"true", "yes", "1"} {
			_, err = Resolve(context.Background(), map[string]string{key: value}, Flags{Root: root}, testSystem(root))
			require.ErrorIs(t, err, errNotPath, "%s=%s", key, value)
		}
	}
}

// TestParseMirror accepts hosts and URLs.
func TestParseMirror(t *testing.T) {
	t.Parallel()

	scheme, host, err := ParseMirror("example.org")
	require.NoError(t, err)
	require.Equal(t, "https", scheme)
	require.Equal(t, "example.org", host)

	scheme, host, err = ParseMirror("http://127.0.0.1:8080/some/path")
	require.NoError(t, err)
	require.Equal(t, "http", scheme)
	require.Equal(t, "127.0.0.1:8080", host)

	_, _, err = ParseMirror("  ")
	require.ErrorIs(t, err, errBadMirror)
}
