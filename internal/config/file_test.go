package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestReadFileRC parses KEY=value files with comments and quotes.
func TestReadFileRC(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".snapuprc")
	contents := "# snapup settings\nMIRROR=\"example.org\"\nexport merge=yes\nFTP_OPTS='-V'\nDST=/tmp/x # scratch\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	values, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"MIRROR":   "example.org",
		"MERGE":    "yes",
		"FTP_OPTS": "-V",
		"DST":      "/tmp/x",
	}, values)
}

// TestReadFileRCQuoting keeps escaped quotes, spaces and trailing comments apart.
func TestReadFileRCQuoting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".snapuprc")
	contents := "MOTD=\"say \\\"hi\\\"\" # greeting\nMIRROR=\"cdn.openbsd.org\" # closest\nFTP_OPTS=-V -4\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	values, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"MOTD":     `say "hi"`,
		"MIRROR":   "cdn.openbsd.org",
		"FTP_OPTS": "-V -4",
	}, values)
}

// TestReadFileRCBadLine rejects lines without an assignment.
func TestReadFileRCBadLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapup.conf")
	require.NoError(t, os.WriteFile(path, []byte("MIRROR\n"), 0o600))

	_, err := ReadFile(path)
	require.ErrorIs(t, err, errBadLine)
}

// TestReadFileYAMLAndTOML reads flat tables in both structured formats.
func TestReadFileYAMLAndTOML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "snapup.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("mirror: example.org\nreboot: true\n"), 0o600))

	values, err := ReadFile(yamlPath)
	require.NoError(t, err)
	require.Equal(t, "example.org", values["MIRROR"])
	require.Equal(t, "true", values["REBOOT"])

	tomlPath := filepath.Join(dir, "snapup.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("MIRROR = \"example.net\"\nNO_X11 = true\n"), 0o600))

	values, err = ReadFile(tomlPath)
	require.NoError(t, err)
	require.Equal(t, "example.net", values["MIRROR"])
	require.Equal(t, "true", values["NO_X11"])
}

// TestLoadMissing tolerates a missing default file but not an explicit one.
func TestLoadMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent")

	values, err := Load(path, false)
	require.NoError(t, err)
	require.Empty(t, values)

	_, err = Load(path, true)
	require.ErrorIs(t, err, os.ErrNotExist)
}
