package signify

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testKey struct {
	num     KeyNum
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

func newTestKey(t *testing.T, num byte) testKey {
	t.Helper()

	public, private, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	return testKey{num: KeyNum{num, 1, 2, 3, 4, 5, 6, 7}, public: public, private: private}
}

func sum(data string) string {
	digest := sha256.Sum256([]byte(data))

	return hex.EncodeToString(digest[:])
}

// writeRelease lays out root/etc/signify/<key> and dest/{files,SHA256.sig}.
func writeRelease(t *testing.T, signer, installed testKey, files map[string]string) (string, string) {
	t.Helper()

	root := t.TempDir()
	dest := filepath.Join(root, "home", "_snapup")

	keyDir := filepath.Join(root, KeyDir)
	require.NoError(t, os.MkdirAll(keyDir, 0o755))
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(keyDir, "openbsd-105-base.pub"),
		FormatPublicKey("openbsd 10.5 base public key", installed.num, installed.public),
		0o644,
	))

	names := make([]string, 0, len(files))
	sums := make(map[string]string, len(files))

	for name, contents := range files {
		names = append(names, name)
		sums[name] = sum(contents)
		require.NoError(t, os.WriteFile(filepath.Join(dest, name), []byte(contents), 0o644))
	}

	manifest := SignEmbedded("verify with openbsd-105-base.pub", signer.num, signer.private, FormatManifest(names, sums))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "SHA256.sig"), manifest, 0o644))

	return root, dest
}

// TestVerify_Valid accepts files listed with matching checksums.
func TestVerify_Valid(t *testing.T) {
	t.Parallel()

	key := newTestKey(t, 1)
	root, dest := writeRelease(t, key, key, map[string]string{"bsd": "kernel", "base105.tgz": "base"})

	err := NewVerifier(root).Verify(context.Background(), []string{
		filepath.Join(dest, "bsd"),
		filepath.Join(dest, "base105.tgz"),
	}, "10.5")
	require.NoError(t, err)
}

// TestVerify_NoKey reports a missing per-release key.
func TestVerify_NoKey(t *testing.T) {
	t.Parallel()

	key := newTestKey(t, 1)
	root, dest := writeRelease(t, key, key, map[string]string{"bsd": "kernel"})

	err := NewVerifier(root).Verify(context.Background(), []string{filepath.Join(dest, "bsd")}, "10.6")
	require.ErrorIs(t, err, ErrNoPublicKey)
}

// TestVerify_Mismatch fails the batch and names every bad file.
func TestVerify_Mismatch(t *testing.T) {
	t.Parallel()

	key := newTestKey(t, 1)
	root, dest := writeRelease(t, key, key, map[string]string{"bsd": "kernel", "comp105.tgz": "comp", "man105.tgz": "man"})

	require.NoError(t, os.WriteFile(filepath.Join(dest, "comp105.tgz"), []byte("tampered"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "game105.tgz"), []byte("unlisted"), 0o644))

	err := NewVerifier(root).Verify(context.Background(), []string{
		filepath.Join(dest, "bsd"),
		filepath.Join(dest, "comp105.tgz"),
		filepath.Join(dest, "game105.tgz"),
		filepath.Join(dest, "man105.tgz"),
	}, "10.5")
	require.ErrorIs(t, err, ErrSignatureInvalid)

	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, []string{"comp105.tgz", "game105.tgz"}, mismatch.Files)
	require.ErrorIs(t, err, errBadChecksum)
	require.ErrorIs(t, err, errNotListed)
}

// TestVerify_WrongKey rejects a manifest signed by another key.
func TestVerify_WrongKey(t *testing.T) {
	t.Parallel()

	root, dest := writeRelease(t, newTestKey(t, 1), newTestKey(t, 2), map[string]string{"bsd": "kernel"})

	err := NewVerifier(root).Verify(context.Background(), []string{filepath.Join(dest, "bsd")}, "10.5")
	require.ErrorIs(t, err, ErrSignatureInvalid)
	require.ErrorIs(t, err, errWrongKey)
}

// TestVerify_ForgedSignature rejects a manifest whose key number matches but signature does not.
func TestVerify_ForgedSignature(t *testing.T) {
	t.Parallel()

	installed := newTestKey(t, 1)
	forger := newTestKey(t, 1)
	root, dest := writeRelease(t, forger, installed, map[string]string{"bsd": "kernel"})

	err := NewVerifier(root).Verify(context.Background(), []string{filepath.Join(dest, "bsd")}, "10.5")
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

// TestVerifyDetached checks a single file against a detached signature.
func TestVerifyDetached(t *testing.T) {
	t.Parallel()

	key := newTestKey(t, 9)
	dir := t.TempDir()

	keyPath := filepath.Join(dir, SelfKeyName)
	binPath := filepath.Join(dir, "snapup")
	sigPath := binPath + ".sig"

	require.NoError(t, os.WriteFile(keyPath, FormatPublicKey("snapup public key", key.num, key.public), 0o644))
	require.NoError(t, os.WriteFile(binPath, []byte("binary"), 0o755))
	require.NoError(t, os.WriteFile(sigPath, SignDetached("verify with snapup.pub", key.num, key.private, []byte("binary")), 0o644))

	require.NoError(t, VerifyDetached(keyPath, sigPath, binPath))

	require.NoError(t, os.WriteFile(binPath, []byte("patched"), 0o755))
	require.ErrorIs(t, VerifyDetached(keyPath, sigPath, binPath), ErrSignatureInvalid)

	require.ErrorIs(t, VerifyDetached(filepath.Join(dir, "missing.pub"), sigPath, binPath), ErrNoPublicKey)
}

// TestParseManifest ignores lines in other formats.
func TestParseManifest(t *testing.T) {
	t.Parallel()

	digest := sum("x")
	sums := ParseManifest([]byte("SHA256 (bsd) = " + digest + "\nMD5 (bsd) = abc\n\n"))
	require.Equal(t, map[string]string{"bsd": digest}, sums)
}

// TestParsePublicKey rejects malformed input.
func TestParsePublicKey(t *testing.T) {
	t.Parallel()

	_, err := ParsePublicKey([]byte("no comment\n"))
	require.ErrorIs(t, err, errMalformed)

	_, err = ParsePublicKey([]byte(CommentPrefix + "x\nAAAA\n"))
	require.ErrorIs(t, err, errMalformed)
}
