package signify

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/oshokin/snapup/internal/domain/release"
	"github.com/oshokin/snapup/internal/logger"
)

const (
	// KeyDir holds signify public keys, relative to the filesystem root.
	KeyDir = "etc/signify"
	// SelfKeyName is the key snapup releases are signed with.
	SelfKeyName = "snapup.pub"
)

var (
	// ErrNoPublicKey is returned when the verification key is not installed.
	ErrNoPublicKey = errors.New("signify public key not found")
	// ErrSignatureInvalid is returned when a signature or checksum does not match.
	ErrSignatureInvalid = errors.New("signature verification failed")

	errNotListed   = errors.New("not listed in signature manifest")
	errWrongKey    = errors.New("signed with a different key")
	errBadChecksum = errors.New("checksum mismatch")
)

// MismatchError lists the files that failed verification.
type MismatchError struct {
	// Files are the base names of the failing files.
	Files []string
	// Err aggregates the per-file failures.
	Err error
}

// Error implements error.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrSignatureInvalid, strings.Join(e.Files, ", "), e.Err)
}

// Unwrap exposes ErrSignatureInvalid and the per-file failures.
func (e *MismatchError) Unwrap() []error {
	return []error{ErrSignatureInvalid, e.Err}
}

// Verifier checks release artifacts against SHA256.sig.
type Verifier struct {
	keyDir string
}

// NewVerifier looks for keys under root/KeyDir.
func NewVerifier(root string) *Verifier {
	return &Verifier{keyDir: filepath.Join(root, filepath.FromSlash(KeyDir))}
}

// KeyPath returns the location of the key for version.
func (v *Verifier) KeyPath(version string) (string, error) {
	name, err := release.PublicKeyName(version)
	if err != nil {
		return "", err
	}

	return filepath.Join(v.keyDir, name), nil
}

// SelfKeyPath returns the location of the key snapup releases are signed with.
func (v *Verifier) SelfKeyPath() string {
	return filepath.Join(v.keyDir, SelfKeyName)
}

// Verify checks every file against the SHA256.sig next to it.
// A single mismatch fails the whole batch.
func (v *Verifier) Verify(ctx context.Context, files []string, version string) error {
	if len(files) == 0 {
		return nil
	}

	keyPath, err := v.KeyPath(version)
	if err != nil {
		return err
	}

	key, err := ReadPublicKey(keyPath)
	if err != nil {
		return err
	}

	manifestPath := filepath.Join(filepath.Dir(files[0]), release.SignatureManifest)

	sums, err := readManifest(manifestPath, key)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Verifying signatures", "files", len(files), "key", filepath.Base(keyPath))

	var (
		failed []string
		errs   error
	)

	for _, file := range files {
		if err = checkFile(file, sums); err != nil {
			failed = append(failed, filepath.Base(file))
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		return &MismatchError{Files: failed, Err: errs}
	}

	return nil
}

// VerifyDetached checks file against a detached signature made with the key at keyPath.
func VerifyDetached(keyPath, sigPath, file string) error {
	key, err := ReadPublicKey(keyPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Clean(sigPath))
	if err != nil {
		return fmt.Errorf("read signature: %w", err)
	}

	sig, err := ParseSignature(data)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", sigPath, ErrSignatureInvalid, err)
	}

	if sig.KeyNum != key.KeyNum {
		return fmt.Errorf("%s: %w: %w", sigPath, ErrSignatureInvalid, errWrongKey)
	}

	message, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	if !ed25519.Verify(key.Key, message, sig.Sig) {
		return fmt.Errorf("%s: %w", file, ErrSignatureInvalid)
	}

	return nil
}

// ReadPublicKey loads a key file, mapping a missing file to ErrNoPublicKey.
func ReadPublicKey(path string) (PublicKey, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PublicKey{}, fmt.Errorf("%s: %w", path, ErrNoPublicKey)
		}

		return PublicKey{}, fmt.Errorf("read public key: %w", err)
	}

	return ParsePublicKey(data)
}

func readManifest(path string, key PublicKey) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	sig, message, err := ParseEmbedded(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrSignatureInvalid, err)
	}

	if sig.KeyNum != key.KeyNum {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrSignatureInvalid, errWrongKey)
	}

	if !ed25519.Verify(key.Key, message, sig.Sig) {
		return nil, fmt.Errorf("%s: %w", path, ErrSignatureInvalid)
	}

	return ParseManifest(message), nil
}

func checkFile(path string, sums map[string]string) error {
	name := filepath.Base(path)

	want, ok := sums[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, errNotListed)
	}

	got, err := FileSHA256(path)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if got != want {
		return fmt.Errorf("%s: %w", name, errBadChecksum)
	}

	return nil
}

// FileSHA256 returns the hex SHA-256 of a file.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
