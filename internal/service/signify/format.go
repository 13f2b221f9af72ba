package signify

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// CommentPrefix starts the first line of every signify file.
	CommentPrefix = "untrusted comment: "

	keyNumSize = 8
	saltSize   = 16
	// secretKeySize covers algorithm, KDF tag, rounds, salt, checksum, key number and key.
	secretKeySize = 2 + 2 + 4 + saltSize + 8 + keyNumSize + ed25519.PrivateKeySize
)

var (
	algorithmEd25519 = [2]byte{'E', 'd'}

	kdfBcrypt = [2]byte{'B', 'K'}

	errMalformed    = errors.New("malformed signify data")
	errBadAlgorithm = errors.New("unsupported signify algorithm")
	errEncryptedKey = errors.New("secret key is passphrase protected, create it with signify -G -n")
	errKeyChecksum  = errors.New("secret key checksum mismatch")

	manifestLine = regexp.MustCompile(`^SHA256 \((.+)\) = ([0-9a-fA-F]{64})$`)
)

// KeyNum identifies the key a signature was made with.
type KeyNum [keyNumSize]byte

// String renders the key number as hex.
func (k KeyNum) String() string {
	return hex.EncodeToString(k[:])
}

// PublicKey is a decoded signify public key.
type PublicKey struct {
	KeyNum KeyNum
	Key    ed25519.PublicKey
}

// Signature is a decoded signify signature.
type Signature struct {
	KeyNum KeyNum
	Sig    []byte
}

// ParsePublicKey decodes a .pub file.
func ParsePublicKey(data []byte) (PublicKey, error) {
	payload, _, err := decodeBlock(data, 2+keyNumSize+ed25519.PublicKeySize) //nolint:mnd // Algorithm tag.
	if err != nil {
		return PublicKey{}, fmt.Errorf("public key: %w", err)
	}

	var key PublicKey

	copy(key.KeyNum[:], payload[2:2+keyNumSize])
	key.Key = ed25519.PublicKey(bytes.Clone(payload[2+keyNumSize:]))

	return key, nil
}

// SecretKey is a decoded signify secret key.
type SecretKey struct {
	KeyNum KeyNum
	Key    ed25519.PrivateKey
}

// Public returns the matching public key.
func (k SecretKey) Public() PublicKey {
	public, _ := k.Key.Public().(ed25519.PublicKey)

	return PublicKey{KeyNum: k.KeyNum, Key: public}
}

// ParseSecretKey decodes a .sec file. Only keys generated without a
// passphrase (zero KDF rounds) are accepted.
func ParseSecretKey(data []byte) (SecretKey, error) {
	payload, _, err := decodeBlock(data, secretKeySize)
	if err != nil {
		return SecretKey{}, fmt.Errorf("secret key: %w", err)
	}

	if payload[2] != kdfBcrypt[0] || payload[3] != kdfBcrypt[1] {
		return SecretKey{}, fmt.Errorf("secret key: %w", errBadAlgorithm)
	}

	rest := payload[4:]

	if binary.BigEndian.Uint32(rest) != 0 {
		return SecretKey{}, errEncryptedKey
	}

	rest = rest[4+saltSize:]
	checksum, rest := rest[:8], rest[8:]

	var key SecretKey

	copy(key.KeyNum[:], rest[:keyNumSize])
	key.Key = ed25519.PrivateKey(bytes.Clone(rest[keyNumSize:]))

	sum := sha512.Sum512(key.Key)
	if !bytes.Equal(sum[:8], checksum) {
		return SecretKey{}, errKeyChecksum
	}

	return key, nil
}

// FormatSecretKey encodes key as an unencrypted .sec file.
func FormatSecretKey(comment string, keyNum KeyNum, key ed25519.PrivateKey) []byte {
	sum := sha512.Sum512(key)

	payload := make([]byte, 0, secretKeySize)
	payload = append(payload, algorithmEd25519[:]...)
	payload = append(payload, kdfBcrypt[:]...)
	payload = binary.BigEndian.AppendUint32(payload, 0)
	payload = append(payload, make([]byte, saltSize)...)
	payload = append(payload, sum[:8]...)
	payload = append(payload, keyNum[:]...)
	payload = append(payload, key...)

	return encodeBlock(comment, payload)
}

// ParseSignature decodes a detached .sig file.
func ParseSignature(data []byte) (Signature, error) {
	sig, _, err := parseSignature(data)

	return sig, err
}

// ParseEmbedded decodes a signature followed by the message it signs.
func ParseEmbedded(data []byte) (Signature, []byte, error) {
	return parseSignature(data)
}

func parseSignature(data []byte) (Signature, []byte, error) {
	payload, message, err := decodeBlock(data, 2+keyNumSize+ed25519.SignatureSize) //nolint:mnd // Algorithm tag.
	if err != nil {
		return Signature{}, nil, fmt.Errorf("signature: %w", err)
	}

	var sig Signature

	copy(sig.KeyNum[:], payload[2:2+keyNumSize])
	sig.Sig = bytes.Clone(payload[2+keyNumSize:])

	return sig, message, nil
}

// decodeBlock reads the comment and base64 lines and returns the decoded
// payload and whatever follows the base64 line.
func decodeBlock(data []byte, size int) ([]byte, []byte, error) {
	comment, rest, found := bytes.Cut(data, []byte("\n"))
	if !found || !bytes.HasPrefix(comment, []byte(CommentPrefix)) {
		return nil, nil, fmt.Errorf("missing comment line: %w", errMalformed)
	}

	encoded, message, found := bytes.Cut(rest, []byte("\n"))
	if !found {
		return nil, nil, fmt.Errorf("missing newline after base64 line: %w", errMalformed)
	}

	payload, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(encoded)))
	if err != nil {
		return nil, nil, fmt.Errorf("base64: %w: %w", errMalformed, err)
	}

	if len(payload) != size {
		return nil, nil, fmt.Errorf("length %d, want %d: %w", len(payload), size, errMalformed)
	}

	if payload[0] != algorithmEd25519[0] || payload[1] != algorithmEd25519[1] {
		return nil, nil, errBadAlgorithm
	}

	return payload, message, nil
}

// ParseManifest reads "SHA256 (name) = hex" lines into name -> lower-case hex.
// Lines in other formats are ignored.
func ParseManifest(message []byte) map[string]string {
	sums := make(map[string]string)

	scanner := bufio.NewScanner(bytes.NewReader(message))
	for scanner.Scan() {
		match := manifestLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if match == nil {
			continue
		}

		sums[match[1]] = strings.ToLower(match[2])
	}

	return sums
}

// FormatPublicKey encodes key in the .pub file format.
func FormatPublicKey(comment string, keyNum KeyNum, key ed25519.PublicKey) []byte {
	payload := make([]byte, 0, 2+keyNumSize+ed25519.PublicKeySize) //nolint:mnd // Algorithm tag.
	payload = append(payload, algorithmEd25519[:]...)
	payload = append(payload, keyNum[:]...)
	payload = append(payload, key...)

	return encodeBlock(comment, payload)
}

// SignDetached signs message and returns a .sig file.
func SignDetached(comment string, keyNum KeyNum, private ed25519.PrivateKey, message []byte) []byte {
	payload := make([]byte, 0, 2+keyNumSize+ed25519.SignatureSize) //nolint:mnd // Algorithm tag.
	payload = append(payload, algorithmEd25519[:]...)
	payload = append(payload, keyNum[:]...)
	payload = append(payload, ed25519.Sign(private, message)...)

	return encodeBlock(comment, payload)
}

// SignEmbedded signs message and returns the signature followed by message,
// the format of SHA256.sig.
func SignEmbedded(comment string, keyNum KeyNum, private ed25519.PrivateKey, message []byte) []byte {
	return append(SignDetached(comment, keyNum, private, message), message...)
}

// FormatManifest renders checksums in the SHA256.sig message format.
func FormatManifest(names []string, sums map[string]string) []byte {
	var buf bytes.Buffer

	for _, name := range names {
		_, _ = fmt.Fprintf(&buf, "SHA256 (%s) = %s\n", name, sums[name])
	}

	return buf.Bytes()
}

func encodeBlock(comment string, payload []byte) []byte {
	return []byte(CommentPrefix + comment + "\n" + base64.StdEncoding.EncodeToString(payload) + "\n")
}
