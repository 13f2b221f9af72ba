package signify

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func rewritePayload(t *testing.T, file []byte, change func([]byte)) []byte {
	t.Helper()

	comment, rest, _ := bytes.Cut(file, []byte("\n"))
	encoded, _, _ := bytes.Cut(rest, []byte("\n"))

	payload, err := base64.StdEncoding.DecodeString(string(encoded))
	require.NoError(t, err)

	change(payload)

	return encodeBlock(string(bytes.TrimPrefix(comment, []byte(CommentPrefix))), payload)
}

// TestSecretKeyRoundTrip signs with a parsed secret key and verifies with its public half.
func TestSecretKeyRoundTrip(t *testing.T) {
	t.Parallel()

	key := newTestKey(t, 9)

	parsed, err := ParseSecretKey(FormatSecretKey("snapup secret key", key.num, key.private))
	require.NoError(t, err)
	require.Equal(t, key.num, parsed.KeyNum)
	require.Equal(t, key.public, parsed.Public().Key)

	sig, err := ParseSignature(SignDetached("c", parsed.KeyNum, parsed.Key, []byte("message")))
	require.NoError(t, err)
	require.True(t, ed25519.Verify(parsed.Public().Key, []byte("message"), sig.Sig))
}

// TestParseSecretKey_Encrypted rejects passphrase protected keys.
func TestParseSecretKey_Encrypted(t *testing.T) {
	t.Parallel()

	key := newTestKey(t, 1)
	file := rewritePayload(t, FormatSecretKey("c", key.num, key.private), func(p []byte) {
		p[7] = 42
	})

	_, err := ParseSecretKey(file)
	require.ErrorIs(t, err, errEncryptedKey)
}

// TestParseSecretKey_Checksum rejects a corrupted key.
func TestParseSecretKey_Checksum(t *testing.T) {
	t.Parallel()

	key := newTestKey(t, 1)
	file := rewritePayload(t, FormatSecretKey("c", key.num, key.private), func(p []byte) {
		p[len(p)-1] ^= 0xff
	})

	_, err := ParseSecretKey(file)
	require.ErrorIs(t, err, errKeyChecksum)
}

// TestParseSecretKey_PublicKeyFile rejects a key of the wrong kind.
func TestParseSecretKey_PublicKeyFile(t *testing.T) {
	t.Parallel()

	key := newTestKey(t, 1)

	_, err := ParseSecretKey(FormatPublicKey("c", key.num, key.public))
	require.ErrorIs(t, err, errMalformed)
}
