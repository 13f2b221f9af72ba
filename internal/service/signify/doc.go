// Package signify verifies files signed with OpenBSD's signify(1) format.
//
// Release artifacts are covered by SHA256.sig, an embedded signature over a
// list of SHA256 checksums, verified with the per-release key in
// /etc/signify. Detached signatures cover a single file and are used for the
// self-integrity check. Verification is native: Ed25519 from crypto/ed25519
// and SHA-256 from crypto/sha256.
package signify
