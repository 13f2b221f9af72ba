package version

import (
	"fmt"
	"strings"
	"unicode"
)

// Unversioned is the build identifier of binaries built from the main branch
// rather than from a release tag.
const Unversioned = "master"

var (
	// Version is the release tag of the build, set via ldflags.
	Version = Unversioned
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the release tag.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("snapup %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// IsUnversioned reports whether v names a branch build instead of a tagged release.
func IsUnversioned(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))

	return v == "" || v == Unversioned || v == "dev"
}

// Digits strips every non-digit from v and drops leading zeros,
// so "6.1" becomes "61" and "v0.7" becomes "7". Returns "0" when nothing is left.
func Digits(v string) string {
	var b strings.Builder

	for _, r := range v {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	digits := strings.TrimLeft(b.String(), "0")
	if digits == "" {
		return "0"
	}

	return digits
}

// Compare orders two release tags by their Digits form read as integers.
// It returns -1, 0 or 1. Arbitrary lengths are supported.
func Compare(a, b string) int {
	da, db := Digits(a), Digits(b)

	switch {
	case len(da) != len(db):
		if len(da) < len(db) {
			return -1
		}

		return 1
	case da < db:
		return -1
	case da > db:
		return 1
	default:
		return 0
	}
}
