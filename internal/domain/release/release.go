package release

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	// OSName is the directory under /pub/ on every mirror.
	OSName = "OpenBSD"
	// ChannelSnapshots is the release channel carrying development builds.
	ChannelSnapshots = "snapshots"
	// SignatureManifest is the signed SHA256 list published next to the artifacts.
	SignatureManifest = "SHA256.sig"
	// BuildInfoFile identifies the build published in a channel.
	BuildInfoFile = "BUILDINFO"
	// ArchiveExtension is appended to every set name.
	ArchiveExtension = ".tgz"
)

var (
	errEmptyField     = errors.New("release target field is empty")
	errBadBuildInfo   = errors.New("malformed build info")
	errEmptyVersion   = errors.New("release version is empty")
	errUnknownArchive = errors.New("not an archive of this release")
)

// Target identifies where every artifact of a run comes from.
// It is resolved once and never modified afterwards.
type Target struct {
	// Scheme is the transfer protocol, e.g. "https".
	Scheme string
	// Mirror is the mirror host, optionally with a port.
	Mirror string
	// Channel is "snapshots" or a release version such as "7.5".
	Channel string
	// Machine is the hardware platform, e.g. "amd64".
	Machine string
	// Version is the release version the artifacts are named after, e.g. "7.5".
	Version string
}

// Validate reports the first empty field of t.
func (t Target) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"scheme", t.Scheme},
		{"mirror", t.Mirror},
		{"channel", t.Channel},
		{"machine", t.Machine},
		{"version", t.Version},
	}

	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%s: %w", field.name, errEmptyField)
		}
	}

	return nil
}

// BaseURL returns <scheme>://<mirror>/pub/<os>/<channel>/<machine>/.
func (t Target) BaseURL() string {
	u := url.URL{
		Scheme: t.Scheme,
		Host:   t.Mirror,
		Path:   path.Join("/pub", OSName, t.Channel, t.Machine) + "/",
	}

	return u.String()
}

// URL returns the location of a named file inside the release directory.
func (t Target) URL(name string) string {
	return t.BaseURL() + name
}

// IsSnapshot reports whether t points at the snapshots channel.
func (t Target) IsSnapshot() bool {
	return t.Channel == ChannelSnapshots
}

// String renders t for log messages.
func (t Target) String() string {
	return fmt.Sprintf("%s %s/%s from %s", t.Version, t.Channel, t.Machine, t.Mirror)
}

// VersionDigits drops the dots of a release version: "7.5" becomes "75".
func VersionDigits(version string) string {
	return strings.ReplaceAll(strings.TrimSpace(version), ".", "")
}

// ArchiveName returns the file name of a set, e.g. base75.tgz.
func ArchiveName(set, version string) string {
	return set + VersionDigits(version) + ArchiveExtension
}

// SetFromArchive is the inverse of ArchiveName.
func SetFromArchive(archive, version string) (string, error) {
	suffix := VersionDigits(version) + ArchiveExtension
	if !strings.HasSuffix(archive, suffix) || len(archive) == len(suffix) {
		return "", fmt.Errorf("%s: %w", archive, errUnknownArchive)
	}

	return strings.TrimSuffix(archive, suffix), nil
}

// PublicKeyName returns the signify key file name for a release version,
// e.g. openbsd-75-base.pub.
func PublicKeyName(version string) (string, error) {
	digits := VersionDigits(version)
	if digits == "" {
		return "", errEmptyVersion
	}

	return "openbsd-" + digits + "-base.pub", nil
}

// ParseBuildInfo extracts the build identifier from BUILDINFO contents.
// The file holds hyphen-delimited fields and the identifier is the second one,
// e.g. "Build date: 1700000000 - Tue Nov 14 22:13:20 UTC 2023".
func ParseBuildInfo(data []byte) (string, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")

	fields := strings.Split(line, "-")
	if len(fields) < 2 {
		return "", fmt.Errorf("%q: %w", line, errBadBuildInfo)
	}

	build := strings.TrimSpace(fields[1])
	if build == "" {
		return "", fmt.Errorf("%q: %w", line, errBadBuildInfo)
	}

	return build, nil
}
