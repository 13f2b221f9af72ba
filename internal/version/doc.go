// Package version exposes build metadata and the release tag arithmetic used
// by the self-updater.
//
// Version, Commit and BuildTime are injected via ldflags. Release tags are
// compared by stripping every non-digit and ordering what remains as an integer.
package version
