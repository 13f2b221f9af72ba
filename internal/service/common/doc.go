// Package common holds helpers shared by several services.
//
// It provides a small HTTP client wrapper with timeouts, a command runner
// that maps exit statuses to errors, the privilege check run before any
// mutation, a scan for other running instances and an interactive prompter.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
