// Package logger wraps zap for the upgrade pipeline.
//
// A single sugared console logger writes to stderr at a shared, adjustable
// level. Loggers travel inside contexts (ToContext, FromContext, WithName,
// WithKV) so each pipeline stage logs with its own name and fields, and the
// package-level helpers (Info, WarnKV, Errorf, ...) pick them up from the
// context they are given.
package logger
