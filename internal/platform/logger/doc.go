// Package logger configures log/slog JSON logging for both binaries and
// carries request-scoped loggers through context.
package logger
