// Package logger builds the process slog logger and carries request-scoped loggers
// through a context.
package logger
