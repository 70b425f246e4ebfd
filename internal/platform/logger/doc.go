// Package logger configures structured logging for the application using
// log/slog, with JSON or text output and a level taken from configuration.
// It also carries request-scoped loggers through context.Context.
package logger
