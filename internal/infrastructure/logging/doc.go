// Package logging provides structured logging for otacore.
//
// It wraps log/slog with config-driven level/format selection and default
// attributes identifying the service. Component loggers are derived with
// With("component", ...) so every line carries its origin.
package logging
