// Package logging assembles structured slog loggers and formatting helpers used
// across loadboard services.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and defines the standard field keys (order ids, operations, topics,
// correlation ids) so the server, the HTTP client, and the reconciliation
// engine emit lines with the same shape. A no-op logger is provided for tests
// and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup.
package logging
