// Package logging configures structured slog output for docindex.
//
// Logs go to stderr and, when a file path is configured, to a size-rotated
// file under the data directory (server.log, server.log.1, ...).
package logging
