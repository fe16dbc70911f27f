// Package logfile owns the application log file.
//
// The TUI owns stdout, so structured logs go to a file instead:
//
//	logger, closer, err := logfile.Open(path, slog.LevelInfo)
//
// Open writes JSON records through log/slog. Tail reads the last N lines
// back for the log view using a ring buffer, so memory stays O(N) however
// large the file grows, and Parse turns each JSON line back into a Record
// the UI can render.
//
// Tail returns nil, nil when the file does not exist yet. Lines that are
// not JSON (for example output from an older build) parse as a Record with
// only Message set.
package logfile
