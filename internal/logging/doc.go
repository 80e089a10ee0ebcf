// Package logging constructs the process-wide slog logger.
//
// The CLI builds one logger from config and injects it into every
// component; packages never reach for a global logger. Console output is
// a compact human format, JSON output is one object per line with ts,
// level, and msg keys.
package logging
