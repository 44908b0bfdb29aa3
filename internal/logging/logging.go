// Package logging provides the structured application log plux writes to
// (as opposed to the per-shell input/output byte logs and the progress
// log, which are plain files - see spec §6.4). Grounded on the zerolog
// setup used by the go-opencode terminal agent in the example pack.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level aliases zerolog's so callers never need to import it directly.
type Level = zerolog.Level

const (
	TraceLevel = zerolog.TraceLevel
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// ParseLevel parses the exact vocabulary the CLI's -l/--log-level flag
// accepts (spec §6.2): TRACE, DEBUG, INFO, WARNING, ERROR, case
// insensitive, with WARN also accepted as an alias of WARNING.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TraceLevel, true
	case "DEBUG":
		return DebugLevel, true
	case "INFO":
		return InfoLevel, true
	case "WARNING", "WARN":
		return WarnLevel, true
	case "ERROR":
		return ErrorLevel, true
	default:
		return InfoLevel, false
	}
}

// New builds a plux application logger writing to w at the given level.
// Scripts get one of these (usually backed by ./plux.log) and each shell
// gets its own io.Writer pair for the raw byte logs, which are NOT
// zerolog loggers - they're append-only files, see NewFileWriter.
func New(w io.Writer, level Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// NewFileWriter opens path for append, creating the file if needed (its
// parent directory must already exist), for use as a raw per-shell
// input/output log or as the progress log (spec §6.4).
func NewFileWriter(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
