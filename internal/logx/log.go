// Package logx holds the process-wide structured logger.
package logx

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the shared logger. Output stays JSON when stderr is redirected so
// host logs remain parseable; interactive runs get the console writer.
var Log = log.Logger

// Configure sets the global log level. Level strings are tolerant of case
// and common synonyms; unknown values fall back to info.
func Configure(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
	if isatty.IsTerminal(os.Stderr.Fd()) {
		Log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// parseLevel accepts: all, trace, verbose, debug, info, warn, warning,
// error, fatal, none, off, disabled.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "all", "trace":
		return zerolog.TraceLevel
	case "verbose", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "none", "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	Configure(os.Getenv("LOG_LEVEL"))
}
