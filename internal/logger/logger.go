// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup writes logs to stderr, keeping stdout for command output.
func Setup(level, format string) {
	SetupWriter(level, format, os.Stderr)
}

// SetupWriter installs a global logger writing to w. format "console" selects
// human-readable output; anything else emits JSON lines.
func SetupWriter(level, format string, w io.Writer) {
	zerolog.SetGlobalLevel(parseLevel(level))
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// parseLevel maps a config level name to a zerolog level. Unknown and empty
// names fall back to info.
func parseLevel(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel || lvl < zerolog.DebugLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Get returns the global logger tagged with component.
func Get(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
