package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. Outside prod it writes a console
// format to stdout; in prod it appends JSON lines to logs/subgate.log.
func Setup(env, level string) func() {
	zerolog.SetGlobalLevel(parseLevel(level))

	if env != "prod" {
		log.Logger = newLogger(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"})
		return func() {}
	}

	logDir := "logs"
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Logger = newLogger(os.Stdout)
		log.Warn().Err(err).Msg("failed to create log dir, fallback to stdout")
		return func() {}
	}

	logPath := filepath.Join(logDir, "subgate.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Logger = newLogger(os.Stdout)
		log.Warn().Err(err).Msg("failed to open log file, fallback to stdout")
		return func() {}
	}

	log.Logger = newLogger(f)
	return func() {
		_ = f.Close()
	}
}

// Component returns a child of the global logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
