// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup sets the global log level and output. Pretty selects a console
// writer for humans; otherwise logs are JSON lines on stderr.
func Setup(level string, pretty bool) error {
	lvl, err := ParseLevel(level, zerolog.InfoLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.DurationFieldUnit = time.Millisecond

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// ParseLevel parses a level name, returning def for the empty string.
func ParseLevel(level string, def zerolog.Level) (zerolog.Level, error) {
	if level == "" {
		return def, nil
	}
	return zerolog.ParseLevel(level)
}

// Cleaner is the part of testing.TB that ForTest needs.
type Cleaner interface {
	Cleanup(func())
}

// ForTest sets the global level for the duration of a test, honoring the
// LOG_LEVEL environment variable when set.
func ForTest(t Cleaner, level zerolog.Level) {
	if env, err := ParseLevel(os.Getenv("LOG_LEVEL"), level); err == nil {
		level = env
	}
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(level)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
}
