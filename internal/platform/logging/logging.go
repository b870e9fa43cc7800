// Package logging initializes the process-wide zerolog logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init builds the root logger writing human-readable output to stdout.
// JOURNAL_LOG_LEVEL overrides the level (trace..panic); unknown values fall
// back to info.
func Init(app string) zerolog.Logger {
	level := zerolog.InfoLevel
	if v := os.Getenv("JOURNAL_LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
