// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fcjr/sdburn/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup points the global logger at a human console writer on stderr and,
// when cfg.File is set, a size-rotated log file. Extra writers are appended.
func Setup(cfg config.LogConfig, debug bool, writers ...io.Writer) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if debug {
		level = zerolog.DebugLevel
	}

	logWriters := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		logWriters = append(logWriters, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}
	logWriters = append(logWriters, writers...)

	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(io.MultiWriter(logWriters...)).
		With().Timestamp().Logger()

	return nil
}
