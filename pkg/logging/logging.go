// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Settings struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"`
	WithCaller bool   `yaml:"with_caller" env:"WITH_CALLER"`
	// File, when set, receives the log in addition to stderr, rotated by size.
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

func DefaultSettings() Settings {
	return Settings{Level: "info", Format: "console", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7}
}

// ParseLevel converts a string level into zerolog.Level with a safe default.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init replaces the global logger. The returned closer flushes the log file, if any.
func Init(s Settings) (io.Closer, error) {
	return initTo(os.Stderr, s)
}

func initTo(stderr io.Writer, s Settings) (io.Closer, error) {
	zerolog.SetGlobalLevel(ParseLevel(s.Level))

	var console io.Writer = stderr
	if strings.ToLower(s.Format) != "json" {
		noColor := true
		if f, ok := stderr.(*os.File); ok {
			noColor = !isatty.IsTerminal(f.Fd())
		}
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339, NoColor: noColor}
	}

	var closer io.Closer = nopCloser{}
	out := console
	if strings.TrimSpace(s.File) != "" {
		lj := &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    atLeast(s.MaxSizeMB, 1),
			MaxBackups: atLeast(s.MaxBackups, 1),
			MaxAge:     atLeast(s.MaxAgeDays, 1),
		}
		// the file always gets JSON lines
		out = zerolog.MultiLevelWriter(console, lj)
		closer = lj
	}

	ctx := zerolog.New(out).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return closer, nil
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
