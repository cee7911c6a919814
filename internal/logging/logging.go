// Package logging provides the Logger interface used across dir-archiver and
// a zerolog-backed implementation of it.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a leveled logger taking alternating key/value pairs after the message.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	With(kv ...any) Logger
}

// Config selects level, format and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	// File, when set, sends output to a size-rotated file instead of stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Output     io.Writer
}

// ZeroLogger implements Logger on top of zerolog.
type ZeroLogger struct {
	zl zerolog.Logger
}

// New builds a logger. The returned closer releases the log file, if any.
func New(cfg Config) (*ZeroLogger, io.Closer) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	switch {
	case cfg.Output != nil:
		out = cfg.Output
	case cfg.File != "":
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		out = lj
		closer = lj
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	zl := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	return &ZeroLogger{zl: zl}, closer
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &ZeroLogger{zl: zerolog.Nop()}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
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

func (l *ZeroLogger) Debug(msg string, kv ...any) { l.zl.Debug().Fields(kv).Msg(msg) }
func (l *ZeroLogger) Info(msg string, kv ...any)  { l.zl.Info().Fields(kv).Msg(msg) }
func (l *ZeroLogger) Warn(msg string, kv ...any)  { l.zl.Warn().Fields(kv).Msg(msg) }
func (l *ZeroLogger) Error(msg string, kv ...any) { l.zl.Error().Fields(kv).Msg(msg) }

// With returns a child logger carrying the given fields on every entry.
func (l *ZeroLogger) With(kv ...any) Logger {
	return &ZeroLogger{zl: l.zl.With().Fields(kv).Logger()}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
