// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level string // debug, info, warn or error; anything else means info.
	File  string // Also write to this file, rotated; empty disables.
}

// New returns a JSON logger writing to w and, when opts.File is set, to a
// size-rotated file. The returned closer releases the file.
func New(w io.Writer, opts Options) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // Megabytes
			MaxBackups: 5,
			MaxAge:     30, // Days
			Compress:   true,
		}
		w = io.MultiWriter(w, rotator)
		closer = rotator
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	return slog.New(handler), closer
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
