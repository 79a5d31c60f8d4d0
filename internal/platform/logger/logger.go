package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a structured JSON logger using slog, writing to stdout at level.
func New(level *slog.LevelVar) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter returns a JSON logger writing to w. A nil level means Info.
func NewWithWriter(w io.Writer, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if level != nil {
		opts.Level = level
	}
	handler := slog.NewJSONHandler(w, opts)
	return slog.New(handler)
}

// Level returns a LevelVar set to Debug when debug is true and Info otherwise.
func Level(debug bool) *slog.LevelVar {
	v := &slog.LevelVar{}
	SetDebug(v, debug)
	return v
}

// SetDebug switches v between Debug and Info.
func SetDebug(v *slog.LevelVar, debug bool) {
	if debug {
		v.Set(slog.LevelDebug)
		return
	}
	v.Set(slog.LevelInfo)
}
