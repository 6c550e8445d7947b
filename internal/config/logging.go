package config

import (
	"io"
	"log/slog"
)

// NewLogger builds the slog handler selected by cfg. The level is read through
// level so a config reload can change it in place.
func NewLogger(w io.Writer, cfg LoggingConfig, level *slog.LevelVar) *slog.Logger {
	level.Set(cfg.Level.SlogLevel())
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
