package ui

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Log formats accepted by NewLogger.
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// NewLogger returns a logger writing to f. The auto format picks the text
// handler on a terminal and JSON everywhere else.
func NewLogger(f *os.File, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case LogFormatAuto, "":
		if IsTerminal(f) {
			return slog.New(slog.NewTextHandler(f, opts)), nil
		}
		return slog.New(slog.NewJSONHandler(f, opts)), nil
	case LogFormatText:
		return slog.New(slog.NewTextHandler(f, opts)), nil
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(f, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (must be auto, text or json)", format)
	}
}
