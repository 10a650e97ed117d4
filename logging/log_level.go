package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLevel parses a level name case-insensitively. ok is false for empty
// or unknown input, in which case the caller keeps its mode default.
//
// Valid names: debug, info, warn, warning, error, fatal.
func ParseLevel(s string) (level zapcore.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "fatal":
		return zapcore.FatalLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}
