// Package logging provides the structured logger shared by every AlterEgo
// component. It wraps zap, tees output to the console and a rotated log
// file, and scrubs API keys and inline image payloads from every entry.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging organism used throughout the service.
//
// It composes:
//   - FileWriter molecule (rotation via lumberjack)
//   - MultiCore molecule (console + file tee)
//   - SensitiveFilter atom (key and data URL scrubbing)
//
// Example:
//
//	logger, err := NewLogger(true, "alterego.log")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("server started", zap.Int("port", 8080))
type Logger struct {
	zap           *zap.Logger
	isDevelopment bool
	logFilePath   string
}

// Options configures NewLoggerWithOptions.
type Options struct {
	// Development selects colored console output. Production uses JSON.
	Development bool

	// Level overrides the mode default (debug in development, info otherwise).
	// Nil keeps the default.
	Level *zapcore.Level

	// FilePath is the rotated log file. Empty disables file output.
	FilePath string

	// File controls rotation. Zero fields fall back to defaults.
	File FileWriterConfig
}

// NewLogger creates a Logger for the given mode that writes to the console
// and to logFilePath. Rotation uses DefaultFileWriterConfig.
//
// Example:
//
//	devLogger, err := NewLogger(true, "alterego.log")
//	prodLogger, err := NewLogger(false, "/var/log/alterego/alterego.log")
func NewLogger(isDevelopment bool, logFilePath string) (*Logger, error) {
	return NewLoggerWithOptions(Options{
		Development: isDevelopment,
		FilePath:    logFilePath,
		File:        DefaultFileWriterConfig(),
	})
}

// NewLoggerWithOptions creates a Logger with explicit level and rotation settings.
func NewLoggerWithOptions(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Development {
		level = zapcore.DebugLevel
	}
	if opts.Level != nil {
		level = *opts.Level
	}

	console := zapcore.Lock(zapcore.AddSync(os.Stdout))

	var core zapcore.Core
	if opts.FilePath == "" {
		core = NewConsoleCore(level, console, opts.Development)
	} else {
		file, err := NewFileWriterWithConfig(opts.FilePath, opts.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create log core: %w", err)
		}
		core = NewMultiCoreWithWriters(level, console, file, opts.Development)
	}

	return &Logger{
		zap:           zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		isDevelopment: opts.Development,
		logFilePath:   opts.FilePath,
	}, nil
}

// New wraps an arbitrary zapcore.Core. Tests pair it with
// zaptest/observer to assert on emitted entries.
func New(core zapcore.Core) *Logger {
	return &Logger{zap: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Sync flushes buffered entries. Call it before exiting.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs at DebugLevel.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, redactFields(fields)...)
}

// Info logs at InfoLevel.
//
// Example:
//
//	logger.Info("batch started",
//	    zap.String("batch_id", id),
//	    zap.Int("styles", 6))
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, redactFields(fields)...)
}

// Warn logs at WarnLevel.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, redactFields(fields)...)
}

// Error logs at ErrorLevel.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, redactFields(fields)...)
}

// Fatal logs at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, redactFields(fields)...)
}

// Infof logs a formatted message at InfoLevel. The rendered message is
// scrubbed the same way string fields are.
func (l *Logger) Infof(template string, args ...interface{}) {
	l.zap.Info(RedactSensitiveData(fmt.Sprintf(template, args...)))
}

// Warnf logs a formatted message at WarnLevel.
func (l *Logger) Warnf(template string, args ...interface{}) {
	l.zap.Warn(RedactSensitiveData(fmt.Sprintf(template, args...)))
}

// With returns a child logger that adds fields to every entry.
//
// Example:
//
//	batchLog := logger.With(zap.String("batch_id", id))
//	batchLog.Info("item done", zap.String("style", "1970s"))
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		zap:           l.zap.With(redactFields(fields)...),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Named adds a sub-logger name, shown in the "source" key.
//
// Example:
//
//	orchLog := logger.Named("orchestrator")
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		zap:           l.zap.Named(name),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Zap exposes the underlying zap.Logger for libraries that take one.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// IsDevelopment reports whether the logger was built in development mode.
func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

// LogFilePath returns the rotated log file path, or "" for console only.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = redactField(f)
	}
	return out
}

func redactField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}
	if field.Type == zapcore.StringType {
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	}
	return field
}
