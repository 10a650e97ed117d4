package cmd

import (
	"fmt"

	"alterego/core"
	"alterego/db"
	"alterego/logging"
	"alterego/orchestrator"
	"alterego/store"
	"alterego/webui"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	dim     = color.New(color.FgHiBlack)
	good    = color.New(color.FgGreen)
	bad     = color.New(color.FgRed)
)

// serviceLogger writes to the console and the rotated LOG_FILE.
func serviceLogger(cfg *core.Config) (*logging.Logger, error) {
	opts := logging.Options{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		File:        logging.DefaultFileWriterConfig(),
	}
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		opts.Level = &lvl
	}
	return logging.NewLoggerWithOptions(opts)
}

// cliLogger keeps offline commands quiet unless LOG_LEVEL asks otherwise.
func cliLogger(cfg *core.Config) *logging.Logger {
	lvl := zapcore.WarnLevel
	if parsed, ok := logging.ParseLevel(cfg.LogLevel); ok {
		lvl = parsed
	}
	logger, err := logging.NewLoggerWithOptions(logging.Options{Development: cfg.DevMode, Level: &lvl})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// storage is the persistence a command opened.
type storage struct {
	store    store.Store
	database *db.Database
	repo     *db.Repository
	writer   *db.AsyncWriter
}

// openStorage opens the SQLite database at cfg.DBPath, or an in-memory
// store when memory is set. With async the activity log is written
// through an AsyncWriter.
func openStorage(cfg *core.Config, memory, async bool, logger *logging.Logger) (*storage, error) {
	if memory {
		return &storage{store: store.NewMemoryStore()}, nil
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &storage{database: database, store: store.NewSQLiteStore(database)}

	if async {
		s.writer = db.NewAsyncWriterWithConfig(nil, db.AsyncWriterConfig{
			ChannelCapacity: db.DefaultChannelCapacity,
			OnError: func(op db.WriteOperation, err error) {
				logger.Warn("Failed to write activity record", zap.Error(err))
			},
		})
	}
	s.repo = db.NewRepository(database, s.writer)
	if s.writer != nil {
		s.writer.SetHandler(s.repo.CreateAsyncWriteHandler())
		s.writer.Start()
	}
	return s, nil
}

// recorder returns the activity sink, nil in memory mode.
func (s *storage) recorder() orchestrator.Recorder {
	if s.repo == nil {
		return nil
	}
	return s.repo
}

// activity returns the activity query side, nil in memory mode.
func (s *storage) activity() webui.ActivitySource {
	if s.repo == nil {
		return nil
	}
	return s.repo
}

// Close drains the writer and closes the database.
func (s *storage) Close() error {
	if s.writer != nil {
		s.writer.Stop()
	}
	if s.database != nil {
		return s.database.Close()
	}
	return nil
}
