// Package applog builds the process logger: human-readable console output
// on stderr and, optionally, JSON lines in a size-rotated file.
package applog

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level and optional file sink.
type Config struct {
	// Level is a zap level name: debug, info, warn or error.
	Level string
	// File, if set, receives JSON logs rotated at MaxSizeMB.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Logger wraps the zap logger together with the sinks it owns.
type Logger struct {
	*zap.SugaredLogger
	file *lumberjack.Logger
}

// New builds a Logger writing to console (normally os.Stderr).
func New(cfg Config, console io.Writer) (*Logger, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}
	if console == nil {
		console = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCfg := encCfg
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(console), level),
	}

	l := &Logger{}
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(l.file), level))
	}

	l.SugaredLogger = zap.New(zapcore.NewTee(cores...)).Sugar()
	return l, nil
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	// Sync on a terminal stderr returns EINVAL on Linux; it is not an error
	// worth reporting.
	_ = l.SugaredLogger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
