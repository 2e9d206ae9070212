package observability

import (
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogConfig configures the rotating diagnostic file logger.
type FileLogConfig struct {
	// Path is the log file location.
	Path string

	// MaxSizeMB is the size at which the file is rotated.
	// Default: 10
	MaxSizeMB int

	// MaxBackups is the number of rotated files to retain.
	// Default: 3
	MaxBackups int

	// MaxAgeDays is the maximum age of a rotated file in days.
	// Default: 14
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool

	// Level is the minimum level written.
	// Default: slog.LevelInfo
	Level slog.Leveler
}

// DefaultFileLogConfig provides reasonable defaults.
var DefaultFileLogConfig = FileLogConfig{
	MaxSizeMB:  10,
	MaxBackups: 3,
	MaxAgeDays: 14,
}

// NewFileLogger creates a JSON slog.Logger writing to a size-rotated
// file. Diagnostic consoles tail the file; rotation keeps disk usage
// bounded without an external log shipper.
func NewFileLogger(cfg FileLogConfig) *slog.Logger {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultFileLogConfig.MaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = DefaultFileLogConfig.MaxBackups
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = DefaultFileLogConfig.MaxAgeDays
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: cfg.Level,
	}))
}
