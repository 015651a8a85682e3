package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults applied when FileConfig leaves a field at zero.
const (
	defaultMaxSizeMB = 100
	defaultMaxFiles  = 5
)

// FileConfig holds configuration for file-based log output with rotation.
type FileConfig struct {
	Path      string
	MaxSizeMB int
	MaxFiles  int
}

// NewFileWriter returns an io.Writer that appends to a size-rotated log file.
// Rotated files are gzip-compressed and named in local time.
func NewFileWriter(cfg FileConfig) io.Writer {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		LocalTime:  true,
		Compress:   true,
	}
}
