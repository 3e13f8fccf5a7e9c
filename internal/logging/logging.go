package logging

import (
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"

	"resumerag/internal/config"
)

// New builds the application logger from cfg. Output "console" (or "stdout") writes
// human-readable lines to the terminal, "file" appends to cfg.File.
func New(cfg config.LoggingConfig) arbor.ILogger {
	logger := arbor.NewLogger()

	hasConsole, hasFile := false, false
	for _, out := range cfg.Output {
		switch out {
		case "console", "stdout":
			hasConsole = true
		case "file":
			hasFile = true
		}
	}

	if hasFile {
		name := cfg.File
		if name == "" {
			name = filepath.Join(os.TempDir(), "resumerag", "resumerag.log")
		}
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err == nil {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   name,
				TimeFormat: "15:04:05",
				MaxSize:    50 * 1024 * 1024,
				MaxBackups: 3,
				TextOutput: true,
			})
		} else {
			hasConsole = true
		}
	}
	if hasConsole || !hasFile {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: "15:04:05",
			TextOutput: true,
		})
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	return logger.WithLevelFromString(level)
}

// Discard returns a logger with no writers attached.
func Discard() arbor.ILogger {
	return arbor.NewLogger()
}
