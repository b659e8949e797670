// Package logging wires slog to a rotated log file for applications built
// on this module. The tray library itself only ever logs through
// slog.Default, so hosts that configure their own handler are untouched.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu        sync.Mutex
	logOutput *lumberjack.Logger
	logPath   string
)

// Init routes slog to a rotated file under the user config directory,
// named after the application. Calling it again is a no-op.
func Init(appName string) error {
	mu.Lock()
	defer mu.Unlock()

	if logOutput != nil {
		return nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get user config directory: %w", err)
	}
	logDir := filepath.Join(configDir, appName)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath = filepath.Join(logDir, appName+".log")
	logOutput = &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // MBs
		MaxBackups: 3,
		MaxAge:     28,
	}

	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	})
	slog.SetDefault(slog.New(handler))

	slog.Info("logging initialized", "path", logPath)
	return nil
}

// Path returns the active log file path, or "" before Init.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Close flushes and closes the rotated log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logOutput == nil {
		return nil
	}
	err := logOutput.Close()
	logOutput = nil
	return err
}
