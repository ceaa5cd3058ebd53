package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MEKXH/taskgate/internal/config"
)

var (
	loggerMu sync.Mutex
	logFile  *os.File
)

// configureLogger installs the process-wide slog handler. Output goes to
// stderr unless log.file is set; stdout is reserved for command output.
func configureLogger(cfg *config.Config, overrideLevel string) error {
	level, err := parseLogLevel(cfg.Log.Level, overrideLevel)
	if err != nil {
		return err
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()

	w, err := logWriter(strings.TrimSpace(cfg.Log.File))
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Log.Format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// logWriter reuses the open log file when the path is unchanged. Caller
// holds loggerMu.
func logWriter(path string) (io.Writer, error) {
	if logFile != nil && logFile.Name() != path {
		_ = logFile.Close()
		logFile = nil
	}
	if path == "" {
		return os.Stderr, nil
	}
	if logFile != nil {
		return logFile, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logFile = f
	return f, nil
}

var logLevels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLogLevel prefers a non-blank --log-level over log.level.
func parseLogLevel(configLevel, override string) (slog.Level, error) {
	raw := configLevel
	if strings.TrimSpace(override) != "" {
		raw = override
	}
	level, ok := logLevels[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("invalid log level: %s", raw)
	}
	return level, nil
}
