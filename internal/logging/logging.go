package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gcslink/internal/config"
)

// Manager owns the process logger. Level and sink come from the app
// config; the optional log file lives in the data dir and is reopened on
// every reconfiguration.
type Manager struct {
	mu     sync.RWMutex
	logger *slog.Logger
	file   *os.File
}

func NewManager() *Manager {
	return &Manager{
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
}

func (m *Manager) Configure(cfg config.LoggingConfig, filePath string) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}

	sink := io.Writer(os.Stdout)
	if cfg.LogToFile {
		cleanPath := filepath.Clean(filePath)
		// #nosec G304 -- path is derived from the configured data dir.
		file, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		m.file = file
		sink = newTeeWriter(os.Stdout, file)
	}

	m.logger = slog.New(slog.NewTextHandler(sink, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(m.logger)
	return nil
}

// Logger returns a child logger tagged with the component name, one per
// subsystem (fc, router, state, web, ...).
func (m *Manager) Logger(component string) *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger.With("component", component)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unsupported log level: %q", raw)
}

// teeWriter duplicates log lines to every sink. A line counts as written
// when at least one sink accepted it in full, so a full disk does not
// silence the console.
type teeWriter struct {
	sinks []io.Writer
}

func newTeeWriter(sinks ...io.Writer) io.Writer {
	kept := make([]io.Writer, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	return &teeWriter{sinks: kept}
}

func (w *teeWriter) Write(p []byte) (int, error) {
	var (
		accepted bool
		firstErr error
	)
	for _, sink := range w.sinks {
		n, err := sink.Write(p)
		if err == nil && n == len(p) {
			accepted = true
			continue
		}
		if firstErr == nil {
			if err == nil {
				err = io.ErrShortWrite
			}
			firstErr = err
		}
	}
	if accepted || firstErr == nil {
		return len(p), nil
	}
	return 0, firstErr
}
