package cli

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rpggio/skitimer/internal/config"
)

// newLogger writes to w, or to the configured log file. Logs never go to
// stdout, which carries command output and MCP JSON-RPC.
func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) (*slog.Logger, func() error, error) {
	closeFn := func() error { return nil }
	if cfg.Path != "" {
		fileWriter, file, err := newLogFileWriter(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		w = fileWriter
		closeFn = file.Close
	}

	level := parseLogLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, closeFn, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	return ensureDir(path)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

// logFileWriter appends to a log file. Once the file grows past maxSize it
// is cut down to its last keep bytes.
type logFileWriter struct {
	mu      sync.Mutex
	file    *os.File
	size    int64
	maxSize int64
	keep    int64
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if err := ensureDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, nil, err
	}
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	w := &logFileWriter{file: file, size: size, maxSize: maxLogSizeBytes, keep: keepLogSizeBytes}
	if err := w.trim(); err != nil {
		file.Close()
		return nil, nil, err
	}
	return w, file, nil
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, err
	}
	return n, w.trim()
}

// trim keeps the tail of the file. Callers hold mu.
func (w *logFileWriter) trim() error {
	if w.size <= w.maxSize {
		return nil
	}
	tail := make([]byte, w.keep)
	n, err := w.file.ReadAt(tail, w.size-w.keep)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	tail = tail[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.WriteAt(tail, 0); err != nil {
		return err
	}
	w.size = int64(len(tail))
	_, err = w.file.Seek(w.size, io.SeekStart)
	return err
}
