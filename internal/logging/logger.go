package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu        sync.RWMutex
	logger    *slog.Logger
	logCloser io.Closer
)

// Init configures the global logger. Later calls replace the previous logger
// and close its log file.
func Init(cfg config.LoggingConfig) (*slog.Logger, error) {
	handler, closer, err := buildHandler(cfg)
	if err != nil {
		return L(), err
	}

	mu.Lock()
	previous := logCloser
	logger = slog.New(handler)
	logCloser = closer
	mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	slog.SetDefault(L())
	log.SetFlags(0)
	log.SetOutput(slogWriter{logger: L().With("component", "stdlog")})
	return L(), nil
}

// L returns the configured logger, or the process default if not initialized.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Component returns the logger tagged with a component attribute.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// ForJob tags base with the server and job a lifecycle operation acts on.
func ForJob(base *slog.Logger, serverName, jobID string) *slog.Logger {
	return base.With("server", serverName, "job", jobID)
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	mu.Lock()
	closer := logCloser
	logCloser = nil
	mu.Unlock()

	if closer != nil {
		return closer.Close()
	}
	return nil
}

func buildHandler(cfg config.LoggingConfig) (slog.Handler, io.Closer, error) {
	output, closer, err := buildOutput(cfg)
	if err != nil {
		return nil, nil, err
	}

	options := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: true}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "text":
		return slog.NewTextHandler(output, options), closer, nil
	case "json", "":
		return slog.NewJSONHandler(output, options), closer, nil
	default:
		if closer != nil {
			closer.Close()
		}
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}
	w.logger.Info(msg)
	return len(p), nil
}

// buildOutput writes to stdout, and also to a rotating file when one is configured.
func buildOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	path := strings.TrimSpace(cfg.File)
	if path == "" {
		return os.Stdout, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	fileLogger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, fileLogger), fileLogger, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
