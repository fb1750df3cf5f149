package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
)

func TestInitAndCloseLogger(t *testing.T) {
	root := t.TempDir()
	logPath := filepath.Join(root, "app.log")

	_, err := Init(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		File:       logPath,
		MaxSize:    10,
		MaxBackups: 1,
		MaxAge:     1,
	})
	require.NoError(t, err)

	Component("test").Info("test_log")
	assert.NoError(t, Close())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range cases {
		assert.Equal(t, want, parseLevel(input), "level %q", input)
	}
}

func TestInitCreatesLogDirectoryAndCanBeReplaced(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "logs", "lifecycle.log")

	_, err := Init(config.LoggingConfig{Level: "debug", Format: "text", File: logPath, MaxSize: 1})
	require.NoError(t, err)
	ForJob(Component("lifecycle"), "alpha", "start-1").Info("first")

	_, err = Init(config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NoError(t, Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "server=alpha")
	assert.Contains(t, string(data), "job=start-1")
}

func TestInitRejectsUnknownFormat(t *testing.T) {
	_, err := Init(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
	assert.NotNil(t, L())
}
