// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/mediflow-e2e/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferSink initializes the global logger against an in-memory buffer and
// restores the singleton when the test finishes.
func bufferSink(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes the level", func(t *testing.T) {
		buf := bufferSink(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "mediflow-e2e",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Named("scenario").Info("step completed", zap.String("step", "admin-login"))
		Sync()

		out := buf.String()
		assert.Contains(t, out, colorMap["green"]+"INFO"+colorReset)
		assert.Contains(t, out, "mediflow-e2e.scenario.")
		assert.Contains(t, out, "step completed")
		assert.Contains(t, out, `"step": "admin-login"`)
	})

	t.Run("unknown color falls back to plain level", func(t *testing.T) {
		buf := bufferSink(t, config.LoggerConfig{Level: "info", Format: "console", Colors: config.ColorConfig{Info: "chartreuse"}})

		GetLogger().Info("plain")
		Sync()

		assert.Contains(t, buf.String(), "INFO")
		assert.NotContains(t, buf.String(), colorReset)
	})

	t.Run("json format emits structured entries", func(t *testing.T) {
		buf := bufferSink(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"})

		GetLogger().Warn("screenshot write failed", zap.String("name", "agenda"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output should be valid JSON")
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "screenshot write failed", entry["msg"])
		assert.Equal(t, "agenda", entry["name"])
	})

	t.Run("level filters lower entries", func(t *testing.T) {
		buf := bufferSink(t, config.LoggerConfig{Level: "warn", Format: "json"})

		GetLogger().Info("hidden")
		GetLogger().Error("shown")
		Sync()

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("invalid level defaults to info", func(t *testing.T) {
		buf := bufferSink(t, config.LoggerConfig{Level: "verbose", Format: "json"})

		GetLogger().Debug("debug entry")
		GetLogger().Info("info entry")
		Sync()

		assert.NotContains(t, buf.String(), "debug entry")
		assert.Contains(t, buf.String(), "info entry")
	})

	t.Run("writes rotated log file when configured", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "run.log")
		bufferSink(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1})

		GetLogger().Error("this should go to the file")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "this should go to the file")
		assert.Contains(t, string(content), `"level":"ERROR"`, "file output is always JSON")
	})

	t.Run("only the first initialization wins", func(t *testing.T) {
		buf := bufferSink(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"})
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		logger := GetLogger()
		require.NotNil(t, logger)
		assert.Nil(t, globalLogger.Load(), "fallback must not be stored as the global logger")
	})

	t.Run("returns the stored logger", func(t *testing.T) {
		bufferSink(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}

func TestIsBenignSyncError(t *testing.T) {
	assert.True(t, isBenignSyncError(&os.PathError{Op: "sync", Path: "/dev/stdout", Err: os.ErrInvalid}))
	assert.False(t, isBenignSyncError(os.ErrPermission))
}
