// internal/observability/logger_test.go
package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/tistorylab/autopub/internal/config"
)

func TestInitialize(t *testing.T) {
	t.Run("ConsoleFormatWithColors", func(t *testing.T) {
		ResetForTest()
		buf := &zaptest.Buffer{}

		Initialize(config.LoggerConfig{Level: "debug", Format: "console"}, buf)
		GetLogger().Info("hello from console")

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "hello from console")
		assert.Contains(t, output, colorGreen)
		assert.Contains(t, output, colorReset)
	})

	t.Run("JSONFormat", func(t *testing.T) {
		ResetForTest()
		buf := &zaptest.Buffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, buf)
		GetLogger().Warn("structured message", zap.String("key", "value"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "structured message", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("FileSink", func(t *testing.T) {
		ResetForTest()
		logPath := filepath.Join(t.TempDir(), "autopub.log")

		Initialize(config.LoggerConfig{Level: "debug", Format: "json", FilePath: logPath}, zapcore.AddSync(&zaptest.Buffer{}))
		GetLogger().Error("this should reach the file")
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "this should reach the file")
	})

	t.Run("InitializesOnce", func(t *testing.T) {
		ResetForTest()
		buf := &zaptest.Buffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, buf)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "console"}, &zaptest.Buffer{})
		second := GetLogger()

		assert.Same(t, first, second)
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("FallbackBeforeInitialize", func(t *testing.T) {
		ResetForTest()
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("ReturnsGlobalAfterInitialize", func(t *testing.T) {
		ResetForTest()
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, &zaptest.Buffer{})
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}
