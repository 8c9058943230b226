package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/quantfold/fingraph/internal/config"
)

func testLoggerConfig(format string) config.LoggerConfig {
	return config.LoggerConfig{
		Level:       "debug",
		Format:      format,
		ServiceName: "fingraph-test",
	}
}

func TestInitialize(t *testing.T) {
	t.Run("should write structured JSON logs", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		Initialize(testLoggerConfig("json"), zapcore.AddSync(&buf))

		logger := GetLogger()
		require.NotNil(t, logger)
		logger.Info("graph evaluated")
		require.NoError(t, logger.Sync())

		out := buf.String()
		assert.Contains(t, out, `"msg":"graph evaluated"`)
		assert.Contains(t, out, "INFO")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var first, second bytes.Buffer
		Initialize(testLoggerConfig("json"), zapcore.AddSync(&first))
		Initialize(testLoggerConfig("json"), zapcore.AddSync(&second))

		GetLogger().Info("routed to the first writer")
		assert.NotEmpty(t, first.String())
		assert.Empty(t, second.String())
	})

	t.Run("should honor the configured level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		cfg := testLoggerConfig("json")
		cfg.Level = "error"
		Initialize(cfg, zapcore.AddSync(&buf))

		GetLogger().Info("below the threshold")
		assert.Empty(t, buf.String())
	})

	t.Run("should fall back to info on a bad level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		cfg := testLoggerConfig("json")
		cfg.Level = "loudest"
		Initialize(cfg, zapcore.AddSync(&buf))

		GetLogger().Info("info is enabled")
		assert.NotEmpty(t, buf.String())
	})

	t.Run("console format should colorize levels", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		var buf bytes.Buffer
		cfg := testLoggerConfig("console")
		cfg.Colors = config.ColorConfig{Info: "green"}
		Initialize(cfg, zapcore.AddSync(&buf))

		GetLogger().Info("colored")
		assert.Contains(t, buf.String(), "\x1b[32mINFO\x1b[0m")
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	assert.NotNil(t, logger, "uninitialized global must still yield a usable logger")
}

func TestSync(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	// Sync on an uninitialized logger must not panic.
	Sync()

	var buf bytes.Buffer
	Initialize(testLoggerConfig("json"), zapcore.AddSync(&buf))
	GetLogger().Info("flushed")
	Sync()
	assert.NotEmpty(t, buf.String())
}
