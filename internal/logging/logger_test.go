package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferedLogger(t *testing.T, cfg *Config) (*zap.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := newLogger(cfg, zapcore.AddSync(&buf))
	require.NoError(t, err)
	return logger, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestNewLogger_JSONShape(t *testing.T) {
	logger, buf := newBufferedLogger(t, NewDefaultConfig())

	logger.Info("search served", zap.Int("results", 3))

	entry := decodeLine(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "search served", entry["msg"])
	assert.Equal(t, "metricsd", entry["service"])
	assert.Equal(t, float64(3), entry["results"])
	assert.Contains(t, entry, "ts")
}

func TestNewLogger_LevelFilter(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = zapcore.WarnLevel
	logger, buf := newBufferedLogger(t, cfg)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewLogger_NilConfigUsesDefaults(t *testing.T) {
	logger, buf := newBufferedLogger(t, nil)
	logger.Info("hello")
	assert.Equal(t, "metricsd", decodeLine(t, buf)["service"])
}
