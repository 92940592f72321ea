package logging

import (
	"testing"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSecretField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info("provider configured", Secret("api_key", config.Secret("sk-1234567890abcdef")))

	entries := tl.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "[REDACTED:19]", entries[0].ContextMap()["api_key"])
	}
}

func TestSecretField_Unset(t *testing.T) {
	tl := NewTestLogger()
	tl.Info("provider configured", Secret("api_key", ""))
	assert.Equal(t, "", tl.All()[0].ContextMap()["api_key"])
}

func TestRedactingEncoder_FieldNames(t *testing.T) {
	logger, buf := newBufferedLogger(t, NewDefaultConfig())

	logger.Info("calling provider",
		zap.String("api_key", "plain-value"),
		zap.String("Authorization", "Basic abc"),
		zap.String("model", "gpt-4o-mini"),
	)

	entry := decodeLine(t, buf)
	assert.Equal(t, "[REDACTED]", entry["api_key"])
	assert.Equal(t, "[REDACTED]", entry["Authorization"])
	assert.Equal(t, "gpt-4o-mini", entry["model"])
}

func TestRedactingEncoder_ValuePatterns(t *testing.T) {
	logger, buf := newBufferedLogger(t, NewDefaultConfig())

	logger.Warn("upstream said", zap.String("detail", "invalid header Bearer abc.def.ghi"))

	entry := decodeLine(t, buf)
	assert.Equal(t, "[REDACTED:pattern]", entry["detail"])
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	logger, buf := newBufferedLogger(t, NewDefaultConfig())

	logger.With(zap.String("token", "abc")).Info("child")

	entry := decodeLine(t, buf)
	assert.Equal(t, "[REDACTED]", entry["token"])
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Redaction.Enabled = false
	logger, buf := newBufferedLogger(t, cfg)

	logger.Info("raw", zap.String("api_key", "visible"))

	assert.Equal(t, "visible", decodeLine(t, buf)["api_key"])
}
