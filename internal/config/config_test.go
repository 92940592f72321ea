package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, 5*time.Second, cfg.Membership.OperationTimeout)
	assert.Equal(t, "heuristic", cfg.Extraction.Provider)
	assert.Equal(t, 3, cfg.Extraction.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Extraction.InitialBackoff)
	assert.Equal(t, 10*time.Second, cfg.Extraction.MaxBackoff)
	assert.Equal(t, 30*time.Second, cfg.Extraction.RequestTimeout)
	assert.Equal(t, 0.7, cfg.Extraction.ConfidenceThreshold)
	assert.False(t, cfg.Extraction.EnforceConfidence)
	assert.Equal(t, 5, cfg.Validator.BulkThreshold)
	assert.Equal(t, 5, cfg.Validator.MaxListed)
	assert.Equal(t, 128, cfg.Index.CacheSize)
	assert.Equal(t, 100, cfg.Index.MaxResults)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "metric_metadata", cfg.VectorStore.Collection)
	assert.Equal(t, "~/.config/metricsd/vectorstore", cfg.VectorStore.Path)
	assert.False(t, cfg.VectorStore.InMemory)
	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	assert.Equal(t, 384, cfg.VectorStore.VectorSize)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "grpc", cfg.Tracing.Protocol)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no redis address",
			mutate:  func(c *Config) { c.Redis.Addrs = nil },
			wantErr: "redis.addrs",
		},
		{
			name:    "unknown extraction provider",
			mutate:  func(c *Config) { c.Extraction.Provider = "magic" },
			wantErr: "unknown extraction.provider",
		},
		{
			name:    "llm provider without key",
			mutate:  func(c *Config) { c.Extraction.Provider = "openai" },
			wantErr: "extraction.api_key required",
		},
		{
			name: "llm provider with key",
			mutate: func(c *Config) {
				c.Extraction.Provider = "anthropic"
				c.Extraction.APIKey = "sk-ant-test"
			},
		},
		{
			name: "anthropic with base url",
			mutate: func(c *Config) {
				c.Extraction.Provider = "anthropic"
				c.Extraction.APIKey = "sk-ant-test"
				c.Extraction.BaseURL = "http://proxy.local"
			},
			wantErr: "extraction.base_url",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Extraction.ConfidenceThreshold = 1.5 },
			wantErr: "confidence_threshold",
		},
		{
			name:    "backoff inverted",
			mutate:  func(c *Config) { c.Extraction.MaxBackoff = time.Millisecond },
			wantErr: "max_backoff",
		},
		{
			name:    "zero bulk threshold",
			mutate:  func(c *Config) { c.Validator.BulkThreshold = 0 },
			wantErr: "bulk_threshold",
		},
		{
			name:    "unknown vector provider",
			mutate:  func(c *Config) { c.VectorStore.Provider = "faiss" },
			wantErr: "unknown vectorstore.provider",
		},
		{
			name: "qdrant bad port",
			mutate: func(c *Config) {
				c.VectorStore.Provider = "qdrant"
				c.VectorStore.QdrantPort = 70000
			},
			wantErr: "qdrant_port",
		},
		{
			name: "tracing unknown protocol",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Protocol = "thrift"
			},
			wantErr: "tracing.protocol",
		},
		{
			name: "tracing sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 2
			},
			wantErr: "sample_rate",
		},
		{
			name:   "tracing disabled ignores endpoint",
			mutate: func(c *Config) { c.Tracing.Endpoint = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-live-123", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(data))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}
