// Package config provides configuration loading for metricsd.
//
// Configuration is read from a YAML file and overridden by METRICSD_*
// environment variables. Every section has defaults, so an empty file (or
// no file at all) yields a working offline setup: heuristic extraction,
// in-memory chromem vectors and a local Redis.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete metricsd configuration.
type Config struct {
	Redis       RedisConfig       `koanf:"redis"`
	Membership  MembershipConfig  `koanf:"membership"`
	Extraction  ExtractionConfig  `koanf:"extraction"`
	Validator   ValidatorConfig   `koanf:"validator"`
	Index       IndexConfig       `koanf:"index"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Logging     LoggingConfig     `koanf:"logging"`
	Tracing     TracingConfig     `koanf:"tracing"`
}

// RedisConfig holds connection settings for the membership backend.
// A single address yields a plain client, several addresses a cluster client.
type RedisConfig struct {
	Addrs      []string `koanf:"addrs"`
	Username   string   `koanf:"username"`
	Password   Secret   `koanf:"password"`
	DB         int      `koanf:"db"`
	MasterName string   `koanf:"master_name"`
}

// MembershipConfig holds namespace membership store settings.
type MembershipConfig struct {
	OperationTimeout time.Duration `koanf:"operation_timeout"`
}

// ExtractionConfig holds expression extraction settings.
type ExtractionConfig struct {
	// Provider is one of "heuristic", "openai" or "anthropic".
	Provider            string        `koanf:"provider"`
	Model               string        `koanf:"model"`
	APIKey              Secret        `koanf:"api_key"`
	BaseURL             string        `koanf:"base_url"`
	MaxAttempts         int           `koanf:"max_attempts"`
	InitialBackoff      time.Duration `koanf:"initial_backoff"`
	MaxBackoff          time.Duration `koanf:"max_backoff"`
	RequestTimeout      time.Duration `koanf:"request_timeout"`
	ConfidenceThreshold float64       `koanf:"confidence_threshold"`
	EnforceConfidence   bool          `koanf:"enforce_confidence"`
	RatePerMinute       float64       `koanf:"rate_per_minute"`
	RateBurst           int           `koanf:"rate_burst"`
	// FallbackHeuristic answers with the heuristic parser when the LLM
	// provider fails with a retryable (timeout or connection) error.
	FallbackHeuristic bool `koanf:"fallback_heuristic"`
}

// ValidatorConfig holds schema validator settings.
type ValidatorConfig struct {
	BulkThreshold int `koanf:"bulk_threshold"`
	MaxListed     int `koanf:"max_listed"`
}

// IndexConfig holds semantic metadata index settings.
type IndexConfig struct {
	CacheSize        int           `koanf:"cache_size"`
	MaxResults       int           `koanf:"max_results"`
	OperationTimeout time.Duration `koanf:"operation_timeout"`
}

// VectorStoreConfig selects and configures the vector backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded) or "qdrant".
	Provider   string `koanf:"provider"`
	Collection string `koanf:"collection"`
	// Path is the chromem persistence directory, default
	// ~/.config/metricsd/vectorstore. InMemory disables persistence.
	Path         string `koanf:"path"`
	InMemory     bool   `koanf:"in_memory"`
	Compress     bool   `koanf:"compress"`
	QdrantHost   string `koanf:"qdrant_host"`
	QdrantPort   int    `koanf:"qdrant_port"`
	QdrantAPIKey Secret `koanf:"qdrant_api_key"`
	QdrantTLS    bool   `koanf:"qdrant_tls"`
	VectorSize   int    `koanf:"vector_size"`
}

// EmbeddingsConfig configures the embedder feeding the vector backend.
type EmbeddingsConfig struct {
	// Provider is "hash" (offline, deterministic), "openai" (any
	// OpenAI-compatible endpoint, including a local TEI server) or
	// "fastembed" (local ONNX models, cgo builds only).
	Provider   string `koanf:"provider"`
	BaseURL    string `koanf:"base_url"`
	Model      string `koanf:"model"`
	APIKey     Secret `koanf:"api_key"`
	Dimensions int    `koanf:"dimensions"`
	// CacheDir holds downloaded ONNX models for the fastembed provider.
	CacheDir string `koanf:"cache_dir"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TracingConfig controls OTLP span export. Disabled by default.
type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
	// Endpoint is host:port of the collector. An http(s):// scheme is
	// stripped for the HTTP exporter.
	Endpoint string `koanf:"endpoint"`
	// Protocol is "grpc" or "http/protobuf".
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
	ServiceName string  `koanf:"service_name"`
}

// Validate validates the tracing section.
func (t *TracingConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.Endpoint == "" {
		return errors.New("tracing.endpoint required when tracing is enabled")
	}
	if t.ServiceName == "" {
		return errors.New("tracing.service_name must not be empty")
	}
	switch t.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("unknown tracing.protocol %q (want grpc or http/protobuf)", t.Protocol)
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0,1], got %v", t.SampleRate)
	}
	return nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Redis.Addrs) == 0 {
		return errors.New("redis.addrs must not be empty")
	}
	if c.Membership.OperationTimeout <= 0 {
		return errors.New("membership.operation_timeout must be positive")
	}

	switch c.Extraction.Provider {
	case "heuristic":
	case "openai", "anthropic":
		if !c.Extraction.APIKey.IsSet() {
			return fmt.Errorf("extraction.api_key required for provider %q", c.Extraction.Provider)
		}
		if c.Extraction.Provider == "anthropic" && c.Extraction.BaseURL != "" {
			return errors.New("extraction.base_url is only supported for provider \"openai\"")
		}
	default:
		return fmt.Errorf("unknown extraction.provider %q (want heuristic, openai or anthropic)", c.Extraction.Provider)
	}
	if c.Extraction.MaxAttempts < 1 {
		return fmt.Errorf("extraction.max_attempts must be >= 1, got %d", c.Extraction.MaxAttempts)
	}
	if c.Extraction.ConfidenceThreshold < 0 || c.Extraction.ConfidenceThreshold > 1 {
		return fmt.Errorf("extraction.confidence_threshold must be within [0,1], got %v", c.Extraction.ConfidenceThreshold)
	}
	if c.Extraction.MaxBackoff < c.Extraction.InitialBackoff {
		return errors.New("extraction.max_backoff must be >= extraction.initial_backoff")
	}

	if c.Validator.BulkThreshold < 1 {
		return fmt.Errorf("validator.bulk_threshold must be >= 1, got %d", c.Validator.BulkThreshold)
	}
	if c.Index.CacheSize < 1 {
		return fmt.Errorf("index.cache_size must be >= 1, got %d", c.Index.CacheSize)
	}
	if c.Index.MaxResults < 1 {
		return fmt.Errorf("index.max_results must be >= 1, got %d", c.Index.MaxResults)
	}

	if err := c.VectorStore.Validate(); err != nil {
		return err
	}
	return c.Tracing.Validate()
}

// Validate validates the vector store section.
func (v *VectorStoreConfig) Validate() error {
	switch v.Provider {
	case "chromem":
	case "qdrant":
		if v.QdrantHost == "" {
			return errors.New("vectorstore.qdrant_host required for qdrant provider")
		}
		if v.QdrantPort < 1 || v.QdrantPort > 65535 {
			return fmt.Errorf("invalid vectorstore.qdrant_port: %d (must be 1-65535)", v.QdrantPort)
		}
		if v.VectorSize < 1 {
			return errors.New("vectorstore.vector_size must be positive for qdrant provider")
		}
	default:
		return fmt.Errorf("unknown vectorstore.provider %q (want chromem or qdrant)", v.Provider)
	}
	if v.Collection == "" {
		return errors.New("vectorstore.collection must not be empty")
	}
	return nil
}
