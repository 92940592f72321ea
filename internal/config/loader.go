package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "METRICSD_"

	// DefaultVectorStorePath holds the embedded chromem database.
	DefaultVectorStorePath = "~/.config/metricsd/vectorstore"
)

// LoadWithFile loads configuration from YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (METRICSD_EXTRACTION_MAX_ATTEMPTS, ...)
//  2. YAML config file (~/.config/metricsd/config.yaml)
//  3. Hardcoded defaults
//
// A missing file is not an error. An existing file must live under
// ~/.config/metricsd/ or /etc/metricsd/, must not be readable or writable by
// other users and must be at most 1MB.
//
// # Environment Variable Mapping
//
// The prefix is stripped and the remainder is split on the first
// underscore into section and field:
//
//	METRICSD_EXTRACTION_MAX_ATTEMPTS  -> extraction.max_attempts
//	METRICSD_REDIS_ADDRS              -> redis.addrs
//	METRICSD_VECTORSTORE_QDRANT_HOST  -> vectorstore.qdrant_host
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "metricsd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps METRICSD_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens the file once and validates it through the open
// descriptor to avoid a TOCTOU race between stat and read.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: more than %d bytes", maxConfigFileSize)
	}
	return content, nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "metricsd"),
		"/etc/metricsd",
	}
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/metricsd/ or /etc/metricsd/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o007 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be accessible by other users)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if len(cfg.Redis.Addrs) == 0 {
		cfg.Redis.Addrs = []string{"localhost:6379"}
	}
	if cfg.Membership.OperationTimeout == 0 {
		cfg.Membership.OperationTimeout = 5 * time.Second
	}

	// Extraction defaults
	if cfg.Extraction.Provider == "" {
		cfg.Extraction.Provider = "heuristic"
	}
	if cfg.Extraction.Model == "" {
		switch cfg.Extraction.Provider {
		case "openai":
			cfg.Extraction.Model = "gpt-4o-mini"
		case "anthropic":
			cfg.Extraction.Model = "claude-3-5-haiku-latest"
		}
	}
	if cfg.Extraction.MaxAttempts == 0 {
		cfg.Extraction.MaxAttempts = 3
	}
	if cfg.Extraction.InitialBackoff == 0 {
		cfg.Extraction.InitialBackoff = time.Second
	}
	if cfg.Extraction.MaxBackoff == 0 {
		cfg.Extraction.MaxBackoff = 10 * time.Second
	}
	if cfg.Extraction.RequestTimeout == 0 {
		cfg.Extraction.RequestTimeout = 30 * time.Second
	}
	if cfg.Extraction.ConfidenceThreshold == 0 {
		cfg.Extraction.ConfidenceThreshold = 0.7
	}
	if cfg.Extraction.RatePerMinute == 0 {
		cfg.Extraction.RatePerMinute = 50
	}
	if cfg.Extraction.RateBurst == 0 {
		cfg.Extraction.RateBurst = 5
	}

	if cfg.Validator.BulkThreshold == 0 {
		cfg.Validator.BulkThreshold = 5
	}
	if cfg.Validator.MaxListed == 0 {
		cfg.Validator.MaxListed = 5
	}

	if cfg.Index.CacheSize == 0 {
		cfg.Index.CacheSize = 128
	}
	if cfg.Index.MaxResults == 0 {
		cfg.Index.MaxResults = 100
	}
	if cfg.Index.OperationTimeout == 0 {
		cfg.Index.OperationTimeout = 30 * time.Second
	}

	// VectorStore defaults (chromem is default - embedded, no external deps)
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "metric_metadata"
	}
	if cfg.VectorStore.Path == "" && !cfg.VectorStore.InMemory && cfg.VectorStore.Provider == "chromem" {
		cfg.VectorStore.Path = DefaultVectorStorePath
	}
	if cfg.VectorStore.QdrantHost == "" {
		cfg.VectorStore.QdrantHost = "localhost"
	}
	if cfg.VectorStore.QdrantPort == 0 {
		cfg.VectorStore.QdrantPort = 6334
	}

	// Embeddings defaults
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "hash"
	}
	if cfg.Embeddings.BaseURL == "" && cfg.Embeddings.Provider == "openai" {
		cfg.Embeddings.BaseURL = "http://localhost:8080/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Dimensions == 0 {
		cfg.Embeddings.Dimensions = 384 // bge-small-en-v1.5 dimensions
	}
	if cfg.VectorStore.VectorSize == 0 {
		cfg.VectorStore.VectorSize = cfg.Embeddings.Dimensions
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = "localhost:4317"
	}
	if cfg.Tracing.Protocol == "" {
		cfg.Tracing.Protocol = "grpc"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "metricsd"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
}
