package extraction

import (
	"context"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/metricsd/internal/config"
)

// Extractor returns the distinct metric identifiers referenced by an
// expression, in first-seen order.
type Extractor interface {
	Parse(ctx context.Context, expression string) ([]string, error)
}

// Result is a normalized extraction: identifiers are lowercase, trimmed,
// non-empty and distinct, and Confidence is within [0,1].
type Result struct {
	Identifiers []string `json:"identifiers"`
	Confidence  float64  `json:"confidence"`
}

// RawResult is the structured object decoded from a backend response before
// normalization. Values are kept loosely typed so a malformed item or a
// non-numeric confidence degrades instead of failing the whole response.
type RawResult struct {
	Identifiers []any `json:"identifiers"`
	Confidence  any   `json:"confidence"`
}

// Backend asks an external service for the identifiers in an expression.
type Backend interface {
	Extract(ctx context.Context, expression, instruction string) (RawResult, error)
}

// Generation-time constraints on returned identifiers.
const (
	MaxIdentifierLength = 256
)

// IdentifierPattern is the shape every returned identifier must have.
var IdentifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_.]*$`)

// Default configuration values.
const (
	defaultMaxAttempts         = 3
	defaultInitialBackoff      = 1 * time.Second
	defaultMaxBackoff          = 10 * time.Second
	defaultRequestTimeout      = 30 * time.Second
	defaultConfidenceThreshold = 0.7
	defaultRatePerMinute       = 50.0
	defaultBurst               = 5
)

// Config configures an LLMExtractor. Zero values take defaults.
type Config struct {
	MaxAttempts         int
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	RequestTimeout      time.Duration
	ConfidenceThreshold float64
	// EnforceConfidence turns a below-threshold confidence into a
	// KindLowConfidence error instead of a warning.
	EnforceConfidence bool
	// RatePerMinute caps outbound requests. Negative disables limiting.
	RatePerMinute float64
	RateBurst     int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         defaultMaxAttempts,
		InitialBackoff:      defaultInitialBackoff,
		MaxBackoff:          defaultMaxBackoff,
		RequestTimeout:      defaultRequestTimeout,
		ConfidenceThreshold: defaultConfidenceThreshold,
		RatePerMinute:       defaultRatePerMinute,
		RateBurst:           defaultBurst,
	}
}

// ConfigFrom maps the extraction config section onto Config.
func ConfigFrom(c config.ExtractionConfig) Config {
	return Config{
		MaxAttempts:         c.MaxAttempts,
		InitialBackoff:      c.InitialBackoff,
		MaxBackoff:          c.MaxBackoff,
		RequestTimeout:      c.RequestTimeout,
		ConfidenceThreshold: c.ConfidenceThreshold,
		EnforceConfidence:   c.EnforceConfidence,
		RatePerMinute:       c.RatePerMinute,
		RateBurst:           c.RateBurst,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.RatePerMinute == 0 {
		c.RatePerMinute = d.RatePerMinute
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	return c
}
