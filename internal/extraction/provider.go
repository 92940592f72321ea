package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"go.uber.org/zap"
)

// NewExtractor creates an extractor based on configuration.
func NewExtractor(cfg config.ExtractionConfig, logger *zap.Logger) (Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "", "heuristic":
		return NewHeuristicExtractor(), nil
	case "openai", "anthropic":
	default:
		return nil, fmt.Errorf("unknown extraction provider: %s", cfg.Provider)
	}

	model, err := NewProviderModel(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := NewLangchainBackend(model)
	if err != nil {
		return nil, err
	}
	llm, err := NewLLMExtractor(backend, ConfigFrom(cfg), logger.Named("extraction"))
	if err != nil {
		return nil, err
	}

	if cfg.FallbackHeuristic {
		return NewFallbackExtractor(llm, NewHeuristicExtractor(), logger), nil
	}
	return llm, nil
}

// FallbackExtractor answers from a secondary extractor when the primary
// fails with a retryable kind (timeout or connection) after its own retries.
// Authentication, rate limit and response errors are returned unchanged.
type FallbackExtractor struct {
	primary   Extractor
	secondary Extractor
	logger    *zap.Logger
}

// NewFallbackExtractor creates a fallback chain.
func NewFallbackExtractor(primary, secondary Extractor, logger *zap.Logger) *FallbackExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackExtractor{primary: primary, secondary: secondary, logger: logger}
}

// Parse implements Extractor.
func (f *FallbackExtractor) Parse(ctx context.Context, expression string) ([]string, error) {
	ids, err := f.primary.Parse(ctx, expression)
	if err == nil {
		return ids, nil
	}

	var e *Error
	if !errors.As(err, &e) || !e.Kind.Retryable() || ctx.Err() != nil {
		return nil, err
	}

	f.logger.Warn("extraction provider unavailable, using fallback",
		zap.String("kind", string(e.Kind)),
	)
	return f.secondary.Parse(ctx, expression)
}

var _ Extractor = (*FallbackExtractor)(nil)
