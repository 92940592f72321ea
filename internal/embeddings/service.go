// Package embeddings turns metric documents and search queries into
// vectors for the similarity backends.
//
// Service talks to any OpenAI-compatible endpoint (OpenAI itself or a
// local TEI server) through langchaingo. HashEmbedder computes
// feature-hashed vectors locally with no network access. FastEmbedder runs
// ONNX models in process and needs a cgo build. New picks one from
// config.EmbeddingsConfig and records latency for it.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"github.com/fyrsmithlabs/metricsd/internal/telemetry"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrDimensionMismatch indicates the provider returned vectors of an
	// unexpected size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider names accepted by New.
const (
	ProviderHash      = "hash"
	ProviderOpenAI    = "openai"
	ProviderFastEmbed = "fastembed"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// New builds the embedder selected by cfg.Provider. The result implements
// io.Closer; closing releases model resources where the provider holds any.
func New(cfg config.EmbeddingsConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)
	provider := cfg.Provider
	switch provider {
	case "", ProviderHash:
		provider = ProviderHash
		inner, err = NewHashEmbedder(cfg.Dimensions)
	case ProviderOpenAI:
		inner, err = NewService(cfg)
	case ProviderFastEmbed:
		inner, err = NewFastEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &instrumented{inner: inner, provider: provider}, nil
}

// instrumented records latency and failures of the wrapped embedder.
type instrumented struct {
	inner    Embedder
	provider string
}

func (e *instrumented) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := e.inner.EmbedDocuments(ctx, texts)
	e.observe("documents", start, err)
	return vectors, err
}

func (e *instrumented) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := e.inner.EmbedQuery(ctx, text)
	e.observe("query", start, err)
	return vector, err
}

func (e *instrumented) Close() error {
	if c, ok := e.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (e *instrumented) observe(op string, start time.Time, err error) {
	telemetry.EmbedDuration.WithLabelValues(e.provider, op).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.EmbedErrors.WithLabelValues(e.provider, op).Inc()
	}
}

// Service generates embeddings through an OpenAI-compatible API.
type Service struct {
	embedder   embeddings.Embedder
	dimensions int
}

// NewService creates a Service from cfg. BaseURL and Model are required;
// the API key is optional because TEI servers do not check it.
func NewService(cfg config.EmbeddingsConfig) (*Service, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("%w: dimensions must not be negative", ErrInvalidConfig)
	}

	token := cfg.APIKey.Value()
	if token == "" {
		// langchaingo refuses an empty token even for servers that ignore it
		token = "unused"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return newService(embedder, cfg.Dimensions), nil
}

func newService(embedder embeddings.Embedder, dimensions int) *Service {
	return &Service{embedder: embedder, dimensions: dimensions}
}

// EmbedDocuments embeds each text. Every returned vector has the
// configured dimensions when Dimensions is set.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding documents: got %d vectors for %d texts", len(vectors), len(texts))
	}
	for _, v := range vectors {
		if err := s.checkDimensions(v); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if err := s.checkDimensions(vector); err != nil {
		return nil, err
	}
	return vector, nil
}

func (s *Service) checkDimensions(v []float32) error {
	if s.dimensions > 0 && len(v) != s.dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), s.dimensions)
	}
	return nil
}
