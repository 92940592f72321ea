// Package service wires the metricsd components together and exposes
// their public operations behind one facade.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"github.com/fyrsmithlabs/metricsd/internal/embeddings"
	"github.com/fyrsmithlabs/metricsd/internal/extraction"
	"github.com/fyrsmithlabs/metricsd/internal/membership"
	"github.com/fyrsmithlabs/metricsd/internal/metadata"
	"github.com/fyrsmithlabs/metricsd/internal/validator"
	"github.com/fyrsmithlabs/metricsd/internal/vectorstore"
	"go.uber.org/zap"
)

// Components are the backends a Service is built from.
type Components struct {
	Extractor extraction.Extractor
	Names     membership.Store
	Vectors   vectorstore.Store
}

// Service is the public call surface of metricsd.
type Service struct {
	validator *validator.Validator
	index     *metadata.Index
	names     membership.Store
	vectors   vectorstore.Store
	logger    *zap.Logger

	// closers run in reverse order on Close
	closers []func() error
}

// New builds every backend from cfg: a Redis client for membership, the
// configured extractor, embedder and vector store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("service requires a config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := membership.NewClient(cfg.Redis)
	names, err := membership.NewRedisStore(client, membership.Config{
		OperationTimeout: cfg.Membership.OperationTimeout,
	}, logger.Named("membership"))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("creating membership store: %w", err)
	}

	extractor, err := extraction.NewExtractor(cfg.Extraction, logger.Named("extraction"))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("creating extractor: %w", err)
	}

	embedder, err := embeddings.New(cfg.Embeddings)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	closeEmbedder := func() error {
		if c, ok := embedder.(io.Closer); ok {
			return c.Close()
		}
		return nil
	}

	vectors, err := vectorstore.New(ctx, cfg.VectorStore, embedder, logger.Named("vectorstore"))
	if err != nil {
		_ = closeEmbedder()
		_ = client.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	svc, err := NewWithComponents(Components{
		Extractor: extractor,
		Names:     names,
		Vectors:   vectors,
	}, cfg, logger)
	if err != nil {
		_ = vectors.Close()
		_ = closeEmbedder()
		_ = client.Close()
		return nil, err
	}
	svc.closers = append([]func() error{closeEmbedder}, svc.closers...)
	svc.closers = append(svc.closers, client.Close)
	return svc, nil
}

// NewWithComponents builds a Service over caller-supplied backends. Only
// the validator and index sections of cfg are read. The vector store is
// closed by Close.
func NewWithComponents(c Components, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if c.Extractor == nil || c.Names == nil || c.Vectors == nil {
		return nil, errors.New("service requires an extractor, a membership store and a vector store")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v, err := validator.New(c.Extractor, c.Names, validator.ConfigFrom(cfg.Validator), logger.Named("validator"))
	if err != nil {
		return nil, fmt.Errorf("creating validator: %w", err)
	}

	idx, err := metadata.NewIndex(c.Vectors, metadata.ConfigFrom(cfg.Index), logger.Named("metadata"))
	if err != nil {
		return nil, fmt.Errorf("creating metadata index: %w", err)
	}

	return &Service{
		validator: v,
		index:     idx,
		names:     c.Names,
		vectors:   c.Vectors,
		logger:    logger,
		closers:   []func() error{c.Vectors.Close},
	}, nil
}

// ValidateExpression checks that every metric in expression is registered
// in namespace.
func (s *Service) ValidateExpression(ctx context.Context, namespace, expression string) (validator.Result, error) {
	return s.validator.Validate(ctx, namespace, expression)
}

// SearchMetadata returns metrics ranked by similarity to query.
func (s *Service) SearchMetadata(ctx context.Context, query string, maxResults int) ([]metadata.SearchResult, error) {
	return s.index.Search(ctx, query, maxResults)
}

// IndexMetadata stores or replaces one metric's metadata.
func (s *Service) IndexMetadata(ctx context.Context, m metadata.MetricMetadata) (string, error) {
	return s.index.Index(ctx, m)
}

// IndexMetadataBatch stores several entries after validating all of them.
func (s *Service) IndexMetadataBatch(ctx context.Context, entries []metadata.MetricMetadata) ([]string, error) {
	return s.index.IndexBatch(ctx, entries)
}

// MetadataCount returns the number of indexed metrics.
func (s *Service) MetadataCount(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

// SetNames replaces a namespace's registered metric names.
func (s *Service) SetNames(ctx context.Context, namespace string, names []string) error {
	return s.names.SetNames(ctx, namespace, names)
}

// GetNames returns a namespace's registered names, sorted.
func (s *Service) GetNames(ctx context.Context, namespace string) ([]string, error) {
	set, err := s.names.GetNames(ctx, namespace)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.Sort(out)
	return out, nil
}

// AddName registers one metric name in a namespace.
func (s *Service) AddName(ctx context.Context, namespace, name string) error {
	return s.names.AddName(ctx, namespace, name)
}

// IsMember reports whether name is registered in namespace.
func (s *Service) IsMember(ctx context.Context, namespace, name string) (bool, error) {
	return s.names.IsMember(ctx, namespace, name)
}

// Close releases backend connections.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
