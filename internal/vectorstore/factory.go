package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"github.com/fyrsmithlabs/metricsd/internal/sanitize"
	"go.uber.org/zap"
)

// New builds the backend selected by cfg.Provider. The collection name is
// normalized with sanitize.Identifier, so "Prod.Catalog" becomes
// "prod_catalog".
func New(ctx context.Context, cfg config.VectorStoreConfig, embedder Embedder, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	collection := CollectionName(cfg.Collection)
	if collection != cfg.Collection {
		logger.Info("normalized collection name",
			zap.String("configured", cfg.Collection),
			zap.String("collection", collection),
		)
	}

	switch cfg.Provider {
	case "", "chromem":
		path := cfg.Path
		if cfg.InMemory {
			path = ""
		}
		return NewChromemStore(ChromemConfig{
			Collection: collection,
			Path:       path,
			Compress:   cfg.Compress,
		}, embedder, logger)
	case "qdrant":
		if cfg.VectorSize < 0 {
			return nil, fmt.Errorf("%w: vector size must not be negative", ErrInvalidConfig)
		}
		return NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey.Value(),
			UseTLS:     cfg.QdrantTLS,
			Collection: collection,
			VectorSize: uint64(cfg.VectorSize),
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// CollectionName maps a configured name onto one both backends accept.
// An empty name keeps the default collection.
func CollectionName(name string) string {
	if name == "" {
		return ""
	}
	return sanitize.Identifier(name)
}
