//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/fyrsmithlabs/metricsd/internal/config"
)

const (
	fastEmbedMaxLength = 512
	fastEmbedBatchSize = 256
)

// fastEmbedModels maps accepted model names to fastembed models.
var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// FastEmbedder embeds text with a local ONNX model. The ONNX runtime
// library is located through the ONNX_PATH environment variable.
type FastEmbedder struct {
	mu         sync.RWMutex
	model      *fastembed.FlagEmbedding
	dimensions int
}

// NewFastEmbedder loads cfg.Model, downloading it into cfg.CacheDir on first
// use. cfg.Dimensions, when set, must match the model.
func NewFastEmbedder(cfg config.EmbeddingsConfig) (*FastEmbedder, error) {
	model, ok := fastEmbedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrInvalidConfig, cfg.Model)
	}
	dims, _ := fastEmbedModelDimension(cfg.Model)
	if cfg.Dimensions > 0 && cfg.Dimensions != dims {
		return nil, fmt.Errorf("%w: model %s has %d dimensions, configured %d", ErrDimensionMismatch, cfg.Model, dims, cfg.Dimensions)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		if base, err := os.UserCacheDir(); err == nil {
			cacheDir = filepath.Join(base, "metricsd", "models")
		} else {
			cacheDir = filepath.Join(".", "local_cache")
		}
	}

	quiet := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            fastEmbedMaxLength,
		ShowDownloadProgress: &quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}
	return &FastEmbedder{model: flag, dimensions: dims}, nil
}

// EmbedDocuments embeds texts as passages.
func (f *FastEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.model == nil {
		return nil, ErrFastEmbedClosed
	}
	vectors, err := f.model.PassageEmbed(texts, fastEmbedBatchSize)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery embeds a search query.
func (f *FastEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.model == nil {
		return nil, ErrFastEmbedClosed
	}
	vector, err := f.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vector, nil
}

// Dimensions returns the model's vector size.
func (f *FastEmbedder) Dimensions() int { return f.dimensions }

// Close releases the ONNX session. Later calls fail with ErrFastEmbedClosed.
func (f *FastEmbedder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.model == nil {
		return nil
	}
	err := f.model.Destroy()
	f.model = nil
	return err
}
