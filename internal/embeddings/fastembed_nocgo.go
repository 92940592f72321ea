//go:build !cgo

package embeddings

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/metricsd/internal/config"
)

// ErrFastEmbedUnavailable is returned by NewFastEmbedder in builds without cgo.
var ErrFastEmbedUnavailable = errors.New("fastembed requires a cgo build; use the hash or openai provider")

// FastEmbedder is unavailable without cgo.
type FastEmbedder struct{}

// NewFastEmbedder always fails without cgo.
func NewFastEmbedder(config.EmbeddingsConfig) (*FastEmbedder, error) {
	return nil, ErrFastEmbedUnavailable
}

func (*FastEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (*FastEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (*FastEmbedder) Dimensions() int { return 0 }

func (*FastEmbedder) Close() error { return nil }
