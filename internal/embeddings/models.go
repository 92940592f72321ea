package embeddings

import "errors"

// ErrFastEmbedClosed is returned after a FastEmbedder has been closed.
var ErrFastEmbedClosed = errors.New("fastembed: embedder closed")

// fastEmbedModelDimension reports the vector size of a supported local model.
func fastEmbedModelDimension(model string) (int, bool) {
	switch model {
	case "BAAI/bge-small-en-v1.5", "sentence-transformers/all-MiniLM-L6-v2":
		return 384, true
	case "BAAI/bge-base-en-v1.5":
		return 768, true
	}
	return 0, false
}
