package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmptyQuery indicates an empty query text.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern matches names both backends accept.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Document is one searchable entry. ID is the primary key.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Match is one similarity hit. Distance is the cosine distance between
// query and document, so 0 is identical and 1 is orthogonal.
type Match struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float64
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is a cosine-similarity document store keyed by document ID.
type Store interface {
	// Upsert inserts documents, replacing any stored under the same ID.
	Upsert(ctx context.Context, docs []Document) error

	// Query returns up to k documents ordered by ascending distance.
	// A store with fewer than k documents returns all of them.
	Query(ctx context.Context, text string, k int) ([]Match, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// ValidateCollectionName checks name against ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

func validateDocuments(docs []Document) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("%w: document %d has no ID", ErrEmptyDocuments, i)
		}
	}
	return nil
}

func contents(docs []Document) []string {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	return texts
}
