// Package membership stores the set of known metric names per namespace.
//
// Each namespace maps to one Redis set under the key
// "{namespace}#metric_names". The empty namespace is normalized to
// DefaultNamespace before the key is built, so "" and "default" address the
// same set. Key is the only place a key is derived.
package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/metricsd/internal/sanitize"
)

const (
	// DefaultNamespace replaces the empty namespace.
	DefaultNamespace = "default"

	keySuffix = "#metric_names"

	// DefaultOperationTimeout bounds every backend call.
	DefaultOperationTimeout = 5 * time.Second
)

// ErrInvalidArgument indicates a caller passed an unusable namespace or name.
var ErrInvalidArgument = fmt.Errorf("%w: invalid argument", sanitize.ErrValidation)

// Store is a per-namespace set of metric names.
type Store interface {
	// SetNames atomically replaces the namespace's set. An empty slice
	// clears it. An empty or whitespace-only name rejects the whole call
	// with ErrInvalidArgument and leaves the set untouched.
	SetNames(ctx context.Context, namespace string, names []string) error

	// GetNames returns the namespace's set, empty (never nil) when the
	// namespace is unknown.
	GetNames(ctx context.Context, namespace string) (map[string]struct{}, error)

	// AddName adds one name. Empty or whitespace-only names are rejected
	// with ErrInvalidArgument.
	AddName(ctx context.Context, namespace, name string) error

	// IsMember reports whether name is in the namespace's set.
	IsMember(ctx context.Context, namespace, name string) (bool, error)
}

// Config holds store settings.
type Config struct {
	OperationTimeout time.Duration
}

// Normalize maps the empty namespace to DefaultNamespace.
func Normalize(namespace string) string {
	if namespace == "" {
		return DefaultNamespace
	}
	return namespace
}

// Key returns the backend key for a namespace: Normalize(namespace) +
// "#metric_names". Key("") == Key("default") == "default#metric_names".
func Key(namespace string) string {
	return Normalize(namespace) + keySuffix
}

func checkNamespace(namespace string) error {
	if err := sanitize.ValidateNamespace(namespace); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}
