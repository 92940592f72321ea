package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrValidation is the root of every caller-input error in metricsd.
// Package-specific validation errors wrap it so errors.Is works across
// package boundaries.
var ErrValidation = errors.New("validation failed")

// Validation errors for input checks.
var (
	// ErrInvalidMetricName indicates a metric name does not match MetricNamePattern.
	ErrInvalidMetricName = fmt.Errorf("%w: invalid metric name", ErrValidation)

	// ErrInvalidNamespace indicates a namespace cannot be used as a store key.
	ErrInvalidNamespace = fmt.Errorf("%w: invalid namespace", ErrValidation)

	// ErrTooLong indicates a field exceeds its maximum length.
	ErrTooLong = fmt.Errorf("%w: value too long", ErrValidation)

	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = fmt.Errorf("%w: path contains directory traversal", ErrValidation)

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = fmt.Errorf("%w: path cannot be empty", ErrValidation)
)

const (
	// MaxMetricNameLength is the longest metric name accepted at ingestion.
	MaxMetricNameLength = 255

	// MaxNamespaceLength bounds namespace keys.
	MaxNamespaceLength = 512
)

// MetricNamePattern is the authoritative ingestion pattern for metric names:
// word characters, dot, underscore, dash and slash.
var MetricNamePattern = regexp.MustCompile(`^[\p{L}\p{N}\p{M}_.\-/]+$`)

// ValidateMetricName checks a metric name against MetricNamePattern and
// MaxMetricNameLength.
func ValidateMetricName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidMetricName)
	}
	if n := utf8.RuneCountInString(name); n > MaxMetricNameLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrInvalidMetricName, n, MaxMetricNameLength)
	}
	if !MetricNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must contain only letters, digits, '_', '.', '-' or '/'", ErrInvalidMetricName, name)
	}
	return nil
}

// ValidateNamespace checks that a namespace can form a store key.
// The empty namespace is valid and maps to the default namespace.
func ValidateNamespace(ns string) error {
	if HasControl(ns) {
		return fmt.Errorf("%w: contains control characters", ErrInvalidNamespace)
	}
	if len(ns) > MaxNamespaceLength {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrInvalidNamespace, len(ns), MaxNamespaceLength)
	}
	return nil
}

// ValidateLength checks that value has at most max characters.
func ValidateLength(field, value string, max int) error {
	if n := utf8.RuneCountInString(value); n > max {
		return fmt.Errorf("%w: %s has %d characters (max %d)", ErrTooLong, field, n, max)
	}
	return nil
}

// ValidatePath checks a path for security issues:
//   - No directory traversal (..)
//   - Resolves to absolute path and validates it stays within expected root
//   - Returns the cleaned, absolute path or an error
//
// If allowedRoot is empty, only traversal checks are performed.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: contains '..'", ErrPathTraversal)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if allowedRoot != "" {
		absRoot, err := filepath.Abs(allowedRoot)
		if err != nil {
			return "", fmt.Errorf("failed to resolve allowed root: %w", err)
		}
		rel, err := filepath.Rel(absRoot, absPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("%w: path escapes allowed root", ErrPathTraversal)
		}
	}

	return absPath, nil
}
