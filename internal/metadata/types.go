// Package metadata implements the semantic metric metadata index: metric
// descriptions are stored in a vector backend keyed by metric name and
// searched with natural-language queries through a bounded result cache.
package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/metricsd/internal/sanitize"
	"github.com/fyrsmithlabs/metricsd/internal/vectorstore"
)

// ErrMissingField is returned when a required field is absent.
var ErrMissingField = fmt.Errorf("%w: missing required field", sanitize.ErrValidation)

// ValidationError reports a caller input that failed a field check.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying cause, or sanitize.ErrValidation.
func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sanitize.ErrValidation
}

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MetricMetadata describes one metric. Name is the primary key.
type MetricMetadata struct {
	Name                    string `json:"name" yaml:"name"`
	Type                    string `json:"type,omitempty" yaml:"type,omitempty"`
	Description             string `json:"description,omitempty" yaml:"description,omitempty"`
	Unit                    string `json:"unit,omitempty" yaml:"unit,omitempty"`
	Category                string `json:"category,omitempty" yaml:"category,omitempty"`
	Subcategory             string `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	CategoryDescription     string `json:"category_description,omitempty" yaml:"category_description,omitempty"`
	GoldenSignalType        string `json:"golden_signal_type,omitempty" yaml:"golden_signal_type,omitempty"`
	GoldenSignalDescription string `json:"golden_signal_description,omitempty" yaml:"golden_signal_description,omitempty"`
	MeterType               string `json:"meter_type,omitempty" yaml:"meter_type,omitempty"`
	MeterTypeDescription    string `json:"meter_type_description,omitempty" yaml:"meter_type_description,omitempty"`
}

// SearchResult is one ranked hit: the metric's metadata plus a score in
// [0,1] where 1 means identical.
type SearchResult struct {
	MetricMetadata `yaml:",inline"`
	Score          float64 `json:"score" yaml:"score"`
}

// VectorIndex is the similarity backend behind an Index.
type VectorIndex interface {
	Upsert(ctx context.Context, docs []vectorstore.Document) error
	Query(ctx context.Context, text string, k int) ([]vectorstore.Match, error)
	Count(ctx context.Context) (int, error)
}

// Metadata keys stored next to each document.
const (
	keyType                    = "type"
	keyDescription             = "description"
	keyUnit                    = "unit"
	keyCategory                = "category"
	keySubcategory             = "subcategory"
	keyCategoryDescription     = "category_description"
	keyGoldenSignalType        = "golden_signal_type"
	keyGoldenSignalDescription = "golden_signal_description"
	keyMeterType               = "meter_type"
	keyMeterTypeDescription    = "meter_type_description"
)

type textField struct {
	name  string
	value *string
}

// textFields lists every free-text field with its metadata key.
func (m *MetricMetadata) textFields() []textField {
	return []textField{
		{keyType, &m.Type},
		{keyDescription, &m.Description},
		{keyUnit, &m.Unit},
		{keyCategory, &m.Category},
		{keySubcategory, &m.Subcategory},
		{keyCategoryDescription, &m.CategoryDescription},
		{keyGoldenSignalType, &m.GoldenSignalType},
		{keyGoldenSignalDescription, &m.GoldenSignalDescription},
		{keyMeterType, &m.MeterType},
		{keyMeterTypeDescription, &m.MeterTypeDescription},
	}
}

func (m MetricMetadata) toMap() map[string]string {
	out := make(map[string]string)
	for _, f := range m.textFields() {
		if *f.value != "" {
			out[f.name] = *f.value
		}
	}
	return out
}

func fromMap(name string, md map[string]string) MetricMetadata {
	m := MetricMetadata{Name: name}
	for _, f := range m.textFields() {
		*f.value = md[f.name]
	}
	return m
}
