// Package validator checks that every metric referenced by an expression
// is registered in a namespace.
//
// Validate extracts candidate identifiers with an extraction.Extractor and
// checks them against a membership.Store. Small identifier sets are
// checked one SISMEMBER at a time; once the distinct count reaches the
// bulk threshold the whole namespace is fetched once and diffed locally.
// Both strategies produce the same result.
package validator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"github.com/fyrsmithlabs/metricsd/internal/extraction"
	"github.com/fyrsmithlabs/metricsd/internal/membership"
	"github.com/fyrsmithlabs/metricsd/internal/sanitize"
	"github.com/fyrsmithlabs/metricsd/internal/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultBulkThreshold is the distinct identifier count at which the
	// whole namespace is fetched instead of checking names one by one.
	DefaultBulkThreshold = 5

	// DefaultMaxListed bounds the names spelled out in a failure message.
	DefaultMaxListed = 5
)

// Lookup strategies, as reported to telemetry.
const (
	StrategyBulk       = "bulk"
	StrategyIndividual = "individual"
)

// Status is the outcome of a validation. Exactly one applies.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
	StatusParseError Status = "parse_error"
)

// Result is the outcome of Validate.
type Result struct {
	Status Status `json:"status"`
	// InvalidMetrics lists the unregistered identifiers, sorted. Failure only.
	InvalidMetrics []string `json:"invalid_metrics,omitempty"`
	// Message summarizes InvalidMetrics. Failure only.
	Message string `json:"message,omitempty"`
	// Error describes why the expression could not be parsed. Parse error only.
	Error string `json:"error,omitempty"`
}

func (r Result) IsSuccess() bool    { return r.Status == StatusSuccess }
func (r Result) IsFailure() bool    { return r.Status == StatusFailure }
func (r Result) IsParseError() bool { return r.Status == StatusParseError }

// Config tunes a Validator.
type Config struct {
	BulkThreshold int
	MaxListed     int
}

// ConfigFrom maps the validator config section onto Config.
func ConfigFrom(c config.ValidatorConfig) Config {
	return Config{BulkThreshold: c.BulkThreshold, MaxListed: c.MaxListed}
}

// Validator checks expressions against namespace membership. It holds no
// mutable state and is safe for concurrent use.
type Validator struct {
	extractor extraction.Extractor
	store     membership.Store
	cfg       Config
	logger    *zap.Logger
}

// New creates a Validator.
func New(extractor extraction.Extractor, store membership.Store, cfg Config, logger *zap.Logger) (*Validator, error) {
	if extractor == nil {
		return nil, fmt.Errorf("validator requires an extractor")
	}
	if store == nil {
		return nil, fmt.Errorf("validator requires a membership store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BulkThreshold <= 0 {
		cfg.BulkThreshold = DefaultBulkThreshold
	}
	if cfg.MaxListed <= 0 {
		cfg.MaxListed = DefaultMaxListed
	}
	return &Validator{extractor: extractor, store: store, cfg: cfg, logger: logger}, nil
}

// Validate checks that every metric referenced by expression is a member
// of namespace.
//
// A blank expression, or one without identifiers, succeeds. An unusable
// namespace or any extraction failure yields a parse-error Result, never a
// Go error. The error return is reserved for membership backend failures.
func (v *Validator) Validate(ctx context.Context, namespace, expression string) (Result, error) {
	res, err := v.validate(ctx, namespace, expression)
	if err != nil {
		telemetry.ValidationResults.WithLabelValues(telemetry.ResultError).Inc()
		return Result{}, err
	}
	telemetry.ValidationResults.WithLabelValues(string(res.Status)).Inc()
	return res, nil
}

func (v *Validator) validate(ctx context.Context, namespace, expression string) (Result, error) {
	if sanitize.IsBlank(expression) {
		return Result{Status: StatusSuccess}, nil
	}

	if err := sanitize.ValidateNamespace(namespace); err != nil {
		return parseError(err), nil
	}

	identifiers, err := v.extractor.Parse(ctx, expression)
	if err != nil {
		v.logger.Warn("expression could not be parsed",
			zap.String("namespace", namespace),
			zap.Error(err),
		)
		return parseError(err), nil
	}

	identifiers = distinct(identifiers)
	if len(identifiers) == 0 {
		return Result{Status: StatusSuccess}, nil
	}

	var invalid []string
	if len(identifiers) >= v.cfg.BulkThreshold {
		telemetry.LookupStrategy.WithLabelValues(StrategyBulk).Inc()
		invalid, err = FindInvalidBulk(ctx, v.store, namespace, identifiers)
	} else {
		telemetry.LookupStrategy.WithLabelValues(StrategyIndividual).Inc()
		invalid, err = FindInvalidIndividual(ctx, v.store, namespace, identifiers)
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to validate expression in namespace %q: %w", namespace, err)
	}

	if len(invalid) == 0 {
		return Result{Status: StatusSuccess}, nil
	}

	v.logger.Debug("expression references unknown metrics",
		zap.String("namespace", namespace),
		zap.Strings("invalid", invalid),
	)
	return Result{
		Status:         StatusFailure,
		InvalidMetrics: invalid,
		Message:        FailureMessage(invalid, v.cfg.MaxListed),
	}, nil
}

func parseError(err error) Result {
	return Result{Status: StatusParseError, Error: err.Error()}
}

// FindInvalidBulk fetches the namespace once and returns the identifiers
// missing from it, sorted.
func FindInvalidBulk(ctx context.Context, store membership.Store, namespace string, identifiers []string) ([]string, error) {
	names, err := store.GetNames(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var invalid []string
	for _, id := range distinct(identifiers) {
		if _, ok := names[id]; !ok {
			invalid = append(invalid, id)
		}
	}
	slices.Sort(invalid)
	return invalid, nil
}

// FindInvalidIndividual checks each identifier separately and returns the
// non-members, sorted.
func FindInvalidIndividual(ctx context.Context, store membership.Store, namespace string, identifiers []string) ([]string, error) {
	var invalid []string
	for _, id := range distinct(identifiers) {
		ok, err := store.IsMember(ctx, namespace, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			invalid = append(invalid, id)
		}
	}
	slices.Sort(invalid)
	return invalid, nil
}

// FailureMessage renders "Invalid metrics: a, b" and, past maxListed
// names, appends " and N more".
func FailureMessage(invalid []string, maxListed int) string {
	if maxListed <= 0 {
		maxListed = DefaultMaxListed
	}
	listed := invalid
	if len(listed) > maxListed {
		listed = listed[:maxListed]
	}
	msg := "Invalid metrics: " + strings.Join(listed, ", ")
	if extra := len(invalid) - len(listed); extra > 0 {
		msg += fmt.Sprintf(" and %d more", extra)
	}
	return msg
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
