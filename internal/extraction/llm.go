package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/fyrsmithlabs/metricsd/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LLMExtractor implements Extractor on top of a Backend.
type LLMExtractor struct {
	backend Backend
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewLLMExtractor creates an extractor driving backend.
func NewLLMExtractor(backend Backend, cfg Config, logger *zap.Logger) (*LLMExtractor, error) {
	if backend == nil {
		return nil, errors.New("extraction backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Limit(cfg.RatePerMinute / 60.0)
	}

	return &LLMExtractor{
		backend: backend,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.RateBurst),
		logger:  logger,
	}, nil
}

// Parse implements Extractor.
func (x *LLMExtractor) Parse(ctx context.Context, expression string) ([]string, error) {
	res, err := x.Extract(ctx, expression)
	if err != nil {
		return nil, err
	}
	return res.Identifiers, nil
}

// Extract returns the normalized result including confidence.
//
// The flow is: scrub secrets, call the backend with retry for timeout and
// connection failures, normalize, check confidence, then drop identifiers
// that do not match IdentifierPattern.
func (x *LLMExtractor) Extract(ctx context.Context, expression string) (Result, error) {
	if strings.TrimSpace(expression) == "" {
		return Result{Identifiers: []string{}, Confidence: 1}, nil
	}

	payload := scrubSecrets(expression)

	raw, err := retry.NewWithData[RawResult](x.retryOptions(ctx)...).Do(func() (RawResult, error) {
		return x.attempt(ctx, payload)
	})
	if err != nil {
		e := classified(err)
		x.logger.Error("extraction failed",
			zap.String("kind", string(e.Kind)),
			zap.Error(e.Err),
		)
		return Result{}, e
	}

	res := Normalize(raw)

	if res.Confidence < x.cfg.ConfidenceThreshold {
		telemetry.LowConfidence.Inc()
		if x.cfg.EnforceConfidence {
			return Result{}, &Error{
				Kind:    KindLowConfidence,
				Message: fmt.Sprintf("%s (%.2f < %.2f)", KindLowConfidence.Message(), res.Confidence, x.cfg.ConfidenceThreshold),
			}
		}
		x.logger.Warn("low extraction confidence",
			zap.Float64("confidence", res.Confidence),
			zap.Float64("threshold", x.cfg.ConfidenceThreshold),
			zap.Int("identifiers", len(res.Identifiers)),
		)
	}

	res.Identifiers = x.filterIdentifiers(res.Identifiers)
	return res, nil
}

// attempt performs one rate-limited backend call under RequestTimeout.
func (x *LLMExtractor) attempt(ctx context.Context, payload string) (RawResult, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return RawResult{}, retry.Unrecoverable(fmt.Errorf("rate limiter wait: %w", err))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, x.cfg.RequestTimeout)
	defer cancel()

	raw, err := x.backend.Extract(attemptCtx, payload, Instruction)
	if err != nil {
		telemetry.ExtractionAttempts.WithLabelValues(telemetry.ResultError, string(Classify(err))).Inc()
		return RawResult{}, err
	}
	telemetry.ExtractionAttempts.WithLabelValues(telemetry.ResultSuccess, "none").Inc()
	return raw, nil
}

func (x *LLMExtractor) retryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(x.cfg.MaxAttempts)),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return x.backoff(n)
		}),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && Classify(err).Retryable()
		}),
		retry.OnRetry(func(n uint, err error) {
			x.logger.Warn("retrying extraction",
				zap.Uint("attempt", n+1),
				zap.String("kind", string(Classify(err))),
				zap.Error(err),
			)
		}),
		retry.LastErrorOnly(true),
	}
}

// backoff returns the delay before retry n (1-based): InitialBackoff
// doubled per retry, capped at MaxBackoff.
func (x *LLMExtractor) backoff(n uint) time.Duration {
	if n < 1 {
		n = 1
	}
	d := x.cfg.InitialBackoff
	for i := uint(1); i < n; i++ {
		d *= 2
		if d >= x.cfg.MaxBackoff {
			return x.cfg.MaxBackoff
		}
	}
	if d > x.cfg.MaxBackoff {
		return x.cfg.MaxBackoff
	}
	return d
}

// filterIdentifiers drops identifiers that violate IdentifierPattern or
// MaxIdentifierLength.
func (x *LLMExtractor) filterIdentifiers(ids []string) []string {
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if len(id) > MaxIdentifierLength || !IdentifierPattern.MatchString(id) {
			x.logger.Warn("dropping malformed identifier", zap.String("identifier", id))
			continue
		}
		kept = append(kept, id)
	}
	return kept
}

var _ Extractor = (*LLMExtractor)(nil)
