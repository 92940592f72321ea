package extraction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/metricsd/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// step is one scripted backend response.
type step struct {
	raw RawResult
	err error
}

// scriptedBackend replays steps in order, repeating the last one.
type scriptedBackend struct {
	mu          sync.Mutex
	steps       []step
	calls       int
	expressions []string
	hadDeadline bool
}

func (b *scriptedBackend) Extract(ctx context.Context, expression, instruction string) (RawResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, b.hadDeadline = ctx.Deadline()
	b.expressions = append(b.expressions, expression)
	i := b.calls
	if i >= len(b.steps) {
		i = len(b.steps) - 1
	}
	b.calls++
	return b.steps[i].raw, b.steps[i].err
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func ok(confidence float64, ids ...any) step {
	return step{raw: RawResult{Identifiers: ids, Confidence: confidence}}
}

func fail(msg string) step {
	return step{err: errors.New(msg)}
}

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		RequestTimeout: time.Second,
		RatePerMinute:  -1,
	}
}

func newTestExtractor(t *testing.T, cfg Config, steps ...step) (*LLMExtractor, *scriptedBackend, *logging.TestLogger) {
	t.Helper()
	backend := &scriptedBackend{steps: steps}
	tl := logging.NewTestLogger()
	x, err := NewLLMExtractor(backend, cfg, tl.Logger)
	require.NoError(t, err)
	return x, backend, tl
}

func TestNewLLMExtractor_NilBackend(t *testing.T) {
	_, err := NewLLMExtractor(nil, Config{}, nil)
	assert.Error(t, err)
}

func TestLLMExtractor_NormalizesBackendOutput(t *testing.T) {
	x, _, _ := newTestExtractor(t, fastConfig(), ok(1.3, "CPU.Usage", "cpu.usage", ""))

	res, err := x.Extract(context.Background(), "CPU.Usage + cpu.usage")
	require.NoError(t, err)
	assert.Equal(t, Result{Identifiers: []string{"cpu.usage"}, Confidence: 1.0}, res)
}

func TestLLMExtractor_Parse(t *testing.T) {
	x, _, _ := newTestExtractor(t, fastConfig(), ok(0.95, "cpu.usage", "memory.total"))

	ids, err := x.Parse(context.Background(), "cpu.usage + memory.total * 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.usage", "memory.total"}, ids)
}

func TestLLMExtractor_EmptyExpressionSkipsBackend(t *testing.T) {
	x, backend, _ := newTestExtractor(t, fastConfig(), ok(1, "never"))

	for _, expr := range []string{"", "   ", "\n\t"} {
		ids, err := x.Parse(context.Background(), expr)
		require.NoError(t, err)
		assert.NotNil(t, ids)
		assert.Empty(t, ids)
	}
	assert.Zero(t, backend.callCount())
}

func TestLLMExtractor_RetriesTransientFailures(t *testing.T) {
	x, backend, tl := newTestExtractor(t, fastConfig(),
		fail("request timeout"),
		fail("dial tcp 10.0.0.1:443: connection refused"),
		ok(0.9, "cpu.usage"),
	)

	ids, err := x.Parse(context.Background(), "cpu.usage")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.usage"}, ids)
	assert.Equal(t, 3, backend.callCount())
	assert.Equal(t, 2, tl.FilterMessage("retrying extraction").Len())
}

func TestLLMExtractor_RetriesUnresolvableHost(t *testing.T) {
	x, backend, _ := newTestExtractor(t, fastConfig(),
		step{err: dnsFailure()},
		ok(0.9, "cpu.usage"),
	)

	ids, err := x.Parse(context.Background(), "cpu.usage")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.usage"}, ids)
	assert.Equal(t, 2, backend.callCount())
}

func TestLLMExtractor_ExhaustedRetries(t *testing.T) {
	x, backend, _ := newTestExtractor(t, fastConfig(), fail("network is unreachable"))

	_, err := x.Parse(context.Background(), "cpu.usage")
	require.Error(t, err)
	assert.Equal(t, 3, backend.callCount())

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindConnection, e.Kind)
	assert.Equal(t, KindConnection.Message(), e.Message)
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestLLMExtractor_NonRetryableFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"authentication", errors.New("401 Unauthorized: invalid api key"), KindAuthentication},
		{"rate limit", errors.New("429 Too Many Requests"), KindRateLimit},
		{"generic", errors.New("model overloaded"), KindGeneric},
		{"invalid response", newError(KindInvalidResponse, errors.New("bad json")), KindInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, backend, tl := newTestExtractor(t, fastConfig(), step{err: tt.err})

			_, err := x.Parse(context.Background(), "cpu.usage")

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.want, e.Kind)
			assert.Equal(t, 1, backend.callCount())
			tl.AssertLogged(t, zapcore.ErrorLevel, "extraction failed")
		})
	}
}

func TestLLMExtractor_LowConfidenceSoft(t *testing.T) {
	x, _, tl := newTestExtractor(t, fastConfig(), ok(0.4, "cpu.usage"))

	res, err := x.Extract(context.Background(), "cpu.usage")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.usage"}, res.Identifiers)
	assert.Equal(t, 0.4, res.Confidence)
	tl.AssertLogged(t, zapcore.WarnLevel, "low extraction confidence")
}

func TestLLMExtractor_LowConfidenceEnforced(t *testing.T) {
	cfg := fastConfig()
	cfg.EnforceConfidence = true
	x, backend, _ := newTestExtractor(t, cfg, ok(0.4, "cpu.usage"))

	_, err := x.Parse(context.Background(), "cpu.usage")

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindLowConfidence, e.Kind)
	assert.Contains(t, e.Message, "0.40")
	assert.Equal(t, 1, backend.callCount())
}

func TestLLMExtractor_ConfidenceAtThresholdPasses(t *testing.T) {
	cfg := fastConfig()
	cfg.EnforceConfidence = true
	x, _, tl := newTestExtractor(t, cfg, ok(0.7, "cpu.usage"))

	_, err := x.Parse(context.Background(), "cpu.usage")
	require.NoError(t, err)
	tl.AssertNotLogged(t, zapcore.WarnLevel, "low extraction confidence")
}

func TestLLMExtractor_DropsMalformedIdentifiers(t *testing.T) {
	x, _, tl := newTestExtractor(t, fastConfig(),
		ok(0.9, "cpu.usage", "9lives", "has space", "http-requests", strings.Repeat("a", MaxIdentifierLength+1), strings.Repeat("b", MaxIdentifierLength)),
	)

	ids, err := x.Parse(context.Background(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.usage", strings.Repeat("b", MaxIdentifierLength)}, ids)
	assert.Equal(t, 4, tl.FilterMessage("dropping malformed identifier").Len())
}

func TestLLMExtractor_ScrubsSecretsBeforeSending(t *testing.T) {
	x, backend, _ := newTestExtractor(t, fastConfig(), ok(0.9, "cpu.usage"))

	_, err := x.Parse(context.Background(), `cpu.usage{api_key="abcdefgh12345678"}`)
	require.NoError(t, err)

	require.Len(t, backend.expressions, 1)
	assert.NotContains(t, backend.expressions[0], "abcdefgh12345678")
}

func TestLLMExtractor_AttemptHasDeadline(t *testing.T) {
	x, backend, _ := newTestExtractor(t, fastConfig(), ok(0.9, "cpu.usage"))

	_, err := x.Parse(context.Background(), "cpu.usage")
	require.NoError(t, err)
	assert.True(t, backend.hadDeadline)
}

func TestLLMExtractor_CancelledContext(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	x, _, _ := newTestExtractor(t, cfg, fail("request timeout"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := x.Parse(ctx, "cpu.usage")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLLMExtractor_Backoff(t *testing.T) {
	x, err := NewLLMExtractor(&scriptedBackend{}, DefaultConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1*time.Second, x.backoff(1))
	assert.Equal(t, 2*time.Second, x.backoff(2))
	assert.Equal(t, 4*time.Second, x.backoff(3))
	assert.Equal(t, 8*time.Second, x.backoff(4))
	assert.Equal(t, 10*time.Second, x.backoff(5))
	assert.Equal(t, 10*time.Second, x.backoff(30))
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
}
