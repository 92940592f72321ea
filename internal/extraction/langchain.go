package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// Instruction is the system prompt sent with every expression.
const Instruction = `You extract metric names from monitoring query expressions.

Given an expression such as "cpu.usage + memory.total * 2" or
"rate(http_requests_total{job=\"api\"}[5m])", list every metric name it
references. Do not include functions, operators, label names, label values,
numbers or durations.

Metric names are lowercase, start with a letter and contain only letters,
digits, underscores and dots.

Respond with a JSON object containing:
- "identifiers": array of metric name strings, in the order they appear
- "confidence": number between 0.0 and 1.0

Respond ONLY with the JSON object, no additional text.`

const defaultMaxTokens = 512

// LangchainBackend implements Backend over a langchaingo chat model.
type LangchainBackend struct {
	model     llms.Model
	maxTokens int
}

// NewLangchainBackend wraps model.
func NewLangchainBackend(model llms.Model) (*LangchainBackend, error) {
	if model == nil {
		return nil, errors.New("llm model is required")
	}
	return &LangchainBackend{model: model, maxTokens: defaultMaxTokens}, nil
}

// Extract sends the instruction as a system message and the expression as a
// human message, then decodes the JSON object in the first choice.
func (b *LangchainBackend) Extract(ctx context.Context, expression, instruction string) (RawResult, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, instruction),
		llms.TextParts(schema.ChatMessageTypeHuman, expression),
	}

	resp, err := b.model.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(b.maxTokens),
	)
	if err != nil {
		return RawResult{}, err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return RawResult{}, newError(KindInvalidResponse, errors.New("empty response from model"))
	}

	return decodeRawResult(resp.Choices[0].Content)
}

// decodeRawResult parses the model output. Models sometimes wrap JSON in
// markdown fences or add prose around it.
func decodeRawResult(content string) (RawResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		content = content[start : end+1]
	}

	var raw RawResult
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return RawResult{}, newError(KindInvalidResponse, fmt.Errorf("failed to decode model output: %w", err))
	}
	return raw, nil
}

// NewProviderModel builds the chat model named by cfg.Provider.
func NewProviderModel(cfg config.ExtractionConfig) (llms.Model, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%s API key required", cfg.Provider)
	}

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey.Value()),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai model: %w", err)
		}
		return llm, nil
	case "anthropic":
		if cfg.BaseURL != "" {
			return nil, errors.New("anthropic provider does not support a custom base URL")
		}
		llm, err := anthropic.New(
			anthropic.WithToken(cfg.APIKey.Value()),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic model: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

var _ Backend = (*LangchainBackend)(nil)
