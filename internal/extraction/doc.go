// Package extraction turns a free-form metric expression into the metric
// identifiers it references.
//
// # Architecture
//
// The main components are:
//   - Extractor: the interface consumed by the schema validator
//   - LLMExtractor: production implementation driving a Backend with retry,
//     rate limiting, error classification and confidence checks
//   - LangchainBackend: Backend over any langchaingo llms.Model (OpenAI,
//     Anthropic)
//   - HeuristicExtractor: deterministic tokenizer for tests and offline use
//   - FallbackExtractor: LLM first, heuristic when the provider is unreachable
//
// # Usage
//
//	model, err := extraction.NewProviderModel(cfg.Extraction)
//	backend, err := extraction.NewLangchainBackend(model)
//	ex, err := extraction.NewLLMExtractor(backend, extraction.ConfigFrom(cfg.Extraction), logger)
//	ids, err := ex.Parse(ctx, "cpu.usage + memory.total * 2")
//	// ids == []string{"cpu.usage", "memory.total"}
//
// # Errors
//
// Every failure is an *Error whose Kind tells the caller what went wrong
// (authentication, rate limit, timeout, connection, invalid response, low
// confidence or generic). Only timeout and connection failures are retried.
// errors.Is(err, ErrExtraction) matches all of them.
package extraction
