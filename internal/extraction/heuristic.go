package extraction

import (
	"context"
	"regexp"
	"strings"
)

var (
	// Spans that never contain metric names.
	labelMatcherRe = regexp.MustCompile(`\{[^}]*\}`)
	rangeRe        = regexp.MustCompile(`\[[^\]]*\]`)
	quotedRe       = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)
	durationRe     = regexp.MustCompile(`\b\d+(?:ms|[smhdwy])\b`)
	numberRe       = regexp.MustCompile(`\b\d+(?:\.\d+)?(?:[eE][+-]?\d+)?\b`)
	groupingRe     = regexp.MustCompile(`(?i)\b(?:by|without|on|ignoring|group_left|group_right)\s*\([^)]*\)`)

	// Colons are accepted so recording-rule names form one token and are
	// then rejected by IdentifierPattern.
	tokenRe = regexp.MustCompile(`[A-Za-z_:][A-Za-z0-9_.:]*`)
)

// defaultKeywords are operators and modifiers that look like identifiers.
var defaultKeywords = []string{
	"and", "or", "unless", "not", "by", "without", "on", "ignoring",
	"group_left", "group_right", "offset", "bool", "inf", "nan",
	"avg", "sum", "min", "max", "count", "rate", "irate", "increase",
}

// HeuristicExtractor implements Extractor with a deterministic tokenizer.
//
// It removes label matchers, range selectors, quoted strings, numeric
// literals, durations and grouping clauses, then keeps every remaining token that is
// not a function call or a known keyword and that matches IdentifierPattern
// after lowercasing.
type HeuristicExtractor struct {
	keywords map[string]struct{}
}

// NewHeuristicExtractor creates a heuristic extractor. Extra keywords are
// ignored in addition to the built-in operator and function names.
func NewHeuristicExtractor(extraKeywords ...string) *HeuristicExtractor {
	keywords := make(map[string]struct{}, len(defaultKeywords)+len(extraKeywords))
	for _, k := range defaultKeywords {
		keywords[k] = struct{}{}
	}
	for _, k := range extraKeywords {
		keywords[strings.ToLower(k)] = struct{}{}
	}
	return &HeuristicExtractor{keywords: keywords}
}

// Parse implements Extractor. It never fails.
func (h *HeuristicExtractor) Parse(_ context.Context, expression string) ([]string, error) {
	return h.tokens(expression), nil
}

func (h *HeuristicExtractor) tokens(expression string) []string {
	if strings.TrimSpace(expression) == "" {
		return []string{}
	}

	s := quotedRe.ReplaceAllString(expression, " ")
	s = labelMatcherRe.ReplaceAllString(s, " ")
	s = rangeRe.ReplaceAllString(s, " ")
	s = groupingRe.ReplaceAllString(s, " ")
	s = durationRe.ReplaceAllString(s, " ")
	s = numberRe.ReplaceAllString(s, " ")

	var ids []string
	for _, loc := range tokenRe.FindAllStringIndex(s, -1) {
		tok := strings.ToLower(strings.TrimRight(s[loc[0]:loc[1]], "."))
		if tok == "" || isCall(s, loc[1]) {
			continue
		}
		if _, kw := h.keywords[tok]; kw {
			continue
		}
		if len(tok) > MaxIdentifierLength || !IdentifierPattern.MatchString(tok) {
			continue
		}
		ids = append(ids, tok)
	}
	return dedupe(ids)
}

// isCall reports whether the token ending at end is followed by "(".
func isCall(s string, end int) bool {
	rest := strings.TrimLeft(s[end:], " \t\r\n")
	return strings.HasPrefix(rest, "(")
}

var _ Extractor = (*HeuristicExtractor)(nil)
