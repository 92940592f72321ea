package extraction

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Normalize re-validates a backend object: identifiers are lowercased and
// trimmed, empties and non-strings dropped and duplicates removed keeping
// first-seen order. Confidence is clamped to [0,1]; a missing or
// non-numeric confidence becomes 0.
func Normalize(raw RawResult) Result {
	ids := make([]string, 0, len(raw.Identifiers))
	seen := make(map[string]struct{}, len(raw.Identifiers))
	for _, item := range raw.Identifiers {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		ids = append(ids, s)
	}

	return Result{
		Identifiers: ids,
		Confidence:  clamp01(toFloat(raw.Confidence)),
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// dedupe returns the distinct values of ids in first-seen order.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
