package extraction

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// detector is built lazily; the default gitleaks config compiles several
// hundred rules.
var (
	detectorOnce sync.Once
	detectorMu   sync.Mutex
	detector     *detect.Detector
	detectorErr  error
)

// labelSecrets catch credentials in label matchers that are too short or
// too generic for the gitleaks rule set.
var labelSecrets = []struct {
	regex       *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`), "[REDACTED:ANTHROPIC_KEY]"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "[REDACTED:OPENAI_KEY]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret)\s*(=~|!=|=)\s*["']?([^"'\s,}]{8,})["']?`), `$1$2"[REDACTED:API_KEY]"`},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)\s*(=~|!=|=|:)\s*["']?([^"'\s,}]{4,})["']?`), `$1$2"[REDACTED:PASSWORD]"`},
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-.=]{20,}`), "[REDACTED:BEARER_TOKEN]"},
}

func sharedDetector() (*detect.Detector, error) {
	detectorOnce.Do(func() {
		detector, detectorErr = detect.NewDetectorDefaultConfig()
	})
	return detector, detectorErr
}

// scrubSecrets removes credential-looking substrings from an expression
// before it is sent to an external provider. Label matchers such as
// {token="..."} can carry secrets pasted from dashboards.
func scrubSecrets(content string) string {
	result := content
	if d, err := sharedDetector(); err == nil {
		detectorMu.Lock()
		findings := d.DetectString(result)
		detectorMu.Unlock()

		// Longest first so a secret containing another is replaced whole.
		sort.Slice(findings, func(i, j int) bool {
			return len(findings[i].Secret) > len(findings[j].Secret)
		})
		for _, f := range findings {
			if f.Secret == "" {
				continue
			}
			result = strings.ReplaceAll(result, f.Secret, "[REDACTED:"+f.RuleID+"]")
		}
	}
	for _, p := range labelSecrets {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}
