package extraction

import (
	"errors"
	"strings"
)

// ErrExtraction matches every *Error via errors.Is.
var ErrExtraction = errors.New("extraction failed")

// Kind classifies an extraction failure.
type Kind string

// Failure kinds.
const (
	KindAuthentication  Kind = "authentication"
	KindRateLimit       Kind = "rate_limit"
	KindTimeout         Kind = "timeout"
	KindConnection      Kind = "connection"
	KindGeneric         Kind = "generic"
	KindLowConfidence   Kind = "low_confidence"
	KindInvalidResponse Kind = "invalid_response"
)

var kindMessages = map[Kind]string{
	KindAuthentication:  "extraction service rejected the credentials; check the configured API key",
	KindRateLimit:       "extraction service rate limit exceeded; try again later",
	KindTimeout:         "extraction service timed out",
	KindConnection:      "could not reach the extraction service",
	KindGeneric:         "failed to extract metric names from the expression",
	KindLowConfidence:   "extraction confidence is below the configured threshold",
	KindInvalidResponse: "extraction service returned an unreadable response",
}

// Message returns the user-facing message for a kind.
func (k Kind) Message() string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return kindMessages[KindGeneric]
}

// Retryable reports whether failures of this kind are worth another attempt.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindConnection
}

// Error is a classified extraction failure. Message is safe to show to the
// caller; Err holds the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: kind.Message(), Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrExtraction) true for every *Error.
func (e *Error) Is(target error) bool {
	return target == ErrExtraction
}

// Keyword tables, checked in this order.
var (
	authKeywords       = []string{"auth", "api key", "unauthorized", "401", "403", "permission"}
	rateLimitKeywords  = []string{"rate limit", "rate_limit", "ratelimit", "429", "quota", "too many requests"}
	timeoutKeywords    = []string{"timeout", "timed out", "deadline exceeded"}
	connectionKeywords = []string{
		"connection", "connect", "network", "unreachable", "refused", "eof", "dns",
		"no such host", "dial tcp", "lookup ", "connection reset", "broken pipe",
	}
)

// Classify maps an error to a Kind. An *Error keeps its kind; anything else
// is classified by case-insensitive keyword matching on its text.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	text := strings.ToLower(err.Error())
	switch {
	case containsAny(text, authKeywords):
		return KindAuthentication
	case containsAny(text, rateLimitKeywords):
		return KindRateLimit
	case containsAny(text, timeoutKeywords):
		return KindTimeout
	case containsAny(text, connectionKeywords):
		return KindConnection
	default:
		return KindGeneric
	}
}

// classified wraps err into an *Error unless it already is one.
func classified(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(Classify(err), err)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
