package extraction

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"401 Unauthorized", KindAuthentication},
		{"invalid API key provided", KindAuthentication},
		{"permission denied for model", KindAuthentication},
		{"Rate limit reached for requests", KindRateLimit},
		{"status 429", KindRateLimit},
		{"You exceeded your current quota", KindRateLimit},
		{"Too Many Requests", KindRateLimit},
		{"request timeout", KindTimeout},
		{"operation timed out", KindTimeout},
		{"context deadline exceeded", KindTimeout},
		{"dial tcp: connection refused", KindConnection},
		{"network is unreachable", KindConnection},
		{"unexpected EOF", KindConnection},
		{"lookup api.example.com: no such host (dns)", KindConnection},
		{"model overloaded", KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(errors.New(tt.msg)))
		})
	}
}

func TestClassify_Order(t *testing.T) {
	// Authentication wins over timeout when both keywords appear.
	assert.Equal(t, KindAuthentication, Classify(errors.New("auth handshake timeout")))
	// Rate limit wins over connection.
	assert.Equal(t, KindRateLimit, Classify(errors.New("429 connection throttled")))
}

func TestClassify_ContextErrors(t *testing.T) {
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindGeneric, Classify(context.Canceled))
	assert.Equal(t, Kind(""), Classify(nil))
}

// dnsFailure builds the error net/http returns for an unresolvable host.
func dnsFailure() error {
	return &url.Error{
		Op:  "Post",
		URL: "https://api.example.invalid/v1/chat/completions",
		Err: &net.OpError{
			Op:  "dial",
			Net: "tcp",
			Err: &net.DNSError{Err: "no such host", Name: "api.example.invalid", Server: "10.255.255.53:53", IsNotFound: true},
		},
	}
}

func TestClassify_NetworkErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"dns lookup", dnsFailure()},
		{"bare dns error", &net.DNSError{Err: "no such host", Name: "api.example.invalid", IsNotFound: true}},
		{"connection reset", &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}},
		{"broken pipe", &net.OpError{Op: "write", Net: "tcp", Err: os.NewSyscallError("write", syscall.EPIPE)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := Classify(tt.err)
			assert.Equal(t, KindConnection, kind, tt.err.Error())
			assert.True(t, kind.Retryable())
		})
	}
}

func TestClassify_KeepsTypedKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindInvalidResponse, errors.New("timeout in body")))
	assert.Equal(t, KindInvalidResponse, Classify(err))
}

func TestError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := error(newError(KindConnection, cause))

	assert.True(t, errors.Is(err, ErrExtraction))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), KindConnection.Message())

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, KindConnection, e.Kind)
}

func TestKind_MessagesDistinct(t *testing.T) {
	kinds := []Kind{KindAuthentication, KindRateLimit, KindTimeout, KindConnection, KindGeneric, KindLowConfidence, KindInvalidResponse}
	seen := map[string]Kind{}
	for _, k := range kinds {
		msg := k.Message()
		assert.NotEmpty(t, msg)
		if other, dup := seen[msg]; dup {
			t.Errorf("kinds %s and %s share message %q", k, other, msg)
		}
		seen[msg] = k
	}
}

func TestKind_Retryable(t *testing.T) {
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindConnection.Retryable())
	assert.False(t, KindAuthentication.Retryable())
	assert.False(t, KindRateLimit.Retryable())
	assert.False(t, KindGeneric.Retryable())
	assert.False(t, KindInvalidResponse.Retryable())
}
