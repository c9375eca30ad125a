package erp

import (
	"errors"
	"io"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{name: "client error should not retry", errorClass: ErrorClassClient, expected: false},
		{name: "server error should retry", errorClass: ErrorClassServer, expected: true},
		{name: "rate limit should retry", errorClass: ErrorClassRateLimit, expected: true},
		{name: "network error should retry", errorClass: ErrorClassNetwork, expected: true},
		{name: "empty error class should not retry", errorClass: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := shouldRetry(tt.errorClass); result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{status: 200, want: ""},
		{status: 400, want: ErrorClassClient},
		{status: 403, want: ErrorClassClient},
		{status: 404, want: ErrorClassClient},
		{status: 417, want: ErrorClassClient},
		{status: 429, want: ErrorClassRateLimit},
		{status: 500, want: ErrorClassServer},
		{status: 503, want: ErrorClassServer},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestUpstreamError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *UpstreamError
		expected string
	}{
		{
			name:     "rejected",
			err:      &UpstreamError{Resource: "Item", StatusCode: 500, Class: ErrorClassServer, Message: "boom"},
			expected: "erp Item: server error (status 500): boom",
		},
		{
			name:     "with wrapped error",
			err:      &UpstreamError{Resource: "Item", StatusCode: 404, Class: ErrorClassClient, Message: "Item X not found", Err: ErrNotFound},
			expected: "erp Item: client error (status 404): Item X not found: not found",
		},
		{
			name:     "network",
			err:      &UpstreamError{Resource: "Bin", Class: ErrorClassNetwork, Err: io.ErrUnexpectedEOF},
			expected: "erp Bin: network error: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUpstreamError_Is(t *testing.T) {
	network := &UpstreamError{Resource: "Item", Class: ErrorClassNetwork, Err: io.EOF}
	rejected := &UpstreamError{Resource: "Item", StatusCode: 502, Class: ErrorClassServer}
	notFound := &UpstreamError{Resource: "Item", StatusCode: 404, Class: ErrorClassClient, Err: ErrNotFound}

	if !errors.Is(network, ErrUpstreamUnavailable) || errors.Is(network, ErrUpstreamRejected) {
		t.Error("network error should match only ErrUpstreamUnavailable")
	}
	if !errors.Is(network, io.EOF) {
		t.Error("network error should unwrap to its cause")
	}
	if !errors.Is(rejected, ErrUpstreamRejected) || errors.Is(rejected, ErrUpstreamUnavailable) {
		t.Error("rejected error should match only ErrUpstreamRejected")
	}
	if !errors.Is(notFound, ErrNotFound) || !errors.Is(notFound, ErrUpstreamRejected) {
		t.Error("not found should match ErrNotFound and ErrUpstreamRejected")
	}
}

func TestClassOf(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &UpstreamError{Class: ErrorClassServer, StatusCode: 500})
	if got := classOf(wrapped); got != ErrorClassServer {
		t.Errorf("classOf() = %q, want server", got)
	}
	if got := classOf(errors.New("plain")); got != "" {
		t.Errorf("classOf(plain) = %q, want empty", got)
	}
}
