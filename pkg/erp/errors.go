package erp

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrUpstreamUnavailable is matched by network and connection failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamRejected is matched by any non-2xx upstream response.
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRequestBlocked is returned while the upstream cooldown is active.
	ErrRequestBlocked = errors.New("request blocked: upstream cooldown active")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// UpstreamError is a failed upstream call with the status and the message
// the ERP returned.
type UpstreamError struct {
	Resource   string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Class == ErrorClassNetwork {
		return fmt.Sprintf("erp %s: %s error: %v", e.Resource, e.Class, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("erp %s: %s error (status %d): %s: %v",
			e.Resource, e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("erp %s: %s error (status %d): %s",
		e.Resource, e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is maps the error onto the UpstreamUnavailable / UpstreamRejected kinds.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamUnavailable:
		return e.Class == ErrorClassNetwork
	case ErrUpstreamRejected:
		return e.Class != ErrorClassNetwork && e.StatusCode != 0
	}
	return false
}

// classifyStatus maps an HTTP status onto an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx responses do not change on retry
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classOf extracts the error class of err, if it carries one.
func classOf(err error) ErrorClass {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Class
	}
	return ""
}
