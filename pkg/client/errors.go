package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// Sentinels matched by *APIError through errors.Is, one per ErrorKind.
var (
	ErrConfig    = errors.New("configuration error")
	ErrTransport = errors.New("transport error")
	ErrProvider  = errors.New("provider error")
	ErrParse     = errors.New("parse error")
)

// ErrorKind is the failure taxonomy surfaced to callers.
type ErrorKind string

const (
	// KindConfig: missing endpoint, token or base URL. Never retried.
	KindConfig ErrorKind = "config"

	// KindTransport: network, DNS or timeout failures.
	KindTransport ErrorKind = "transport"

	// KindProvider: the API answered with a non-2xx status.
	KindProvider ErrorKind = "provider"

	// KindParse: the response body did not match the expected shape.
	KindParse ErrorKind = "parse"
)

// APIError is the error type returned by every Client operation.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	ErrorClass ErrorClass
	Endpoint   string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	prefix := fmt.Sprintf("team API %s error", e.Kind)
	if e.Endpoint != "" {
		prefix += " [" + e.Endpoint + "]"
	}
	if e.StatusCode != 0 {
		prefix += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrProvider:
		return e.Kind == KindProvider
	case ErrParse:
		return e.Kind == KindParse
	}
	return false
}

// Status returns the HTTP status code, or 0 when no response was received.
func (e *APIError) Status() int {
	return e.StatusCode
}

// Detail returns the provider or client message without decoration.
func (e *APIError) Detail() string {
	return e.Message
}

// NewConfigError builds a KindConfig error.
func NewConfigError(format string, args ...any) *APIError {
	return &APIError{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// NewParseError builds a KindParse error for the given endpoint.
func NewParseError(endpoint, message string, err error) *APIError {
	return &APIError{Kind: KindParse, Endpoint: endpoint, Message: message, Err: err}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are permanent for the same request
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
