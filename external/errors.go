// Generator call error classification.
//
// Every failure leaving this package is a *CallError so callers can decide
// on retries and degraded results with errors.As instead of string matching.
package external

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/openai/openai-go"
)

// Kind classifies a generator failure.
type Kind string

const (
	KindNetwork Kind = "network" // connection refused, DNS, reset
	KindTimeout Kind = "timeout" // request deadline exceeded
	KindAuth    Kind = "auth"    // 401/403 or missing credentials
	KindStatus  Kind = "status"  // any other non-200 response
	KindEmpty   Kind = "empty"   // 200 with no usable content
	KindConfig  Kind = "config"  // invalid call parameters
)

// CallError is a classified generator failure.
type CallError struct {
	Kind       Kind
	Provider   string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
// Auth and config failures are permanent.
func (e *CallError) Retryable() bool {
	switch e.Kind {
	case KindAuth, KindConfig:
		return false
	}
	return true
}

// KindOf returns the Kind of err, or "" if err is not a *CallError.
func KindOf(err error) Kind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsRetryable reports whether err is worth retrying. Unclassified errors
// are retried; context cancellation is not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	return true
}

// statusError classifies a non-200 HTTP response.
func statusError(provider string, code int, body string) *CallError {
	kind := KindStatus
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		kind = KindAuth
	}
	return &CallError{Kind: kind, Provider: provider, StatusCode: code, Err: errors.New(body)}
}

// transportError classifies a failure that produced no HTTP response.
func transportError(provider string, err error) *CallError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return statusError(provider, apiErr.StatusCode, apiErr.Message)
	}
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &CallError{Kind: kind, Provider: provider, Err: err}
}
