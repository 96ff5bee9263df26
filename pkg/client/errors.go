package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of failures on the fetch path.
type ErrorClass string

const (
	// ErrorClassTransport represents network failures and timeouts.
	ErrorClassTransport ErrorClass = "transport"

	// ErrorClassStatus represents non-2xx upstream responses.
	ErrorClassStatus ErrorClass = "status"

	// ErrorClassDecode represents upstream payloads that could not be decoded.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassCache represents cache backend failures.
	ErrorClassCache ErrorClass = "cache"

	// ErrorClassConfig represents configuration errors, fatal at startup.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassCanceled represents caller cancellation or deadline.
	ErrorClassCanceled ErrorClass = "canceled"

	// ErrorClassUnknown represents anything else.
	ErrorClassUnknown ErrorClass = "unknown"
)

// Common errors returned by the client.
var (
	// ErrMissingCredential is returned at startup when no API key is configured.
	ErrMissingCredential = errors.New("missing nexusmods api key")

	// ErrUnavailable matches every *UpstreamError of class transport or status.
	ErrUnavailable = errors.New("upstream unavailable")
)

// UpstreamError describes a failed upstream call with additional context.
type UpstreamError struct {
	Path       string
	StatusCode int
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d) for %s: %v",
			e.ErrorClass, e.StatusCode, e.Path, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d) for %s",
		e.ErrorClass, e.StatusCode, e.Path)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is reports transport and status failures as ErrUnavailable.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUnavailable &&
		(e.ErrorClass == ErrorClassTransport || e.ErrorClass == ErrorClassStatus)
}

// StatusError builds the error for a non-success response.
func StatusError(path string, statusCode int) *UpstreamError {
	return &UpstreamError{
		Path:       path,
		StatusCode: statusCode,
		ErrorClass: ErrorClassStatus,
		Err:        errors.New(http.StatusText(statusCode)),
	}
}

// DecodeError builds the error for an undecodable payload.
func DecodeError(path string, err error) *UpstreamError {
	return &UpstreamError{
		Path:       path,
		ErrorClass: ErrorClassDecode,
		Err:        err,
	}
}

// Classify maps err onto an ErrorClass for logging and metrics.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var upstreamErr *UpstreamError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassCanceled
	case errors.Is(err, ErrMissingCredential):
		return ErrorClassConfig
	case errors.As(err, &upstreamErr):
		return upstreamErr.ErrorClass
	default:
		return ErrorClassUnknown
	}
}

// IsSuccessStatus reports whether code is 2xx.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

// shouldRetry determines if a response status should be retried by the
// retry policy layer.
func shouldRetry(statusCode int) bool {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return true
	case statusCode == http.StatusRequestTimeout:
		return true
	case statusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}
