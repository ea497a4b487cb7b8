package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents internal error codes for cache operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Expected results (not failures)
	ErrCodeKeyNotFound      ErrorCode = 1000
	ErrCodeCapacityRejected ErrorCode = 1001

	// Per-node failures (absorbed by the client while replicas remain)
	ErrCodeNodeUnreachable ErrorCode = 2000
	ErrCodeBreakerOpen     ErrorCode = 2001

	// Surfaced failures
	ErrCodeUnavailable    ErrorCode = 3000
	ErrCodeSourceOfRecord ErrorCode = 3001
	ErrCodeInvalidConfig  ErrorCode = 3002
)

// CacheError represents a structured error with code and context
type CacheError struct {
	Code    ErrorCode
	Message string
	Node    string
	Cause   error
}

// Error implements the error interface
func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Convenience constructors for common errors

// KeyNotFound reports a valid cache miss. It is a result, not a failure:
// the first live replica answered and the key was absent.
func KeyNotFound(key string) *CacheError {
	return &CacheError{
		Code:    ErrCodeKeyNotFound,
		Message: fmt.Sprintf("key not found: %s", key),
	}
}

// NodeUnreachable reports a timeout or connection failure against a single
// node. The client records it on the node's breaker and tries the next
// replica.
func NodeUnreachable(node string, cause error) *CacheError {
	return &CacheError{
		Code:    ErrCodeNodeUnreachable,
		Message: fmt.Sprintf("node unreachable: %s", node),
		Node:    node,
		Cause:   cause,
	}
}

// BreakerOpen reports that a node was skipped without an attempt because
// its circuit breaker is open.
func BreakerOpen(node string) *CacheError {
	return &CacheError{
		Code:    ErrCodeBreakerOpen,
		Message: fmt.Sprintf("circuit breaker open: %s", node),
		Node:    node,
	}
}

// Unavailable reports that every replica for a key was exhausted. Callers
// must treat this differently from KeyNotFound and consult the source of
// record directly.
func Unavailable(key string, cause error) *CacheError {
	return &CacheError{
		Code:    ErrCodeUnavailable,
		Message: fmt.Sprintf("cache unavailable for key: %s", key),
		Cause:   cause,
	}
}

// SourceOfRecord reports a failure against the backing source of record.
func SourceOfRecord(message string, cause error) *CacheError {
	return &CacheError{
		Code:    ErrCodeSourceOfRecord,
		Message: message,
		Cause:   cause,
	}
}

// InvalidConfig reports a configuration validation failure.
func InvalidConfig(message string) *CacheError {
	return &CacheError{
		Code:    ErrCodeInvalidConfig,
		Message: message,
	}
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var ce *CacheError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeUnavailable
}

// IsKeyNotFound reports whether err is a valid miss.
func IsKeyNotFound(err error) bool {
	return GetCode(err) == ErrCodeKeyNotFound
}

// IsUnavailable reports whether err means the cache could not answer at all.
func IsUnavailable(err error) bool {
	var ce *CacheError
	if stderrors.As(err, &ce) {
		return ce.Code == ErrCodeUnavailable
	}
	return err != nil
}

// IsNodeUnreachable reports whether err is a single-node failure.
func IsNodeUnreachable(err error) bool {
	return GetCode(err) == ErrCodeNodeUnreachable
}

// IsBreakerOpen reports whether err means a node was skipped by its breaker.
func IsBreakerOpen(err error) bool {
	return GetCode(err) == ErrCodeBreakerOpen
}
