// Package tether is a client for remote tool invocation over the Model
// Context Protocol. The root package holds the domain types shared by all
// subpackages: the JSON-RPC message envelope, the error taxonomy, tool
// descriptors, and the Conn interface implemented by transport clients.
package tether

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	// ErrNotConnected indicates an operation that requires a connected client.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed indicates an operation on a closed client.
	ErrClosed = errors.New("client closed")

	// ErrDuplicateCallID indicates a pending call was registered with an id
	// that is already outstanding.
	ErrDuplicateCallID = errors.New("duplicate call id")
)

// ErrorKind is a closed taxonomy of failure categories. Every error surfaced
// by a public operation carries exactly one kind.
type ErrorKind string

const (
	KindConnectionFailed ErrorKind = "connection-failed"
	KindAuthFailed       ErrorKind = "auth-failed"
	KindInvalidRequest   ErrorKind = "invalid-request"
	KindPermissionDenied ErrorKind = "permission-denied"
	KindQuotaExceeded    ErrorKind = "quota-exceeded"
	KindAccessRequired   ErrorKind = "access-required"
	KindNotFound         ErrorKind = "resource-not-found"
	KindRateLimited      ErrorKind = "rate-limited"
	KindCancelled        ErrorKind = "cancelled"
	KindServerError      ErrorKind = "server-error"
	KindDegradedService  ErrorKind = "degraded-service"
	KindNetworkError     ErrorKind = "network-error"
	KindUnknown          ErrorKind = "unknown"
)

// ClassifiedError is a normalized failure. Transport clients never leak raw
// platform errors: every failure path produces one of these.
//
// Message is short and suitable for end users; Detail carries the technical
// context (status code, body excerpt, wrapped error text). RetryAfter is an
// explicit server hint that overrides the computed backoff for one attempt;
// zero means no hint.
type ClassifiedError struct {
	Kind       ErrorKind
	Retryable  bool
	RetryAfter time.Duration
	Message    string
	Detail     string
	Status     int // originating HTTP status, zero if none
	Cause      error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *ClassifiedError) Unwrap() error { return e.Cause }
