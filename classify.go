package tether

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// WorkerCrashedMarker is the signature the backend emits when a tool worker
// has crashed and is being replaced. Errors carrying it are retryable after a
// fixed minimum delay, since replacement takes tens of seconds.
const WorkerCrashedMarker = "worker crashed"

// degradedRetryAfter is the minimum wait after a worker crash.
const degradedRetryAfter = 30 * time.Second

// maxDetailLen bounds the body excerpt kept in ClassifiedError.Detail.
const maxDetailLen = 512

// Classify normalizes any error into a ClassifiedError. It never panics and
// never returns nil for a non-nil error: anything it cannot place in the
// taxonomy degrades to KindUnknown.
//
// An error that is already classified passes through unchanged, so wrapping
// layers can call Classify unconditionally.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{
			Kind:    KindCancelled,
			Message: "The operation was cancelled.",
			Detail:  err.Error(),
			Cause:   err,
		}
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return classifyRPC(rpcErr)
	}

	msg := err.Error()

	if strings.Contains(msg, WorkerCrashedMarker) {
		return degraded(msg, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClassifiedError{
			Kind:      KindNetworkError,
			Retryable: true,
			Message:   "The connection timed out.",
			Detail:    msg,
			Cause:     err,
		}
	}

	if matchesAny(msg, networkSignatures) {
		return &ClassifiedError{
			Kind:      KindNetworkError,
			Retryable: true,
			Message:   "The connection was interrupted.",
			Detail:    msg,
			Cause:     err,
		}
	}

	if matchesAny(msg, connectSignatures) {
		return &ClassifiedError{
			Kind:      KindConnectionFailed,
			Retryable: true,
			Message:   "Could not reach the server.",
			Detail:    msg,
			Cause:     err,
		}
	}

	return &ClassifiedError{
		Kind:    KindUnknown,
		Message: "Something went wrong.",
		Detail:  msg,
		Cause:   err,
	}
}

// ClassifyResponse classifies a non-2xx HTTP response. body is the response
// body text (may be empty or truncated); retryAfter is the raw Retry-After
// header value, if any. The same decision table applies whether the body was
// read asynchronously or was already in hand.
func ClassifyResponse(status int, body, retryAfter string) *ClassifiedError {
	lower := strings.ToLower(body)
	detail := fmt.Sprintf("HTTP %d: %s", status, excerpt(body))

	if strings.Contains(lower, strings.ToLower(WorkerCrashedMarker)) {
		ce := degraded(detail, nil)
		ce.Status = status
		return ce
	}

	switch {
	case status == 400:
		if matchesAny(lower, accessSignatures) {
			return &ClassifiedError{
				Kind:    KindAccessRequired,
				Message: "Access to this server has not been granted.",
				Detail:  detail,
				Status:  status,
			}
		}
		return &ClassifiedError{
			Kind:    KindInvalidRequest,
			Message: "The server rejected the request.",
			Detail:  detail,
			Status:  status,
		}
	case status == 401:
		// The caller is expected to invalidate its cached credential on this
		// kind; see the OnAuthInvalid client option.
		return &ClassifiedError{
			Kind:    KindAuthFailed,
			Message: "Authentication failed. Reconnect to sign in again.",
			Detail:  detail,
			Status:  status,
		}
	case status == 403:
		if strings.Contains(lower, "quota") {
			return &ClassifiedError{
				Kind:    KindQuotaExceeded,
				Message: "Usage quota exceeded.",
				Detail:  detail,
				Status:  status,
			}
		}
		return &ClassifiedError{
			Kind:    KindPermissionDenied,
			Message: "Permission denied.",
			Detail:  detail,
			Status:  status,
		}
	case status == 404:
		return &ClassifiedError{
			Kind:    KindNotFound,
			Message: "The requested resource was not found.",
			Detail:  detail,
			Status:  status,
		}
	case status == 429:
		return &ClassifiedError{
			Kind:       KindRateLimited,
			Retryable:  true,
			RetryAfter: parseRetryAfter(retryAfter),
			Message:    "Rate limited. Retrying shortly.",
			Detail:     detail,
			Status:     status,
		}
	case status == 499:
		return &ClassifiedError{
			Kind:    KindCancelled,
			Message: "The request was cancelled.",
			Detail:  detail,
			Status:  status,
		}
	case status >= 500 && status <= 599:
		return &ClassifiedError{
			Kind:      KindServerError,
			Retryable: true,
			Message:   "The server hit an internal error.",
			Detail:    detail,
			Status:    status,
		}
	default:
		return &ClassifiedError{
			Kind:      KindUnknown,
			Retryable: status >= 500,
			Message:   "Something went wrong.",
			Detail:    detail,
			Status:    status,
		}
	}
}

// classifyRPC maps a JSON-RPC error object onto the taxonomy.
func classifyRPC(e *RPCError) *ClassifiedError {
	if strings.Contains(e.Message, WorkerCrashedMarker) {
		return degraded(e.Error(), e)
	}
	switch e.Code {
	case -32700, -32600, -32602:
		return &ClassifiedError{
			Kind:    KindInvalidRequest,
			Message: "The server rejected the request.",
			Detail:  e.Error(),
			Cause:   e,
		}
	case -32601:
		return &ClassifiedError{
			Kind:    KindNotFound,
			Message: "The requested operation does not exist.",
			Detail:  e.Error(),
			Cause:   e,
		}
	case -32603:
		return &ClassifiedError{
			Kind:      KindServerError,
			Retryable: true,
			Message:   "The server hit an internal error.",
			Detail:    e.Error(),
			Cause:     e,
		}
	default:
		return &ClassifiedError{
			Kind:    KindUnknown,
			Message: "The server returned an error.",
			Detail:  e.Error(),
			Cause:   e,
		}
	}
}

func degraded(detail string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Kind:       KindDegradedService,
		Retryable:  true,
		RetryAfter: degradedRetryAfter,
		Message:    "The server is recovering from a crash. Retrying.",
		Detail:     detail,
		Cause:      cause,
	}
}

// accessSignatures mark a 400 that really means "this client is not on the
// server's allowlist" rather than a malformed request.
var accessSignatures = []string{
	"allowlist",
	"not available",
	"policy",
}

// networkSignatures indicate a transient failure on an established
// connection.
var networkSignatures = []string{
	"connection reset",
	"broken pipe",
	"unexpected eof",
	"i/o timeout",
	"use of closed network connection",
	"network is unreachable",
}

// connectSignatures indicate the server could not be reached at all.
var connectSignatures = []string{
	"connection refused",
	"no such host",
	"no route to host",
	"dial tcp",
}

func matchesAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// parseRetryAfter handles both forms of the Retry-After header: a delay in
// seconds or an HTTP date. Unparseable values yield zero (no hint).
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxDetailLen {
		return s[:maxDetailLen] + "…"
	}
	return s
}
