package errors

// Network and HTTP transient-failure classification used by the submission
// client to separate retryable failures from permanent ones

import (
	"context"
	stderrs "errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// RetryableHTTPStatus reports whether a downstream HTTP status is worth retrying
func RetryableHTTPStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// FromHTTPStatus maps a downstream HTTP status to an ErrorCode.
// Retryable statuses map to Unavailable/TooManyRequests so Retryable(err)
// holds; everything else 4xx maps to a permanent code
func FromHTTPStatus(status int) ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorCodeTooManyRequests
	case RetryableHTTPStatus(status):
		return ErrorCodeUnavailable
	case status == http.StatusNotFound:
		return ErrorCodeNotFound
	case status == http.StatusConflict:
		return ErrorCodeConflict
	case status == http.StatusUnauthorized:
		return ErrorCodeUnauthorized
	case status == http.StatusForbidden:
		return ErrorCodeForbidden
	case status >= 400 && status < 500:
		return ErrorCodeInvalidArgument
	default:
		return ErrorCodeUnknown
	}
}

// isTransientNet reports whether the root cause is a network-level failure
// that a later attempt may clear (timeouts, refused/reset connections,
// truncated responses)
func isTransientNet(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if stderrs.As(err, &ne) && ne.Timeout() {
		return true
	}
	if stderrs.Is(err, syscall.ECONNREFUSED) ||
		stderrs.Is(err, syscall.ECONNRESET) ||
		stderrs.Is(err, syscall.EPIPE) {
		return true
	}
	// a server dropping mid-body surfaces as unexpected EOF
	return stderrs.Is(err, io.ErrUnexpectedEOF)
}
