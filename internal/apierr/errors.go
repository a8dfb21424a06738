// Package apierr defines the typed error taxonomy shared by every component
// that talks to the Discord API. An error is classified exactly once, at the
// point the failure is detected, and propagated unchanged from there.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Kind is the closed set of failure categories.
type Kind int

const (
	// KindAuthentication covers 401 responses and rejected credentials.
	KindAuthentication Kind = iota

	// KindValidation covers caller faults: 400, plus 403 (permission denied)
	// and 404 (not found), which the client cannot fix by retrying.
	KindValidation

	// KindRateLimited covers 429 responses and locally-detected budget
	// exhaustion. The error always carries a retry-after duration.
	KindRateLimited

	// KindNetwork covers transport failures and timeouts.
	KindNetwork

	// KindServer covers 5xx responses and any status with no exact mapping.
	KindServer
)

// String makes Kind satisfy the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is a classified API failure. HTTPStatus is zero when the failure
// never produced an HTTP response (transport errors). Details echoes the
// server's error body where one was present.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Message    string
	Details    map[string]any

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *Error) Unwrap() error { return e.cause }

// detailRetryAfterMs is the Details key carrying the rate-limit wait in
// milliseconds. Present on every KindRateLimited error.
const detailRetryAfterMs = "retry_after_ms"

// New constructs an error of the given kind with no HTTP context.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// RateLimited constructs a KindRateLimited error carrying the server-directed
// wait duration.
func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		HTTPStatus: http.StatusTooManyRequests,
		Message:    message,
		Details:    map[string]any{detailRetryAfterMs: retryAfter.Milliseconds()},
	}
}

// FromTransport classifies a transport-level failure (connection error,
// timeout, cancelled context) as KindNetwork, preserving the cause.
func FromTransport(err error) *Error {
	msg := "request failed"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		msg = "request timed out"
	}
	return &Error{Kind: KindNetwork, Message: msg, cause: err}
}

// Classify maps an HTTP response status and body to a typed error. This is
// the single classification point for non-2xx responses. The body, when it
// parses as JSON, is echoed into Details.
func Classify(status int, body []byte, header http.Header) *Error {
	details := parseBody(body)
	message := serverMessage(details)

	switch {
	case status == http.StatusBadRequest:
		if message == "" {
			message = "invalid request"
		}
		return &Error{Kind: KindValidation, HTTPStatus: status, Message: message, Details: details}

	case status == http.StatusUnauthorized:
		if message == "" {
			message = "authentication failed"
		}
		return &Error{Kind: KindAuthentication, HTTPStatus: status, Message: message, Details: details}

	case status == http.StatusForbidden:
		if details == nil {
			details = map[string]any{}
		}
		details["reason"] = "permission_denied"
		return &Error{Kind: KindValidation, HTTPStatus: status, Message: "permission denied", Details: details}

	case status == http.StatusNotFound:
		if details == nil {
			details = map[string]any{}
		}
		details["reason"] = "not_found"
		return &Error{Kind: KindValidation, HTTPStatus: status, Message: "resource not found", Details: details}

	case status == http.StatusTooManyRequests:
		retryAfter := retryAfterFrom(details, header)
		if details == nil {
			details = map[string]any{}
		}
		details[detailRetryAfterMs] = retryAfter.Milliseconds()
		return &Error{Kind: KindRateLimited, HTTPStatus: status, Message: "rate limit exceeded", Details: details}

	case status >= 500 && status <= 599:
		if message == "" {
			message = "server error"
		}
		return &Error{Kind: KindServer, HTTPStatus: status, Message: message, Details: details}

	default:
		// No exact mapping: classify as a server fault with the status
		// echoed rather than dropping it.
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", status)
		}
		return &Error{Kind: KindServer, HTTPStatus: status, Message: message, Details: details}
	}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// RetryAfter extracts the wait duration from a KindRateLimited error.
// Returns false for any other error.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindRateLimited {
		return 0, false
	}
	ms, ok := e.Details[detailRetryAfterMs].(int64)
	if !ok {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// parseBody decodes a JSON error body into a details map. Non-JSON bodies
// are ignored; the taxonomy carries status-derived information regardless.
func parseBody(body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}
	var details map[string]any
	if err := json.Unmarshal(body, &details); err != nil {
		return nil
	}
	return details
}

// serverMessage pulls the human-readable message out of a Discord error body.
func serverMessage(details map[string]any) string {
	if details == nil {
		return ""
	}
	if msg, ok := details["message"].(string); ok {
		return msg
	}
	return ""
}

// retryAfterFrom resolves the 429 wait, preferring the JSON body's
// retry_after (seconds, possibly fractional) over the Retry-After header.
// Falls back to 5 seconds when the server reported neither.
func retryAfterFrom(details map[string]any, header http.Header) time.Duration {
	if details != nil {
		if secs, ok := details["retry_after"].(float64); ok && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	if header != nil {
		if v := header.Get("Retry-After"); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return 5 * time.Second
}
