// Package apperrors implements the error taxonomy of spec.md §7: a stable
// set of machine-readable codes, each mapped to an HTTP status, carried
// through every component instead of ad-hoc error strings.
package apperrors

import "fmt"

// Code is one of the stable, machine-readable error codes from spec.md §7.
type Code string

const (
	InvalidInput        Code = "invalid_input"
	AuthRequired        Code = "auth_required"
	AuthInvalid         Code = "auth_invalid"
	RateLimited         Code = "rate_limited"
	QuotaExceeded       Code = "quota_exceeded"
	NotFound            Code = "not_found"
	ConflictState       Code = "conflict_state"
	UpstreamUnavailable Code = "upstream_unavailable"
	UpstreamRejected    Code = "upstream_rejected"
	ResourceExhausted   Code = "resource_exhausted"
	Internal            Code = "internal"
)

// HTTPStatus maps a Code to the status spec.md §7 assigns it.
func (c Code) HTTPStatus() int {
	switch c {
	case InvalidInput:
		return 400
	case AuthRequired, AuthInvalid:
		return 401
	case RateLimited, QuotaExceeded:
		return 429
	case NotFound:
		return 404
	case ConflictState:
		return 409
	case ResourceExhausted:
		return 503
	case UpstreamUnavailable, UpstreamRejected:
		return 502
	default:
		return 500
	}
}

// Error is a structured, user-facing failure: {error, message, details?}.
type Error struct {
	ErrCode Code                   `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Message)
}

// New builds a structured Error.
func New(code Code, message string) *Error {
	return &Error{ErrCode: code, Message: message}
}

// WithDetails attaches machine-readable context (e.g. retryAfter, window).
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// RateLimitedWindow builds the RateLimited{window} error shape from
// spec.md §4.1/§8, including the retryAfter hint from §7.
func RateLimitedWindow(window string, retryAfterSeconds int) *Error {
	return New(RateLimited, fmt.Sprintf("rate limit exceeded for %s window", window)).
		WithDetails(map[string]interface{}{
			"window":     window,
			"retryAfter": retryAfterSeconds,
		})
}
