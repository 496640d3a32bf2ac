// Package telephony implements the Telephony Adapter (C3): the sole
// interface to the external telephony provider for placing calls and
// fetching status/media. Grounded on the provider-credential wrapper
// pattern of api/assistant-api/internal/telephony/{twilio,vonage}.go, with
// the exception-to-tagged-result rework spec.md §9 calls for.
package telephony

import (
	"context"
	"io"
	"strings"
	"time"
)

// PlaceCallRequest is the input to PlaceCall (spec.md §4.3).
type PlaceCallRequest struct {
	Callee             string
	CallerIdentity     CallerIdentityRequest
	PromptWebhookURL   string
	StatusWebhookURL   string
	RecordingWebhookURL string
}

// CallerIdentityRequest carries the desired caller identity plus the
// mandatory phone-number fallback (spec.md §3).
type CallerIdentityRequest struct {
	UseAlphaLabel bool
	AlphaLabel    string
	FallbackPhone string
}

// PlacementResult is the Ok arm of PlaceCall's tagged result.
type PlacementResult struct {
	ProviderSid    string
	InitialStatus  string
	FallbackUsed   bool
	FallbackReason string
}

// StatusResult is the response to FetchStatus (spec.md §4.3).
type StatusResult struct {
	Status    string
	Duration  *int
	StartedAt *time.Time
	EndedAt   *time.Time
}

// ProviderRejected is the tagged "provider rejected the request" arm of
// PlaceCall's result (spec.md §9: "PlaceCall returns a sum type
// {Ok(placement) | ProviderRejected(code, message) | Transport(err)}").
type ProviderRejected struct {
	Code    string
	Message string
}

func (e *ProviderRejected) Error() string {
	return "provider rejected request: " + e.Code + ": " + e.Message
}

// TransportError is the Transport(err) arm: a network/transport failure
// unrelated to provider-side validation.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return "telephony transport error: " + e.Cause.Error() }
func (e *TransportError) Unwrap() error { return e.Cause }

// invalidFromCodes enumerates the provider error codes recognised as an
// "invalid from" class rejection (spec.md §4.3 caller-identity fallback
// algorithm, step 2). Twilio's 21211/21212/21214/21606 family covers
// invalid or unverified "from" numbers/labels.
var invalidFromCodes = map[string]bool{
	"21211": true,
	"21212": true,
	"21214": true,
	"21606": true,
}

// invalidFromSubstrings backs up invalidFromCodes for providers or SDK
// versions that surface the rejection only as free text.
var invalidFromSubstrings = []string{
	"invalid from",
	"is not a valid phone number",
	"not a verified",
}

// IsInvalidFromRejection reports whether rej belongs to the "invalid from"
// error class the fallback algorithm reacts to.
func IsInvalidFromRejection(rej *ProviderRejected) bool {
	if rej == nil {
		return false
	}
	if invalidFromCodes[rej.Code] {
		return true
	}
	lower := strings.ToLower(rej.Message)
	for _, substr := range invalidFromSubstrings {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}

// Adapter is the Telephony Adapter contract (C3).
type Adapter interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (*PlacementResult, error)
	FetchStatus(ctx context.Context, providerSid string) (*StatusResult, error)
	EndCall(ctx context.Context, providerSid string) error
	DownloadRecording(ctx context.Context, mediaURL string) (io.ReadCloser, error)
}
