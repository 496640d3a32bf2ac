package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
	"github.com/go-resty/resty/v2"
	twilio "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// callAPI is the narrow subset of twilio-go's generated Voice Calls API
// client this adapter depends on, so tests can substitute a fake without a
// live Twilio account — grounded on twl/vg's "wrap the provider SDK behind
// a small struct" shape in
// api/assistant-api/internal/telephony/{twilio,vonage}.go.
type callAPI interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
	FetchCall(sid string, params *openapi.FetchCallParams) (*openapi.ApiV2010Call, error)
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
}

type twilioAdapter struct {
	logger    commons.Logger
	api       callAPI
	http      *resty.Client
	basicUser string
	basicPass string
}

// NewTwilioAdapter builds the Telephony Adapter backed by the Twilio REST
// API, grounded on twl.Client in
// api/assistant-api/internal/telephony/twilio/twilio.go.
func NewTwilioAdapter(cfg config.TelephonyConfig, logger commons.Logger) Adapter {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSid,
		Password: cfg.AuthToken,
	})
	return &twilioAdapter{
		logger:    logger,
		api:       client.Api,
		http:      resty.New(),
		basicUser: cfg.RecordingBasicUser,
		basicPass: cfg.RecordingBasicPass,
	}
}

// PlaceCall implements the caller-identity fallback algorithm of spec.md
// §4.3: try the alpha label first when requested, retry exactly once with
// the configured fallback phone number on an "invalid from" class
// rejection, and surface any other provider error unchanged.
func (t *twilioAdapter) PlaceCall(ctx context.Context, req PlaceCallRequest) (*PlacementResult, error) {
	from := req.CallerIdentity.FallbackPhone
	usingAlpha := false
	if req.CallerIdentity.UseAlphaLabel && req.CallerIdentity.AlphaLabel != "" {
		from = req.CallerIdentity.AlphaLabel
		usingAlpha = true
	}

	result, err := t.createCall(req, from)
	if err == nil {
		return result, nil
	}

	var rejected *ProviderRejected
	if usingAlpha && errors.As(err, &rejected) && IsInvalidFromRejection(rejected) {
		t.logger.Warnf("alpha label rejected by provider (%s: %s), retrying with fallback phone", rejected.Code, rejected.Message)
		fallbackResult, fallbackErr := t.createCall(req, req.CallerIdentity.FallbackPhone)
		if fallbackErr != nil {
			return nil, fallbackErr
		}
		fallbackResult.FallbackUsed = true
		fallbackResult.FallbackReason = fmt.Sprintf("%s: %s", rejected.Code, rejected.Message)
		return fallbackResult, nil
	}

	return nil, err
}

func (t *twilioAdapter) createCall(req PlaceCallRequest, from string) (*PlacementResult, error) {
	params := &openapi.CreateCallParams{}
	params.SetTo(req.Callee)
	params.SetFrom(from)
	params.SetUrl(req.PromptWebhookURL)
	params.SetStatusCallback(req.StatusWebhookURL)
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})

	resp, err := t.api.CreateCall(params)
	if err != nil {
		return nil, mapTwilioError(err)
	}

	result := &PlacementResult{}
	if resp.Sid != nil {
		result.ProviderSid = *resp.Sid
	}
	if resp.Status != nil {
		result.InitialStatus = string(*resp.Status)
	}
	return result, nil
}

func (t *twilioAdapter) FetchStatus(ctx context.Context, providerSid string) (*StatusResult, error) {
	resp, err := t.api.FetchCall(providerSid, &openapi.FetchCallParams{})
	if err != nil {
		return nil, mapTwilioError(err)
	}

	result := &StatusResult{}
	if resp.Status != nil {
		result.Status = string(*resp.Status)
	}
	if resp.Duration != nil {
		if d, convErr := strconv.Atoi(*resp.Duration); convErr == nil {
			result.Duration = &d
		}
	}
	return result, nil
}

func (t *twilioAdapter) EndCall(ctx context.Context, providerSid string) error {
	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := t.api.UpdateCall(providerSid, params); err != nil {
		return mapTwilioError(err)
	}
	return nil
}

// DownloadRecording performs the authenticated GET described in spec.md
// §4.7; retry/backoff lives in the Recording Fetcher (C7), which is the
// only caller of this method.
func (t *twilioAdapter) DownloadRecording(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	resp, err := t.http.R().
		SetContext(ctx).
		SetBasicAuth(t.basicUser, t.basicPass).
		SetDoNotParseResponse(true).
		Get(mediaURL)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	if resp.StatusCode() == 404 {
		_ = resp.RawBody().Close()
		return nil, &ProviderRejected{Code: "404", Message: "recording not yet available"}
	}
	if resp.StatusCode() >= 300 {
		_ = resp.RawBody().Close()
		return nil, &ProviderRejected{Code: strconv.Itoa(resp.StatusCode()), Message: "recording download failed"}
	}
	return resp.RawBody(), nil
}

// mapTwilioError converts a twilio-go client error into our tagged result
// types (spec.md §9: exceptions become tagged results).
func mapTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return &ProviderRejected{Code: strconv.Itoa(restErr.Code), Message: restErr.Message}
	}
	return &TransportError{Cause: err}
}
