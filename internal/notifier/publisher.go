// Package notifier implements the Notification Publisher (C8): HMAC-signed
// delivery of call-completion events to the upstream backend (spec.md
// §4.8). Grounded on the resty usage in
// internal/telephony/twilio.go's DownloadRecording, the only other place
// this codebase speaks raw HTTP to an external party.
package notifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
)

const (
	maxAttempts    = 3
	initialBackoff = 1 * time.Second
	defaultTimeout = 30 * time.Second
)

// Event is the upstream notification payload (spec.md §4.8's "payload
// body B"). Field order here is the struct's declaration order, which Go
// preserves when marshalling — the same document bytes are used for both
// signing and transmission, per spec.md's "MUST be serialised identically".
// Event is the NotificationEvent payload of spec.md §3/§6: the provider
// call id (never the internal one), the recording's filename, duration and
// byte size, and whichever correlation identifiers the call carried.
type Event struct {
	CallSid         string            `json:"callSid"`
	Filename        string            `json:"filename,omitempty"`
	DurationSeconds int               `json:"durationSeconds,omitempty"`
	FileSize        int64             `json:"fileSize,omitempty"`
	StorytellerID   string            `json:"storytellerId,omitempty"`
	FamilyMemberID  string            `json:"familyMemberId,omitempty"`
	Question        string            `json:"question,omitempty"`
	AccountID       string            `json:"accountId,omitempty"`
	Status          string            `json:"status,omitempty"`
	Recorded        bool              `json:"recorded"`
	Summary         string            `json:"summary,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Publisher is the Notification Publisher contract (C8).
type Publisher interface {
	Publish(event Event) error
}

type publisher struct {
	http      *resty.Client
	clock     clock.Clock
	logger    commons.Logger
	url       string
	secret    string
	accountID string
}

// NewPublisher builds the Notification Publisher posting to upstreamURL,
// signing every payload with upstreamSecret (spec.md §4.8).
func NewPublisher(upstreamURL, upstreamSecret, accountID string, clk clock.Clock, logger commons.Logger) Publisher {
	client := resty.New().SetTimeout(defaultTimeout)
	return &publisher{
		http:      client,
		clock:     clk,
		logger:    logger,
		url:       upstreamURL,
		secret:    upstreamSecret,
		accountID: accountID,
	}
}

// sign computes HEX(HMAC_SHA256(secret, T + "." + B)) per spec.md §4.8.
func sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	ts := strconv.FormatInt(timestamp, 10)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Publish delivers event with a capped exponential-backoff retry on
// network or 5xx failures; 4xx responses are logged and not retried
// (spec.md §4.8).
func (p *publisher) Publish(event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		timestamp := p.clock.Now().Unix()
		signature := sign(p.secret, timestamp, body)

		req := p.http.R().
			SetHeader("Content-Type", "application/json").
			SetHeader("x-api-key", p.secret).
			SetHeader("x-timestamp", strconv.FormatInt(timestamp, 10)).
			SetHeader("x-signature", "sha256="+signature).
			SetBody(body)
		if p.accountID != "" {
			req.SetHeader("x-account-id", p.accountID)
		}

		resp, err := req.Post(p.url)
		if err != nil {
			lastErr = err
			p.logger.Warnf("notification publish attempt %d/%d failed: %v", attempt, maxAttempts, err)
		} else if resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
			return nil
		} else if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
			return fmt.Errorf("upstream rejected notification: status %d: %s", resp.StatusCode(), resp.String())
		} else {
			lastErr = fmt.Errorf("upstream notification failed: status %d: %s", resp.StatusCode(), resp.String())
			p.logger.Warnf("notification publish attempt %d/%d: %v", attempt, maxAttempts, lastErr)
		}

		if attempt == maxAttempts {
			break
		}
		<-p.clock.After(backoff)
		backoff *= 2
	}
	return lastErr
}
