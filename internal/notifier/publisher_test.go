package notifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
)

func TestPublishSignsAndSucceedsOn2xx(t *testing.T) {
	secret := "whsec_test"
	var gotSignature, gotTimestamp string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("x-signature")
		gotTimestamp = r.Header.Get("x-timestamp")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fc := clock.NewFake(time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC))
	pub := NewPublisher(server.URL, secret, "acct-1", fc, commons.NewLogger("debug"))

	err := pub.Publish(Event{
		CallSid:         "call-1",
		Filename:        "story-1.mp3",
		DurationSeconds: 42,
		FileSize:        4096,
		AccountID:       "acct-1",
		Status:          "completed",
		Recorded:        true,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("unmarshal posted body: %v", err)
	}
	if payload["callSid"] != "call-1" || payload["filename"] != "story-1.mp3" {
		t.Fatalf("expected callSid/filename keys in the posted body, got %v", payload)
	}
	if payload["durationSeconds"] != float64(42) || payload["fileSize"] != float64(4096) {
		t.Fatalf("expected durationSeconds/fileSize in the posted body, got %v", payload)
	}

	wantTimestamp := strconv.FormatInt(fc.Now().Unix(), 10)
	if gotTimestamp != wantTimestamp {
		t.Fatalf("expected timestamp %s, got %s", wantTimestamp, gotTimestamp)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(wantTimestamp))
	mac.Write([]byte("."))
	mac.Write(gotBody)
	wantSig := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSignature != wantSig {
		t.Fatalf("expected signature %s, got %s", wantSig, gotSignature)
	}
}

func TestPublishDoesNotRetryOn4xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	fc := clock.NewFake(time.Now())
	pub := NewPublisher(server.URL, "secret", "", fc, commons.NewLogger("debug"))

	if err := pub.Publish(Event{CallSid: "call-2"}); err == nil {
		t.Fatal("expected 4xx to surface as an error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a 4xx response, got %d", attempts)
	}
}

func TestPublishRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fc := clock.NewFake(time.Now())
	pub := NewPublisher(server.URL, "secret", "", fc, commons.NewLogger("debug"))

	if err := pub.Publish(Event{CallSid: "call-3"}); err != nil {
		t.Fatalf("expected eventual success, got: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts (2 failures then success), got %d", attempts)
	}
}

func TestPublishGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fc := clock.NewFake(time.Now())
	pub := NewPublisher(server.URL, "secret", "", fc, commons.NewLogger("debug"))

	if err := pub.Publish(Event{CallSid: "call-4"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != maxAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", maxAttempts, attempts)
	}
}
