package credential

import (
	"context"
	"testing"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/connectors"
)

func newTestStore(t *testing.T, now time.Time) (Store, *clock.Fake) {
	t.Helper()
	logger := commons.NewLogger("debug")
	pg, err := connectors.NewPostgresConnector(config.PostgresConfig{DBName: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	cfg := &config.AppConfig{ClockZone: "UTC", Limits: config.Limits{MaxCallsPerHour: 10, MaxCallsPerDay: 50, MaxCallsPerMonth: 1000}}
	fc := clock.NewFake(now)
	st, err := NewStore(cfg, logger, pg, fc)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return st, fc
}

func TestIssueRejectsMalformedEmail(t *testing.T) {
	st, _ := newTestStore(t, time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC))
	_, err := st.Issue(context.Background(), "Acme", "not-an-email", "", "", "")
	if err == nil {
		t.Fatal("expected malformed email error")
	}
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	st, _ := newTestStore(t, time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC))
	issued, err := st.Issue(context.Background(), "Acme", "dev@acme.com", "https://acme.com", "+13128484329", "test")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Key == "" || issued.KeyID == "" {
		t.Fatal("expected non-empty key and keyId")
	}

	validated, err := st.Validate(context.Background(), issued.Key)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validated.KeyID != issued.KeyID {
		t.Fatalf("expected keyId %s, got %s", issued.KeyID, validated.KeyID)
	}
}

func TestIssueTwiceProducesDifferentDigests(t *testing.T) {
	st, _ := newTestStore(t, time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	a, err := st.Issue(ctx, "Acme", "a@acme.com", "", "", "")
	if err != nil {
		t.Fatalf("issue a: %v", err)
	}
	b, err := st.Issue(ctx, "Acme", "b@acme.com", "", "", "")
	if err != nil {
		t.Fatalf("issue b: %v", err)
	}
	if a.Key == b.Key {
		t.Fatal("expected distinct plaintext keys")
	}
	if a.KeyID == b.KeyID {
		t.Fatal("expected distinct key ids")
	}
	if digestKey(a.Key) == digestKey(b.Key) {
		t.Fatal("expected distinct key digests")
	}
}

func TestRateLimitExactness(t *testing.T) {
	ctx := context.Background()
	st, fc := newTestStore(t, time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC))
	issued, err := st.Issue(ctx, "Acme", "dev@acme.com", "", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	for i := 0; i < issued.Limits.PerHour; i++ {
		if _, err := st.Validate(ctx, issued.Key); err != nil {
			t.Fatalf("validate #%d: %v", i+1, err)
		}
		if err := st.IncrementUsage(ctx, issued.KeyID, CallUsage); err != nil {
			t.Fatalf("increment #%d: %v", i+1, err)
		}
	}

	if _, err := st.Validate(ctx, issued.Key); err == nil {
		t.Fatal("expected the (N+1)-th validate to be rate limited")
	}

	// Roll over to the next hour; the next request should succeed again.
	fc.Advance(time.Hour)
	if _, err := st.Validate(ctx, issued.Key); err != nil {
		t.Fatalf("expected validate to succeed after hour rollover: %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC))
	issued, err := st.Issue(ctx, "Acme", "dev@acme.com", "", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := st.Revoke(ctx, issued.KeyID); err != nil {
		t.Fatalf("revoke 1: %v", err)
	}
	if err := st.Revoke(ctx, issued.KeyID); err != nil {
		t.Fatalf("revoke 2: %v", err)
	}

	if _, err := st.Validate(ctx, issued.Key); err == nil {
		t.Fatal("expected revoked credential to fail validation")
	}
}
