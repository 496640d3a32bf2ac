package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/apperrors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/credential"
)

type fakeIssuerStore struct {
	credential.Store
	issued    *credential.Issued
	issueErr  error
}

func (f *fakeIssuerStore) Issue(ctx context.Context, clientName, email, website, phoneNumber, description string) (*credential.Issued, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	return f.issued, nil
}

func TestGenerateAPIKeyRejectsMissingFields(t *testing.T) {
	h := NewCredentialHandler(&fakeIssuerStore{}, commons.NewLogger("debug"))
	c, w := testContext(http.MethodPost, "/generate-api-key", map[string]interface{}{"clientName": "Acme"})

	h.GenerateAPIKey(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGenerateAPIKeySucceeds(t *testing.T) {
	issued := &credential.Issued{
		Key:         "sk_live_abc123",
		KeyID:       "key-1",
		Permissions: []string{"call:place"},
		Limits:      credential.Limits{PerHour: 10, PerDay: 50, PerMonth: 1000},
		CreatedAt:   time.Unix(0, 0).UTC(),
	}
	h := NewCredentialHandler(&fakeIssuerStore{issued: issued}, commons.NewLogger("debug"))
	c, w := testContext(http.MethodPost, "/generate-api-key", map[string]interface{}{
		"clientName":     "Acme",
		"email":          "owner@acme.test",
		"companyWebsite": "https://acme.test",
		"phoneNumber":    "+15551234567",
	})

	h.GenerateAPIKey(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGenerateAPIKeyRejectsUnauthorizedDomain(t *testing.T) {
	rejected := apperrors.New(apperrors.InvalidInput, "unauthorized domain").WithDetails(map[string]interface{}{"code": "domain_rejected"})
	h := NewCredentialHandler(&fakeIssuerStore{issueErr: rejected}, commons.NewLogger("debug"))
	c, w := testContext(http.MethodPost, "/generate-api-key", map[string]interface{}{
		"clientName":     "Acme",
		"email":          "owner@blocked.test",
		"companyWebsite": "https://blocked.test",
		"phoneNumber":    "+15551234567",
	})

	h.GenerateAPIKey(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}
