package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/apperrors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/callregistry"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/connectors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/credential"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/dialog"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/telephony"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/workerpool"
)

type fakeCredentialStore struct {
	credential.Store
	validated *credential.Validated
	validateErr error
}

func (f *fakeCredentialStore) Validate(ctx context.Context, keyValue string) (*credential.Validated, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return f.validated, nil
}
func (f *fakeCredentialStore) IncrementUsage(ctx context.Context, keyID string, kind credential.UsageKind) error {
	return nil
}

type fakeRegistryHTTP struct {
	callregistry.Store
	created *callregistry.CallRecord
}

func (f *fakeRegistryHTTP) Create(ctx context.Context, req callregistry.CreateRequest) (*callregistry.CallRecord, error) {
	f.created = &callregistry.CallRecord{InternalID: "call-1", CredentialKeyID: req.CredentialKeyID, Status: callregistry.StatusInitiated}
	return f.created, nil
}
func (f *fakeRegistryHTTP) AttachProviderSid(ctx context.Context, internalID, providerSid string) error {
	return nil
}

type fakeAdapterHTTP struct {
	telephony.Adapter
	placement *telephony.PlacementResult
	err       error
}

func (f *fakeAdapterHTTP) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (*telephony.PlacementResult, error) {
	return f.placement, f.err
}

type fakeEngineHTTP struct {
	dialog.Engine
}

func (f *fakeEngineHTTP) Begin(callID string) (*dialog.Question, error) {
	return &dialog.Question{ID: "q1"}, nil
}

type fakePostgresHTTP struct {
	connectors.PostgresConnector
}

func (f *fakePostgresHTTP) Ping() error { return nil }

type fakeRedisHTTP struct {
	connectors.RedisConnector
}

func (f *fakeRedisHTTP) Ping(ctx context.Context) error { return nil }

func testPool() *workerpool.Pool {
	return workerpool.New(2, 8, commons.NewLogger("debug"))
}

func testContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestPlaceCallRejectsMalformedPhoneNumber(t *testing.T) {
	cfg := &config.AppConfig{PublicBaseURL: "https://example.test"}
	h := NewCallHandler(cfg, &fakeRegistryHTTP{}, &fakeCredentialStore{}, &fakeAdapterHTTP{}, &fakeEngineHTTP{}, testPool(), &fakePostgresHTTP{}, &fakeRedisHTTP{}, commons.NewLogger("debug"))

	c, w := testContext(http.MethodPost, "/call", map[string]interface{}{"phoneNumber": "not-a-number"})
	c.Set(ctxKeyID, "key-1")
	c.Set(ctxAccountID, "acct-1")

	h.PlaceCall(c)

	if w.Code != apperrors.InvalidInput.HTTPStatus() {
		t.Fatalf("expected %d, got %d", apperrors.InvalidInput.HTTPStatus(), w.Code)
	}
}

func TestPlaceCallSucceeds(t *testing.T) {
	cfg := &config.AppConfig{PublicBaseURL: "https://example.test"}
	registry := &fakeRegistryHTTP{}
	adapter := &fakeAdapterHTTP{placement: &telephony.PlacementResult{ProviderSid: "CA999", InitialStatus: "queued"}}
	h := NewCallHandler(cfg, registry, &fakeCredentialStore{}, adapter, &fakeEngineHTTP{}, testPool(), &fakePostgresHTTP{}, &fakeRedisHTTP{}, commons.NewLogger("debug"))

	c, w := testContext(http.MethodPost, "/call", map[string]interface{}{"phoneNumber": "+15551234567", "interactive": true})
	c.Set(ctxKeyID, "key-1")
	c.Set(ctxAccountID, "acct-1")

	h.PlaceCall(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if registry.created == nil || registry.created.CredentialKeyID != "key-1" {
		t.Fatal("expected a call record created for the authenticated credential")
	}
}

func TestPlaceCallSurfacesProviderRejection(t *testing.T) {
	cfg := &config.AppConfig{PublicBaseURL: "https://example.test"}
	adapter := &fakeAdapterHTTP{err: &telephony.ProviderRejected{Code: "21211", Message: "invalid from number"}}
	h := NewCallHandler(cfg, &fakeRegistryHTTP{}, &fakeCredentialStore{}, adapter, &fakeEngineHTTP{}, testPool(), &fakePostgresHTTP{}, &fakeRedisHTTP{}, commons.NewLogger("debug"))

	c, w := testContext(http.MethodPost, "/call", map[string]interface{}{"phoneNumber": "+15551234567"})
	c.Set(ctxKeyID, "key-1")
	c.Set(ctxAccountID, "acct-1")

	h.PlaceCall(c)

	if w.Code != apperrors.UpstreamRejected.HTTPStatus() {
		t.Fatalf("expected %d, got %d", apperrors.UpstreamRejected.HTTPStatus(), w.Code)
	}
}

func TestAuthMiddlewareRejectsMissingKey(t *testing.T) {
	mw := AuthMiddleware(&fakeCredentialStore{})
	c, w := testContext(http.MethodGet, "/calls", nil)

	mw(c)

	if w.Code != apperrors.AuthRequired.HTTPStatus() {
		t.Fatalf("expected %d, got %d", apperrors.AuthRequired.HTTPStatus(), w.Code)
	}
	if !c.IsAborted() {
		t.Fatal("expected the middleware to abort the chain")
	}
}

func TestAuthMiddlewarePassesValidKey(t *testing.T) {
	mw := AuthMiddleware(&fakeCredentialStore{validated: &credential.Validated{KeyID: "key-1", AccountID: "acct-1"}})
	c, w := testContext(http.MethodGet, "/calls", nil)
	c.Request.Header.Set("x-api-key", "sk_live_whatever")

	mw(c)

	if c.IsAborted() {
		t.Fatalf("expected the middleware to pass through, got status %d", w.Code)
	}
	if keyIDFrom(c) != "key-1" {
		t.Fatalf("expected keyId stashed on context, got %q", keyIDFrom(c))
	}
}
