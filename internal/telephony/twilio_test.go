package telephony

import (
	"context"
	"testing"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/go-resty/resty/v2"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCallAPI struct {
	createCalls []string // "from" values seen, in order
	rejectFrom  string
	rejectCode  int
	rejectMsg   string // defaults to an invalid-from message when empty
}

func (f *fakeCallAPI) CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error) {
	from := ""
	if params.From != nil {
		from = *params.From
	}
	f.createCalls = append(f.createCalls, from)

	if from == f.rejectFrom {
		msg := f.rejectMsg
		if msg == "" {
			msg = "The 'From' number is not a valid phone number"
		}
		return nil, &twilioclient.TwilioRestError{
			Code:    f.rejectCode,
			Message: msg,
		}
	}
	sid := "CA" + from
	status := "queued"
	return &openapi.ApiV2010Call{Sid: &sid, Status: (*openapi.CallStatus)(&status)}, nil
}

func (f *fakeCallAPI) FetchCall(sid string, params *openapi.FetchCallParams) (*openapi.ApiV2010Call, error) {
	return nil, nil
}

func (f *fakeCallAPI) UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error) {
	return nil, nil
}

func newTestAdapter(api callAPI) *twilioAdapter {
	return &twilioAdapter{
		logger: commons.NewLogger("debug"),
		api:    api,
		http:   resty.New(),
	}
}

func TestPlaceCallAlphaLabelFallback(t *testing.T) {
	fake := &fakeCallAPI{rejectFrom: "Memoora", rejectCode: 21211}
	adapter := newTestAdapter(fake)

	req := PlaceCallRequest{
		Callee: "+13128484329",
		CallerIdentity: CallerIdentityRequest{
			UseAlphaLabel: true,
			AlphaLabel:    "Memoora",
			FallbackPhone: "+17085547471",
		},
	}

	result, err := adapter.PlaceCall(context.Background(), req)
	if err != nil {
		t.Fatalf("expected fallback to succeed, got error: %v", err)
	}
	if !result.FallbackUsed {
		t.Fatal("expected FallbackUsed=true")
	}
	if len(fake.createCalls) != 2 {
		t.Fatalf("expected exactly one retry (2 attempts), got %d", len(fake.createCalls))
	}
	if fake.createCalls[0] != "Memoora" || fake.createCalls[1] != "+17085547471" {
		t.Fatalf("unexpected call sequence: %v", fake.createCalls)
	}
}

func TestPlaceCallSucceedsWithoutFallback(t *testing.T) {
	fake := &fakeCallAPI{}
	adapter := newTestAdapter(fake)

	req := PlaceCallRequest{
		Callee: "+13128484329",
		CallerIdentity: CallerIdentityRequest{
			FallbackPhone: "+17085547471",
		},
	}

	result, err := adapter.PlaceCall(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FallbackUsed {
		t.Fatal("expected no fallback")
	}
	if len(fake.createCalls) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(fake.createCalls))
	}
}

func TestPlaceCallOtherRejectionSurfacesUnchanged(t *testing.T) {
	fake := &fakeCallAPI{rejectFrom: "Memoora", rejectCode: 13224, rejectMsg: "Call blocked by account permissions"}
	adapter := newTestAdapter(fake)

	req := PlaceCallRequest{
		Callee: "+13128484329",
		CallerIdentity: CallerIdentityRequest{
			UseAlphaLabel: true,
			AlphaLabel:    "Memoora",
			FallbackPhone: "+17085547471",
		},
	}

	_, err := adapter.PlaceCall(context.Background(), req)
	if err == nil {
		t.Fatal("expected error to surface")
	}
	if len(fake.createCalls) != 1 {
		t.Fatalf("expected no retry for non invalid-from rejection, got %d attempts", len(fake.createCalls))
	}
}
