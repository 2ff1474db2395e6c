package authclient

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubClient struct {
	Client
	validateErr error
}

func (s stubClient) SignIn(context.Context, string, string, Device) (SignInResult, error) {
	return SignInResult{Status: StatusWrongCredentials}, nil
}

func (s stubClient) Validate(context.Context, string, string) (Identity, error) {
	if s.validateErr != nil {
		return Identity{}, s.validateErr
	}
	return Identity{UserID: "u1", SessionID: "s1"}, nil
}

func (s stubClient) ThirdPartyProviders() []string { return []string{"github"} }

func TestTraced_PassesThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tr := NewTraced(stubClient{})
	if res, err := tr.SignIn(ctx, "a@example.com", "x", Device{}); err != nil || res.Status != StatusWrongCredentials {
		t.Fatalf("SignIn: %+v %v", res, err)
	}
	if id, err := tr.Validate(ctx, "tok", ""); err != nil || id.UserID != "u1" {
		t.Fatalf("Validate: %+v %v", id, err)
	}
	if ids := tr.ThirdPartyProviders(); len(ids) != 1 {
		t.Fatalf("providers = %v", ids)
	}

	se := &SessionError{Kind: KindTryRefresh}
	tr = NewTraced(stubClient{validateErr: se})
	_, err := tr.Validate(ctx, "tok", "")
	if got, ok := AsSessionError(err); !ok || got.Kind != KindTryRefresh {
		t.Fatalf("session error not preserved: %v", err)
	}

	boom := errors.New("boom")
	tr = NewTraced(stubClient{validateErr: boom})
	if _, err := tr.Validate(ctx, "tok", ""); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestTraced_RecordsSpans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	boom := errors.New("boom")
	tr := NewTraced(stubClient{validateErr: boom}, WithTracerProvider(tp))
	_, _ = tr.SignIn(ctx, "a@example.com", "x", Device{})
	_, _ = tr.Validate(ctx, "tok", "")

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "authclient.SignIn" || spans[1].Name() != "authclient.Validate" {
		t.Fatalf("span names = %q, %q", spans[0].Name(), spans[1].Name())
	}
	var status string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "authgate.status" {
			status = kv.Value.AsString()
		}
	}
	if status != string(StatusWrongCredentials) {
		t.Fatalf("SignIn status attribute = %q", status)
	}
	if spans[1].Status().Code != codes.Error {
		t.Fatalf("Validate span should be an error, got %v", spans[1].Status())
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	if KindTryRefresh.String() != "TRY_REFRESH_TOKEN" || KindUnauthorised.String() != "UNAUTHORISED" {
		t.Fatalf("unexpected kind strings")
	}
	if (&SessionError{Kind: KindUnauthorised}).Error() == "" {
		t.Fatalf("empty error string")
	}
}
