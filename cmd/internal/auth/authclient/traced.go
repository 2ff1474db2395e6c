package authclient

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"authgate/cmd/internal/auth/passwordless"
)

const tracerName = "authgate/authclient"

// Traced wraps a Client and records one span per verb.
type Traced struct {
	next   Client
	tracer trace.Tracer
}

var _ Client = (*Traced)(nil)

// TracedOption configures a Traced client.
type TracedOption func(*tracedOptions)

type tracedOptions struct {
	provider trace.TracerProvider
}

// WithTracerProvider records spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) TracedOption {
	return func(o *tracedOptions) { o.provider = tp }
}

// NewTraced wraps next. Spans go to the global tracer provider unless
// WithTracerProvider is given.
func NewTraced(next Client, opts ...TracedOption) *Traced {
	o := tracedOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	tp := o.provider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Traced{next: next, tracer: tp.Tracer(tracerName)}
}

func (t *Traced) start(ctx context.Context, verb string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "authclient."+verb, trace.WithSpanKind(trace.SpanKindInternal))
}

func end(span trace.Span, status Status, err error) {
	if status != "" {
		span.SetAttributes(attribute.String("authgate.status", string(status)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *Traced) SignIn(ctx context.Context, email, password string, dev Device) (SignInResult, error) {
	ctx, span := t.start(ctx, "SignIn")
	res, err := t.next.SignIn(ctx, email, password, dev)
	end(span, res.Status, err)
	return res, err
}

func (t *Traced) SignUp(ctx context.Context, email, password string, dev Device) (SignInResult, error) {
	ctx, span := t.start(ctx, "SignUp")
	res, err := t.next.SignUp(ctx, email, password, dev)
	end(span, res.Status, err)
	return res, err
}

func (t *Traced) Refresh(ctx context.Context, refreshToken, antiCsrf string, dev Device) (RefreshResult, error) {
	ctx, span := t.start(ctx, "Refresh")
	res, err := t.next.Refresh(ctx, refreshToken, antiCsrf, dev)
	end(span, res.Status, err)
	return res, err
}

func (t *Traced) Logout(ctx context.Context, accessToken, antiCsrf string) error {
	ctx, span := t.start(ctx, "Logout")
	err := t.next.Logout(ctx, accessToken, antiCsrf)
	end(span, "", err)
	return err
}

// Validate records session failures as a kind attribute rather than as span errors.
func (t *Traced) Validate(ctx context.Context, accessToken, antiCsrf string) (Identity, error) {
	ctx, span := t.start(ctx, "Validate")
	id, err := t.next.Validate(ctx, accessToken, antiCsrf)
	if se, ok := AsSessionError(err); ok {
		span.SetAttributes(attribute.String("authgate.session_error", se.Kind.String()))
		span.End()
		return id, err
	}
	end(span, "", err)
	return id, err
}

func (t *Traced) EmailExists(ctx context.Context, email string) (bool, error) {
	ctx, span := t.start(ctx, "EmailExists")
	ok, err := t.next.EmailExists(ctx, email)
	span.SetAttributes(attribute.Bool("authgate.exists", ok))
	end(span, "", err)
	return ok, err
}

func (t *Traced) SendPasswordResetEmail(ctx context.Context, email string) error {
	ctx, span := t.start(ctx, "SendPasswordResetEmail")
	err := t.next.SendPasswordResetEmail(ctx, email)
	end(span, "", err)
	return err
}

func (t *Traced) ResetPassword(ctx context.Context, token, newPassword string) (Status, error) {
	ctx, span := t.start(ctx, "ResetPassword")
	st, err := t.next.ResetPassword(ctx, token, newPassword)
	end(span, st, err)
	return st, err
}

func (t *Traced) CreatePasswordlessCode(ctx context.Context, contact passwordless.Contact, flow passwordless.Flow) (CodeResult, error) {
	ctx, span := t.start(ctx, "CreatePasswordlessCode")
	res, err := t.next.CreatePasswordlessCode(ctx, contact, flow)
	span.SetAttributes(attribute.String("authgate.flow", string(flow)))
	end(span, "", err)
	return res, err
}

func (t *Traced) PasswordlessSignIn(ctx context.Context, creds PasswordlessCredentials, dev Device) (SignInResult, error) {
	ctx, span := t.start(ctx, "PasswordlessSignIn")
	res, err := t.next.PasswordlessSignIn(ctx, creds, dev)
	end(span, res.Status, err)
	return res, err
}

func (t *Traced) ThirdPartyProviders() []string {
	return t.next.ThirdPartyProviders()
}

func (t *Traced) ThirdPartyRedirect(ctx context.Context, provider string) (RedirectResult, error) {
	ctx, span := t.start(ctx, "ThirdPartyRedirect")
	span.SetAttributes(attribute.String("authgate.provider", provider))
	res, err := t.next.ThirdPartyRedirect(ctx, provider)
	end(span, res.Status, err)
	return res, err
}

func (t *Traced) ThirdPartySignIn(ctx context.Context, cb ThirdPartyCallback, dev Device) (SignInResult, error) {
	ctx, span := t.start(ctx, "ThirdPartySignIn")
	span.SetAttributes(attribute.String("authgate.provider", cb.Provider))
	res, err := t.next.ThirdPartySignIn(ctx, cb, dev)
	end(span, res.Status, err)
	return res, err
}
