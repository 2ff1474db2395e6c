package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"golang.org/x/oauth2"

	"authgate/cmd/identity"
	"authgate/cmd/internal/auth/passwordless"
	"authgate/cmd/internal/auth/routes"
	"authgate/cmd/internal/auth/session"
	"authgate/cmd/internal/auth/thirdparty"
	"authgate/cmd/security/password"
)

type sentMessage struct {
	To, Subject, Body string
}

type recordingDelivery struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (d *recordingDelivery) SendEmail(_ context.Context, to, subject, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (d *recordingDelivery) SendSMS(_ context.Context, to, body string) error {
	return d.SendEmail(context.Background(), to, "", body)
}

func (d *recordingDelivery) last(t *testing.T) sentMessage {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		t.Fatalf("no message sent")
	}
	return d.sent[len(d.sent)-1]
}

func (d *recordingDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

// linkToken pulls the token query parameter out of the first URL in body.
func linkToken(t *testing.T, body string) string {
	t.Helper()
	i := strings.Index(body, "http")
	if i < 0 {
		t.Fatalf("no link in %q", body)
	}
	raw := strings.Fields(body[i:])[0]
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("token")
}

type fixture struct {
	client   *Local
	users    *identity.MemoryStore
	delivery *recordingDelivery
}

func newFixture(t *testing.T, oauth *thirdparty.Registry) fixture {
	t.Helper()

	cfg := session.DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	mgr, err := session.NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}
	pw, err := identity.NewPasswords(password.FastConfig())
	if err != nil {
		t.Fatalf("NewPasswords: %v", err)
	}

	users := identity.NewMemoryStore()
	delivery := &recordingDelivery{}
	c, err := NewLocal(LocalDeps{
		Sessions:      session.NewService(cfg, session.NewMemoryStore(), mgr),
		Users:         users,
		Passwords:     pw,
		Codes:         passwordless.NewManager(passwordless.DefaultConfig()),
		OAuth:         oauth,
		Mailer:        delivery,
		SMS:           delivery,
		WebsiteDomain: "http://localhost:3000/",
		Paths:         routes.New(""),
	})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return fixture{client: c, users: users, delivery: delivery}
}

func TestNewLocal_RequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := NewLocal(LocalDeps{}); err == nil {
		t.Fatalf("expected error for empty deps")
	}
}

func TestSignUpSignInValidateLogout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	up, err := f.client.SignUp(ctx, "a@example.com", "Passw0rd123", Device{})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if up.Status != StatusOK || !up.Tokens.HasSession() || up.Tokens.AntiCsrfToken == "" {
		t.Fatalf("unexpected sign up result %+v", up)
	}

	dup, err := f.client.SignUp(ctx, "A@example.com", "Passw0rd123", Device{})
	if err != nil || dup.Status != StatusEmailAlreadyExists {
		t.Fatalf("duplicate sign up: status=%s err=%v", dup.Status, err)
	}

	if res, _ := f.client.SignIn(ctx, "a@example.com", "wrong0pass", Device{}); res.Status != StatusWrongCredentials {
		t.Fatalf("wrong password: %s", res.Status)
	}
	if res, _ := f.client.SignIn(ctx, "nobody@example.com", "Passw0rd123", Device{}); res.Status != StatusWrongCredentials {
		t.Fatalf("unknown email: %s", res.Status)
	}

	in, err := f.client.SignIn(ctx, "a@example.com", "Passw0rd123", Device{})
	if err != nil || in.Status != StatusOK {
		t.Fatalf("SignIn: status=%s err=%v", in.Status, err)
	}

	id, err := f.client.Validate(ctx, in.Tokens.AccessToken, in.Tokens.AntiCsrfToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.UserID != in.UserID || id.UserID != up.UserID {
		t.Fatalf("identity mismatch %+v vs %s", id, in.UserID)
	}

	if _, err := f.client.Validate(ctx, in.Tokens.AccessToken, "bogus"); err == nil {
		t.Fatalf("expected anti-csrf failure")
	} else if se, ok := AsSessionError(err); !ok || se.Kind != KindUnauthorised {
		t.Fatalf("expected unauthorised, got %v", err)
	}

	if err := f.client.Logout(ctx, in.Tokens.AccessToken, in.Tokens.AntiCsrfToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := f.client.Logout(ctx, in.Tokens.AccessToken, in.Tokens.AntiCsrfToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	_, err = f.client.Validate(ctx, in.Tokens.AccessToken, in.Tokens.AntiCsrfToken)
	if se, ok := AsSessionError(err); !ok || se.Kind != KindUnauthorised {
		t.Fatalf("expected unauthorised after logout, got %v", err)
	}

	// The first session is untouched by logging out the second.
	if _, err := f.client.Validate(ctx, up.Tokens.AccessToken, up.Tokens.AntiCsrfToken); err != nil {
		t.Fatalf("first session should survive: %v", err)
	}
}

func TestValidate_EmptyAndExpired(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.client.Validate(ctx, "", "")
	if se, ok := AsSessionError(err); !ok || se.Kind != KindUnauthorised {
		t.Fatalf("empty token: %v", err)
	}
	_, err = f.client.Validate(ctx, "v4.public.garbage", "")
	if se, ok := AsSessionError(err); !ok || se.Kind != KindUnauthorised {
		t.Fatalf("garbage token: %v", err)
	}

	res, err := f.client.SignUp(ctx, "exp@example.com", "Passw0rd123", Device{})
	if err != nil || res.Status != StatusOK {
		t.Fatalf("SignUp: %v %s", err, res.Status)
	}

	base := time.Now().UTC()
	f.client.d.Now = func() time.Time { return base.Add(session.DefaultConfig().AccessTokenTTL + time.Minute) }

	_, err = f.client.Validate(ctx, res.Tokens.AccessToken, res.Tokens.AntiCsrfToken)
	if se, ok := AsSessionError(err); !ok || se.Kind != KindTryRefresh {
		t.Fatalf("expected try-refresh, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	in, err := f.client.SignUp(ctx, "r@example.com", "Passw0rd123", Device{})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if res, err := f.client.Refresh(ctx, "", "", Device{}); err != nil || res.Status != StatusFailed {
		t.Fatalf("empty refresh: %s %v", res.Status, err)
	}

	rot, err := f.client.Refresh(ctx, in.Tokens.RefreshToken, in.Tokens.AntiCsrfToken, Device{})
	if err != nil || rot.Status != StatusOK {
		t.Fatalf("Refresh: %s %v", rot.Status, err)
	}
	if rot.Tokens.RefreshToken == in.Tokens.RefreshToken || rot.Tokens.AccessToken == "" {
		t.Fatalf("tokens not rotated")
	}
	_, err = f.client.Validate(ctx, in.Tokens.AccessToken, in.Tokens.AntiCsrfToken)
	if se, ok := AsSessionError(err); !ok || se.Kind != KindTryRefresh {
		t.Fatalf("rotated access token should ask for a refresh, got %v", err)
	}

	reuse, err := f.client.Refresh(ctx, in.Tokens.RefreshToken, in.Tokens.AntiCsrfToken, Device{})
	if err != nil || reuse.Status != StatusFailed {
		t.Fatalf("reuse: %s %v", reuse.Status, err)
	}
	if _, err := f.client.Validate(ctx, rot.Tokens.AccessToken, rot.Tokens.AntiCsrfToken); err == nil {
		t.Fatalf("reuse should revoke the rotated session")
	}
}

func TestEmailExists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.client.SignUp(ctx, "e@example.com", "Passw0rd123", Device{}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	for email, want := range map[string]bool{"e@example.com": true, "E@EXAMPLE.COM": true, "x@example.com": false, "": false} {
		got, err := f.client.EmailExists(ctx, email)
		if err != nil || got != want {
			t.Fatalf("EmailExists(%q) = %v, %v", email, got, err)
		}
	}
}

func TestPasswordReset(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	in, err := f.client.SignUp(ctx, "p@example.com", "Passw0rd123", Device{})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if err := f.client.SendPasswordResetEmail(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email should be silent: %v", err)
	}
	if f.delivery.count() != 0 {
		t.Fatalf("no mail expected for unknown email")
	}

	if err := f.client.SendPasswordResetEmail(ctx, "p@example.com"); err != nil {
		t.Fatalf("SendPasswordResetEmail: %v", err)
	}
	msg := f.delivery.last(t)
	if msg.To != "p@example.com" || !strings.Contains(msg.Body, "http://localhost:3000/reset-password?token=") {
		t.Fatalf("unexpected mail %+v", msg)
	}
	tok := linkToken(t, msg.Body)

	if st, err := f.client.ResetPassword(ctx, "not-a-token", "N3wpassword"); err != nil || st != StatusResetInvalidToken {
		t.Fatalf("bad token: %s %v", st, err)
	}
	if st, err := f.client.ResetPassword(ctx, tok, "N3wpassword"); err != nil || st != StatusOK {
		t.Fatalf("ResetPassword: %s %v", st, err)
	}
	if st, _ := f.client.ResetPassword(ctx, tok, "Other0pass"); st != StatusResetInvalidToken {
		t.Fatalf("token reuse should fail, got %s", st)
	}

	if _, err := f.client.Validate(ctx, in.Tokens.AccessToken, in.Tokens.AntiCsrfToken); err == nil {
		t.Fatalf("reset should revoke existing sessions")
	}
	if res, _ := f.client.SignIn(ctx, "p@example.com", "Passw0rd123", Device{}); res.Status != StatusWrongCredentials {
		t.Fatalf("old password should fail, got %s", res.Status)
	}
	if res, _ := f.client.SignIn(ctx, "p@example.com", "N3wpassword", Device{}); res.Status != StatusOK {
		t.Fatalf("new password should work, got %s", res.Status)
	}
}

func TestPasswordless_CodeAndLink(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	code, err := f.client.CreatePasswordlessCode(ctx, passwordless.Contact{Email: "pl@example.com"}, passwordless.FlowBoth)
	if err != nil {
		t.Fatalf("CreatePasswordlessCode: %v", err)
	}
	msg := f.delivery.last(t)
	if msg.To != "pl@example.com" || !strings.Contains(msg.Body, "/passwordless/login?token=") {
		t.Fatalf("unexpected delivery %+v", msg)
	}

	wrong, err := f.client.PasswordlessSignIn(ctx, PasswordlessCredentials{
		UserInputCode:    "not-it",
		DeviceID:         code.DeviceID,
		PreAuthSessionID: code.PreAuthSessionID,
	}, Device{})
	if err != nil || wrong.Status != StatusIncorrectCode {
		t.Fatalf("wrong code: %s %v", wrong.Status, err)
	}

	first, err := f.client.PasswordlessSignIn(ctx, PasswordlessCredentials{
		LinkCode:         linkToken(t, msg.Body),
		PreAuthSessionID: code.PreAuthSessionID,
	}, Device{})
	if err != nil || first.Status != StatusOK || !first.Tokens.HasSession() {
		t.Fatalf("link sign in: %+v %v", first, err)
	}

	// A second flow for the same contact signs into the same user.
	code2, err := f.client.CreatePasswordlessCode(ctx, passwordless.Contact{Email: "pl@example.com"}, passwordless.FlowCode)
	if err != nil {
		t.Fatalf("CreatePasswordlessCode: %v", err)
	}
	body := f.delivery.last(t).Body
	i := strings.Index(body, "is ")
	userCode := strings.TrimSuffix(strings.Fields(body[i+3:])[0], ".")

	second, err := f.client.PasswordlessSignIn(ctx, PasswordlessCredentials{
		UserInputCode:    userCode,
		DeviceID:         code2.DeviceID,
		PreAuthSessionID: code2.PreAuthSessionID,
	}, Device{})
	if err != nil || second.Status != StatusOK {
		t.Fatalf("code sign in: %+v %v", second, err)
	}
	if second.UserID != first.UserID {
		t.Fatalf("expected same user, got %s and %s", first.UserID, second.UserID)
	}
}

func TestPasswordless_Phone(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	code, err := f.client.CreatePasswordlessCode(ctx, passwordless.Contact{PhoneNumber: "+15555550100"}, passwordless.FlowLink)
	if err != nil {
		t.Fatalf("CreatePasswordlessCode: %v", err)
	}
	msg := f.delivery.last(t)
	if msg.To != "+15555550100" {
		t.Fatalf("expected sms to phone, got %+v", msg)
	}
	res, err := f.client.PasswordlessSignIn(ctx, PasswordlessCredentials{
		LinkCode:         linkToken(t, msg.Body),
		PreAuthSessionID: code.PreAuthSessionID,
	}, Device{})
	if err != nil || res.Status != StatusOK {
		t.Fatalf("sign in: %+v %v", res, err)
	}
	u, err := f.users.GetUserByPhone(ctx, "+15555550100")
	if err != nil || u.ID != res.UserID {
		t.Fatalf("user not created for phone: %+v %v", u, err)
	}
}

func TestPasswordless_Disabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.client.d.Codes = nil
	_, err := f.client.CreatePasswordlessCode(context.Background(), passwordless.Contact{Email: "a@example.com"}, "")
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

type fakeGitHub struct {
	srv *httptest.Server

	mu       sync.Mutex
	id       int
	email    string
	verified bool
}

func (g *fakeGitHub) set(id int, email string, verified bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id, g.email, g.verified = id, email, verified
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	g := &fakeGitHub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": g.id})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		list := []map[string]any{}
		if g.email != "" {
			list = append(list, map[string]any{"email": g.email, "primary": true, "verified": g.verified})
		}
		_ = json.NewEncoder(w).Encode(list)
	})
	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGitHub) registry() *thirdparty.Registry {
	p := thirdparty.GitHub("client", "secret")
	p.OAuth.Endpoint = oauth2.Endpoint{AuthURL: g.srv.URL + "/authorize", TokenURL: g.srv.URL + "/token"}
	p.UserInfoURL = g.srv.URL + "/user"
	p.EmailsURL = g.srv.URL + "/user/emails"
	return thirdparty.NewRegistry([]byte("0123456789abcdef0123456789abcdef"), []thirdparty.Provider{p}, thirdparty.WithHTTPClient(g.srv.Client()))
}

func callback(t *testing.T, c *Local, code string) ThirdPartyCallback {
	t.Helper()
	red, err := c.ThirdPartyRedirect(context.Background(), "github")
	if err != nil || red.Status != StatusOK {
		t.Fatalf("ThirdPartyRedirect: %+v %v", red, err)
	}
	u, err := url.Parse(red.URL)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	if got := u.Query().Get("redirect_uri"); got != "http://localhost:3000/thirdparty/login?provider=github" {
		t.Fatalf("redirect_uri = %q", got)
	}
	return ThirdPartyCallback{Provider: "github", Code: code, State: u.Query().Get("state"), PKCEVerifier: red.PKCEVerifier}
}

func TestThirdParty_SignInUp(t *testing.T) {
	t.Parallel()

	gh := newFakeGitHub(t)
	f := newFixture(t, gh.registry())
	ctx := context.Background()

	if ids := f.client.ThirdPartyProviders(); len(ids) != 1 || ids[0] != "github" {
		t.Fatalf("providers = %v", ids)
	}
	if red, _ := f.client.ThirdPartyRedirect(ctx, "myspace"); red.Status != StatusUnrecognizedProvider {
		t.Fatalf("unknown provider redirect: %s", red.Status)
	}
	if res, _ := f.client.ThirdPartySignIn(ctx, ThirdPartyCallback{Provider: "myspace"}, Device{}); res.Status != StatusUnrecognizedProvider {
		t.Fatalf("unknown provider sign in: %s", res.Status)
	}

	if res, err := f.client.ThirdPartySignIn(ctx, callback(t, f.client, "bad-code"), Device{}); err != nil || res.Status != StatusGeneralError {
		t.Fatalf("bad code: %s %v", res.Status, err)
	}

	gh.set(1, "", false)
	if res, _ := f.client.ThirdPartySignIn(ctx, callback(t, f.client, "good-code"), Device{}); res.Status != StatusNoEmailFound {
		t.Fatalf("no email: %s", res.Status)
	}

	gh.set(1, "octo@example.com", false)
	if res, _ := f.client.ThirdPartySignIn(ctx, callback(t, f.client, "good-code"), Device{}); res.Status != StatusEmailNotVerified {
		t.Fatalf("unverified: %s", res.Status)
	}

	gh.set(1, "octo@example.com", true)
	first, err := f.client.ThirdPartySignIn(ctx, callback(t, f.client, "good-code"), Device{})
	if err != nil || first.Status != StatusOK {
		t.Fatalf("first sign in: %+v %v", first, err)
	}
	again, err := f.client.ThirdPartySignIn(ctx, callback(t, f.client, "good-code"), Device{})
	if err != nil || again.Status != StatusOK || again.UserID != first.UserID {
		t.Fatalf("second sign in: %+v %v", again, err)
	}

	// The provider reports a new address for the same account.
	gh.set(1, "octo2@example.com", true)
	moved, err := f.client.ThirdPartySignIn(ctx, callback(t, f.client, "good-code"), Device{})
	if err != nil || moved.Status != StatusOK || moved.UserID != first.UserID {
		t.Fatalf("email change: %+v %v", moved, err)
	}
	if ok, _ := f.client.EmailExists(ctx, "octo2@example.com"); !ok {
		t.Fatalf("user email should follow the provider")
	}
}

func TestThirdParty_EmailOwnedByOtherUser(t *testing.T) {
	t.Parallel()

	gh := newFakeGitHub(t)
	f := newFixture(t, gh.registry())
	ctx := context.Background()

	if _, err := f.client.SignUp(ctx, "taken@example.com", "Passw0rd123", Device{}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	gh.set(7, "taken@example.com", true)
	if res, _ := f.client.ThirdPartySignIn(ctx, callback(t, f.client, "good-code"), Device{}); res.Status != StatusSignInUpNotAllowed {
		t.Fatalf("existing email: %s", res.Status)
	}

	gh.set(8, "fresh@example.com", true)
	if res, _ := f.client.ThirdPartySignIn(ctx, callback(t, f.client, "good-code"), Device{}); res.Status != StatusOK {
		t.Fatalf("fresh sign in: %s", res.Status)
	}
	gh.set(8, "taken@example.com", true)
	if res, _ := f.client.ThirdPartySignIn(ctx, callback(t, f.client, "good-code"), Device{}); res.Status != StatusEmailChangeNotAllowed {
		t.Fatalf("email change onto taken address: %s", res.Status)
	}
}
