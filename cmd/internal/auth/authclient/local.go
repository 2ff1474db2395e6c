package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"authgate/cmd/identity"
	"authgate/cmd/internal/auth/cookies"
	"authgate/cmd/internal/auth/passwordless"
	"authgate/cmd/internal/auth/routes"
	"authgate/cmd/internal/auth/session"
	"authgate/cmd/internal/auth/thirdparty"
	"authgate/cmd/security/token"
)

// LocalDeps wires the embedded backend. Codes and OAuth may be nil, which
// disables the passwordless and third-party verbs respectively.
type LocalDeps struct {
	Sessions  *session.Service
	Users     identity.Store
	Passwords *identity.Passwords
	Codes     *passwordless.Manager
	OAuth     *thirdparty.Registry
	Mailer    Mailer
	SMS       SMSSender
	Logger    *slog.Logger

	// WebsiteDomain is the public origin used to build emailed links.
	WebsiteDomain string
	Paths         routes.Paths
	// ResetTTL is the lifetime of password reset links. Defaults to one hour.
	ResetTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Local is the in-process auth backend.
type Local struct {
	d LocalDeps
}

var _ Client = (*Local)(nil)

// ErrDisabled is returned by verbs whose backing feature is not configured.
var ErrDisabled = errors.New("authclient: feature disabled")

// NewLocal validates deps and returns a Local.
func NewLocal(d LocalDeps) (*Local, error) {
	switch {
	case d.Sessions == nil:
		return nil, errors.New("authclient: nil session service")
	case d.Users == nil:
		return nil, errors.New("authclient: nil identity store")
	case d.Passwords == nil:
		return nil, errors.New("authclient: nil password hasher")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Mailer == nil || d.SMS == nil {
		dev := LogDelivery{Logger: d.Logger}
		if d.Mailer == nil {
			d.Mailer = dev
		}
		if d.SMS == nil {
			d.SMS = dev
		}
	}
	if d.ResetTTL <= 0 {
		d.ResetTTL = time.Hour
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.WebsiteDomain = strings.TrimRight(strings.TrimSpace(d.WebsiteDomain), "/")
	return &Local{d: d}, nil
}

func (l *Local) now() time.Time { return l.d.Now().UTC() }

func tokensOf(iss session.Issued) cookies.TokenPair {
	return cookies.TokenPair{
		AccessToken:   iss.AccessToken,
		RefreshToken:  iss.RefreshToken,
		AntiCsrfToken: iss.AntiCsrfToken,
	}
}

func (l *Local) issue(ctx context.Context, userID string, dev Device) (SignInResult, error) {
	iss, err := l.d.Sessions.IssueSession(ctx, l.now(), userID, dev)
	if err != nil {
		return SignInResult{}, err
	}
	return SignInResult{Status: StatusOK, UserID: userID, Tokens: tokensOf(iss)}, nil
}

// SignIn checks an email and password.
func (l *Local) SignIn(ctx context.Context, email, password string, dev Device) (SignInResult, error) {
	ua, err := l.d.Users.GetUserAuthByEmail(ctx, email)
	switch {
	case identity.IsNotFound(err):
		l.d.Passwords.Verify(password, "")
		return SignInResult{Status: StatusWrongCredentials}, nil
	case err != nil:
		return SignInResult{}, err
	}
	if !l.d.Passwords.Verify(password, ua.PasswordHash) {
		return SignInResult{Status: StatusWrongCredentials}, nil
	}
	return l.issue(ctx, ua.User.ID, dev)
}

// SignUp creates a password account.
func (l *Local) SignUp(ctx context.Context, email, password string, dev Device) (SignInResult, error) {
	if _, err := l.d.Users.GetUserAuthByEmail(ctx, email); err == nil {
		return SignInResult{Status: StatusEmailAlreadyExists}, nil
	} else if !identity.IsNotFound(err) {
		return SignInResult{}, err
	}

	hash, err := l.d.Passwords.Hash(password)
	if err != nil {
		return SignInResult{}, err
	}
	email = strings.TrimSpace(email)
	u, err := l.d.Users.CreateUser(ctx, identity.CreateUserInput{Email: &email, PasswordHash: hash, Now: l.now()})
	if identity.IsConflict(err) {
		return SignInResult{Status: StatusEmailAlreadyExists}, nil
	}
	if err != nil {
		return SignInResult{}, err
	}
	return l.issue(ctx, u.ID, dev)
}

func isSessionFailure(err error) bool {
	return errors.Is(err, session.ErrInvalidToken) ||
		errors.Is(err, session.ErrAccessTokenExpired) ||
		errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrSessionExpired) ||
		errors.Is(err, session.ErrSessionRevoked) ||
		errors.Is(err, session.ErrRefreshReuseDetected) ||
		errors.Is(err, session.ErrAntiCsrfMismatch)
}

// Refresh rotates a refresh token. Every token problem is reported as
// StatusFailed without distinguishing the cause.
func (l *Local) Refresh(ctx context.Context, refreshToken, antiCsrf string, dev Device) (RefreshResult, error) {
	iss, err := l.d.Sessions.RotateRefresh(ctx, l.now(), refreshToken, antiCsrf, dev)
	if err != nil {
		if !isSessionFailure(err) {
			return RefreshResult{}, err
		}
		if errors.Is(err, session.ErrRefreshReuseDetected) {
			l.d.Logger.WarnContext(ctx, "auth.refresh.reuse_detected")
		}
		return RefreshResult{Status: StatusFailed}, nil
	}
	return RefreshResult{Status: StatusOK, Tokens: tokensOf(iss)}, nil
}

// Logout revokes the session behind accessToken. It is idempotent.
func (l *Local) Logout(ctx context.Context, accessToken, antiCsrf string) error {
	return l.d.Sessions.RevokeByAccessToken(ctx, l.now(), accessToken, antiCsrf)
}

// Validate checks an access token against its session.
func (l *Local) Validate(ctx context.Context, accessToken, antiCsrf string) (Identity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Identity{}, &SessionError{Kind: KindUnauthorised, Err: session.ErrInvalidToken}
	}
	claims, err := l.d.Sessions.ValidateAccessToken(ctx, accessToken, antiCsrf, l.now())
	switch {
	case err == nil:
		return Identity{UserID: claims.UserID, SessionID: claims.SessionID}, nil
	case errors.Is(err, session.ErrAccessTokenExpired):
		return Identity{}, &SessionError{Kind: KindTryRefresh, Err: err}
	case isSessionFailure(err):
		return Identity{}, &SessionError{Kind: KindUnauthorised, Err: err}
	default:
		return Identity{}, err
	}
}

// EmailExists reports whether any user owns email.
func (l *Local) EmailExists(ctx context.Context, email string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, nil
	}
	_, err := l.d.Users.GetUserAuthByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case identity.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// SendPasswordResetEmail mails a single-use reset link. Unknown emails and
// accounts without a password are ignored silently.
func (l *Local) SendPasswordResetEmail(ctx context.Context, email string) error {
	ua, err := l.d.Users.GetUserAuthByEmail(ctx, email)
	if identity.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if ua.PasswordHash == "" || ua.User.Email == nil {
		return nil
	}

	plain, hash, err := token.NewOpaqueWithHash(32)
	if err != nil {
		return err
	}
	now := l.now()
	if err := l.d.Users.CreateResetToken(ctx, ua.User.ID, hash, now.Add(l.d.ResetTTL), now); err != nil {
		return err
	}

	link := l.d.WebsiteDomain + l.d.Paths.ResetPassword() + "?token=" + url.QueryEscape(plain)
	body := fmt.Sprintf("Use this link to reset your password:\n\n%s\n\nThe link expires in %s.", link, l.d.ResetTTL)
	return l.d.Mailer.SendEmail(ctx, *ua.User.Email, "Reset your password", body)
}

// ResetPassword redeems a reset token, sets the new password and revokes
// every session of the user.
func (l *Local) ResetPassword(ctx context.Context, resetToken, newPassword string) (Status, error) {
	resetToken = strings.TrimSpace(resetToken)
	if resetToken == "" {
		return StatusResetInvalidToken, nil
	}
	hash, err := l.d.Passwords.Hash(newPassword)
	if err != nil {
		return "", err
	}

	now := l.now()
	userID, err := l.d.Users.ConsumeResetToken(ctx, token.HashSecretHex(resetToken), now)
	if identity.IsNotActive(err) {
		return StatusResetInvalidToken, nil
	}
	if err != nil {
		return "", err
	}
	if err := l.d.Users.SetPasswordHash(ctx, userID, hash, now); err != nil {
		return "", err
	}
	if err := l.d.Sessions.RevokeAll(ctx, now, userID, "password_reset"); err != nil {
		return "", err
	}
	return StatusOK, nil
}

// CreatePasswordlessCode starts a flow and delivers the code and/or link to the contact.
func (l *Local) CreatePasswordlessCode(ctx context.Context, contact passwordless.Contact, flow passwordless.Flow) (CodeResult, error) {
	if l.d.Codes == nil {
		return CodeResult{}, ErrDisabled
	}
	code, err := l.d.Codes.CreateCode(ctx, l.now(), contact, flow)
	if err != nil {
		return CodeResult{}, err
	}

	var parts []string
	if code.UserInputCode != "" {
		parts = append(parts, "Your sign-in code is "+code.UserInputCode+".")
	}
	if code.LinkCode != "" {
		link := l.d.WebsiteDomain + l.d.Paths.LoginPasswordless() + "?token=" + url.QueryEscape(code.LinkCode)
		parts = append(parts, "Sign in with this link: "+link)
	}
	body := strings.Join(parts, "\n")

	if code.Contact.Email != "" {
		err = l.d.Mailer.SendEmail(ctx, code.Contact.Email, "Sign in", body)
	} else {
		err = l.d.SMS.SendSMS(ctx, code.Contact.PhoneNumber, body)
	}
	if err != nil {
		return CodeResult{}, err
	}
	return CodeResult{DeviceID: code.DeviceID, PreAuthSessionID: code.PreAuthSessionID, Flow: code.Flow}, nil
}

// PasswordlessSignIn redeems a code or link and signs the contact in,
// creating the user on first sign-in.
func (l *Local) PasswordlessSignIn(ctx context.Context, creds PasswordlessCredentials, dev Device) (SignInResult, error) {
	if l.d.Codes == nil {
		return SignInResult{}, ErrDisabled
	}

	var (
		res passwordless.Result
		err error
	)
	if creds.LinkCode != "" {
		res, err = l.d.Codes.ConsumeLinkCode(ctx, l.now(), creds.PreAuthSessionID, creds.LinkCode)
	} else {
		res, err = l.d.Codes.ConsumeUserInputCode(ctx, l.now(), creds.DeviceID, creds.PreAuthSessionID, creds.UserInputCode)
	}
	if err != nil {
		return SignInResult{}, err
	}
	if res.Status != passwordless.StatusOK {
		return SignInResult{Status: Status(res.Status)}, nil
	}

	userID, err := l.findOrCreateContact(ctx, res.Contact)
	if err != nil {
		return SignInResult{}, err
	}
	return l.issue(ctx, userID, dev)
}

func (l *Local) lookupContact(ctx context.Context, c passwordless.Contact) (string, error) {
	if c.Email != "" {
		ua, err := l.d.Users.GetUserAuthByEmail(ctx, c.Email)
		return ua.User.ID, err
	}
	u, err := l.d.Users.GetUserByPhone(ctx, c.PhoneNumber)
	return u.ID, err
}

func (l *Local) findOrCreateContact(ctx context.Context, c passwordless.Contact) (string, error) {
	id, err := l.lookupContact(ctx, c)
	if err == nil || !identity.IsNotFound(err) {
		return id, err
	}

	in := identity.CreateUserInput{Now: l.now()}
	if c.Email != "" {
		in.Email = &c.Email
	} else {
		in.PhoneNumber = &c.PhoneNumber
	}
	u, err := l.d.Users.CreateUser(ctx, in)
	if identity.IsConflict(err) {
		// Lost a race with a concurrent first sign-in.
		return l.lookupContact(ctx, c)
	}
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// ThirdPartyProviders lists the configured provider IDs.
func (l *Local) ThirdPartyProviders() []string {
	if l.d.OAuth == nil {
		return nil
	}
	return l.d.OAuth.IDs()
}

func (l *Local) callbackURL(provider string) string {
	return l.d.WebsiteDomain + l.d.Paths.LoginThirdParty() + "?provider=" + url.QueryEscape(provider)
}

// ThirdPartyRedirect returns the provider authorization URL with a PKCE verifier.
func (l *Local) ThirdPartyRedirect(_ context.Context, provider string) (RedirectResult, error) {
	if l.d.OAuth == nil || !l.d.OAuth.Has(provider) {
		return RedirectResult{Status: StatusUnrecognizedProvider}, nil
	}
	auth, err := l.d.OAuth.AuthorizationURL(provider, l.callbackURL(provider), l.now())
	if err != nil {
		return RedirectResult{}, err
	}
	return RedirectResult{Status: StatusOK, URL: auth.URL, PKCEVerifier: auth.PKCEVerifier}, nil
}

// ThirdPartySignIn completes an OAuth callback. Accounts are not linked
// across sign-in methods: an email already owned by another user is rejected.
func (l *Local) ThirdPartySignIn(ctx context.Context, cb ThirdPartyCallback, dev Device) (SignInResult, error) {
	if l.d.OAuth == nil || !l.d.OAuth.Has(cb.Provider) {
		return SignInResult{Status: StatusUnrecognizedProvider}, nil
	}

	info, err := l.d.OAuth.Exchange(ctx, cb.Provider, l.callbackURL(cb.Provider), cb.Code, cb.State, cb.PKCEVerifier, l.now())
	if err != nil {
		l.d.Logger.WarnContext(ctx, "auth.thirdparty.exchange_failed", "provider", cb.Provider, "err", err)
		return SignInResult{Status: StatusGeneralError}, nil
	}
	if info.Email == "" {
		return SignInResult{Status: StatusNoEmailFound}, nil
	}
	if !info.EmailVerified {
		return SignInResult{Status: StatusEmailNotVerified}, nil
	}

	acct, err := l.d.Users.GetExternal(ctx, cb.Provider, info.ID)
	switch {
	case err == nil:
		return l.signInLinked(ctx, acct, info, dev)
	case !identity.IsNotFound(err):
		return SignInResult{}, err
	}

	if _, err := l.d.Users.GetUserAuthByEmail(ctx, info.Email); err == nil {
		return SignInResult{Status: StatusSignInUpNotAllowed}, nil
	} else if !identity.IsNotFound(err) {
		return SignInResult{}, err
	}

	email := info.Email
	now := l.now()
	u, err := l.d.Users.CreateUser(ctx, identity.CreateUserInput{Email: &email, Now: now})
	if identity.IsConflict(err) {
		return SignInResult{Status: StatusSignInUpNotAllowed}, nil
	}
	if err != nil {
		return SignInResult{}, err
	}
	err = l.d.Users.LinkExternal(ctx, identity.ExternalAccount{
		Provider: cb.Provider,
		Subject:  info.ID,
		UserID:   u.ID,
		Email:    info.Email,
	}, now)
	if err != nil {
		return SignInResult{}, err
	}
	return l.issue(ctx, u.ID, dev)
}

func (l *Local) signInLinked(ctx context.Context, acct identity.ExternalAccount, info thirdparty.UserInfo, dev Device) (SignInResult, error) {
	if identity.NormalizeEmail(acct.Email) != identity.NormalizeEmail(info.Email) {
		if err := l.d.Users.UpdateEmail(ctx, acct.UserID, info.Email); err != nil {
			if identity.IsConflict(err) {
				return SignInResult{Status: StatusEmailChangeNotAllowed}, nil
			}
			return SignInResult{}, err
		}
		if err := l.d.Users.UpdateExternalEmail(ctx, acct.Provider, acct.Subject, info.Email); err != nil {
			return SignInResult{}, err
		}
	}
	return l.issue(ctx, acct.UserID, dev)
}
