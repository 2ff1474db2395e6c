// Package authclient is the typed contract between the HTTP layer and the
// auth backend. Every verb returns a status enum instead of ad-hoc errors,
// and session validation failures collapse into two kinds: repairable by a
// refresh, or not.
package authclient

import (
	"context"
	"errors"
	"fmt"

	"authgate/cmd/internal/auth/cookies"
	"authgate/cmd/internal/auth/passwordless"
	"authgate/cmd/internal/auth/session"
)

// Kind classifies a session validation failure.
type Kind int

const (
	// KindTryRefresh means the access token is recognizably expired and a refresh may repair it.
	KindTryRefresh Kind = iota + 1
	// KindUnauthorised means there is no recoverable session.
	KindUnauthorised
)

func (k Kind) String() string {
	switch k {
	case KindTryRefresh:
		return "TRY_REFRESH_TOKEN"
	case KindUnauthorised:
		return "UNAUTHORISED"
	default:
		return "UNKNOWN"
	}
}

// SessionError is returned by Validate for auth failures. Any other error
// from Validate is an infrastructure failure.
type SessionError struct {
	Kind Kind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return "authclient: " + e.Kind.String()
	}
	return fmt.Sprintf("authclient: %s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// AsSessionError reports whether err is (or wraps) a *SessionError.
func AsSessionError(err error) (*SessionError, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Status is a backend outcome.
type Status string

const (
	StatusOK                    Status = "OK"
	StatusWrongCredentials      Status = "WRONG_CREDENTIALS_ERROR"
	StatusEmailAlreadyExists    Status = "EMAIL_ALREADY_EXISTS_ERROR"
	StatusFailed                Status = "FAILED"
	StatusResetInvalidToken     Status = "RESET_PASSWORD_INVALID_TOKEN_ERROR"
	StatusIncorrectCode         Status = Status(passwordless.StatusIncorrectCode)
	StatusExpiredCode           Status = Status(passwordless.StatusExpiredCode)
	StatusRestartFlow           Status = Status(passwordless.StatusRestartFlow)
	StatusLinkingFailed         Status = Status(passwordless.StatusLinkingFailed)
	StatusUnrecognizedProvider  Status = "UNRECOGNIZED_PROVIDER"
	StatusNoEmailFound          Status = "NO_EMAIL_FOUND_FOR_USER"
	StatusEmailNotVerified      Status = "EMAIL_NOT_VERIFIED"
	StatusSignInUpNotAllowed    Status = "SIGN_IN_UP_NOT_ALLOWED"
	StatusEmailChangeNotAllowed Status = "EMAIL_CHANGE_NOT_ALLOWED_ERROR"
	StatusGeneralError          Status = "GENERAL_ERROR"
)

// Device identifies the client a session is issued to.
type Device = session.DeviceContext

// SignInResult is returned by every verb that can create a session.
// Tokens is set only for StatusOK.
type SignInResult struct {
	Status Status
	UserID string
	Tokens cookies.TokenPair
}

// RefreshResult is returned by Refresh. Tokens is set only for StatusOK.
type RefreshResult struct {
	Status Status
	Tokens cookies.TokenPair
}

// Identity is the outcome of a successful Validate.
type Identity struct {
	UserID    string
	SessionID string
}

// CodeResult identifies a started passwordless flow.
type CodeResult struct {
	DeviceID         string
	PreAuthSessionID string
	Flow             passwordless.Flow
}

// PasswordlessCredentials is either a typed code (with DeviceID) or a LinkCode.
type PasswordlessCredentials struct {
	UserInputCode    string
	LinkCode         string
	DeviceID         string
	PreAuthSessionID string
}

// RedirectResult is where to send the user to authorize with a provider.
type RedirectResult struct {
	Status       Status
	URL          string
	PKCEVerifier string
}

// ThirdPartyCallback carries the provider's redirect back to us.
type ThirdPartyCallback struct {
	Provider     string
	Code         string
	State        string
	PKCEVerifier string
}

// Client is the backend surface used by the gate and the handlers.
type Client interface {
	SignIn(ctx context.Context, email, password string, dev Device) (SignInResult, error)
	SignUp(ctx context.Context, email, password string, dev Device) (SignInResult, error)
	Refresh(ctx context.Context, refreshToken, antiCsrf string, dev Device) (RefreshResult, error)
	Logout(ctx context.Context, accessToken, antiCsrf string) error
	Validate(ctx context.Context, accessToken, antiCsrf string) (Identity, error)

	EmailExists(ctx context.Context, email string) (bool, error)
	SendPasswordResetEmail(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) (Status, error)

	CreatePasswordlessCode(ctx context.Context, contact passwordless.Contact, flow passwordless.Flow) (CodeResult, error)
	PasswordlessSignIn(ctx context.Context, creds PasswordlessCredentials, dev Device) (SignInResult, error)

	ThirdPartyProviders() []string
	ThirdPartyRedirect(ctx context.Context, provider string) (RedirectResult, error)
	ThirdPartySignIn(ctx context.Context, cb ThirdPartyCallback, dev Device) (SignInResult, error)
}
