package identity

import (
	"context"
	"time"
)

// User is the canonical principal. At least one of Email or PhoneNumber is set.
type User struct {
	ID          string
	Email       *string
	PhoneNumber *string
	CreatedAt   time.Time
}

// UserAuth is a User with its password credential.
// PasswordHash is empty for users created through passwordless or third-party sign-in.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a new user. PasswordHash is optional.
type CreateUserInput struct {
	Email        *string
	PhoneNumber  *string
	PasswordHash string
	Now          time.Time
}

// ExternalAccount links a third-party identity (provider + subject) to a user.
type ExternalAccount struct {
	Provider string
	Subject  string
	UserID   string
	Email    string
}

// Store is the identity persistence boundary.
type Store interface {
	// CreateUser returns ConflictError{Field: "email"|"phone_number"} on duplicates.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)
	GetUserByPhone(ctx context.Context, phone string) (User, error)

	SetPasswordHash(ctx context.Context, userID, hash string, now time.Time) error
	UpdateEmail(ctx context.Context, userID, email string) error

	// LinkExternal returns ConflictError{Field: "external_account"} if the
	// provider subject is already linked.
	LinkExternal(ctx context.Context, acct ExternalAccount, now time.Time) error
	GetExternal(ctx context.Context, provider, subject string) (ExternalAccount, error)
	UpdateExternalEmail(ctx context.Context, provider, subject, email string) error

	// CreateResetToken stores the hash of a single-use password reset token.
	CreateResetToken(ctx context.Context, userID, tokenHash string, expiresAt, now time.Time) error
	// ConsumeResetToken marks the token used and returns its user.
	// Missing, used and expired tokens all yield ErrNotActive.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (userID string, err error)
}
