package session

import (
	"context"
	"net"
	"time"
)

// DeviceContext describes the client device that owns a session.
type DeviceContext struct {
	UserAgent string
	IP        net.IP
}

// Row mirrors the authgate.sessions row used by the session subsystem.
type Row struct {
	ID                  string
	UserID              string
	RefreshTokenHash    string
	AntiCsrfHash        string
	CreatedAt           time.Time
	LastUsedAt          *time.Time
	ExpiresAt           time.Time
	RevokedAt           *time.Time
	ReplacedBySessionID *string
	RevocationReason    *string
}

// active reports whether the row can still back an access token at now.
func (r Row) active(now time.Time) error {
	if r.RevokedAt != nil || r.ReplacedBySessionID != nil {
		return ErrSessionRevoked
	}
	if !r.ExpiresAt.After(now) {
		return ErrSessionExpired
	}
	return nil
}

// NewSession is the input to Store.Create and Tx.Create.
type NewSession struct {
	UserID       string
	RefreshHash  string
	AntiCsrfHash string
	ExpiresAt    time.Time
	Device       DeviceContext
}

// Store abstracts persistence for session state.
type Store interface {
	// Create creates a new session row and returns its ID.
	Create(ctx context.Context, now time.Time, in NewSession) (sessionID string, err error)

	// GetByID loads a session row by ID. Returns ErrSessionNotFound when absent.
	GetByID(ctx context.Context, sessionID string) (Row, error)

	// Touch updates last_used_at for a session.
	Touch(ctx context.Context, now time.Time, sessionID string) error

	// Revoke revokes a single session (idempotent).
	Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error

	// RevokeAll revokes all sessions for a user (idempotent).
	RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error

	// InTx runs fn in a single transaction. fn's changes are committed only if it returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the subset of store operations used by refresh rotation.
//
// GetByRefreshHashForUpdate must lock the row until the transaction ends.
type Tx interface {
	GetByRefreshHashForUpdate(ctx context.Context, refreshHash string) (Row, error)
	Create(ctx context.Context, now time.Time, in NewSession) (sessionID string, err error)
	MarkRotated(ctx context.Context, now time.Time, sessionID string, replacedBy string) error
	RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error
}
