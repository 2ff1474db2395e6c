package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"authgate/cmd/security/token"
)

// Service implements the high-level session operations.
//
// It issues sessions (access + refresh + anti-CSRF), validates access tokens,
// supports per-session and per-user revocation, and performs refresh rotation
// with reuse detection inside a single store transaction.
type Service struct {
	cfg    Config
	tokens AccessTokenManager
	store  Store
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	SessionID    string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
	// AntiCsrfToken is empty when anti-CSRF is disabled.
	AntiCsrfToken string
}

// NewService constructs a Service with the provided configuration, store, and token manager.
func NewService(cfg Config, store Store, tokens AccessTokenManager) *Service {
	return &Service{cfg: cfg, store: store, tokens: tokens}
}

// AntiCsrfEnabled reports whether sessions carry an anti-CSRF token.
func (s *Service) AntiCsrfEnabled() bool {
	return s.cfg.AntiCsrf == AntiCsrfViaToken
}

func (s *Service) newAntiCsrf() (plain, hash string, err error) {
	if !s.AntiCsrfEnabled() {
		return "", "", nil
	}
	return token.NewOpaqueWithHash(32)
}

// antiCsrfMatches compares a presented anti-CSRF token with a stored hash.
// An empty stored hash means the session was issued without one.
func (s *Service) antiCsrfMatches(presented, storedHash string) bool {
	if !s.AntiCsrfEnabled() || storedHash == "" {
		return true
	}
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}
	return token.Equal(hashSecret(presented), storedHash)
}

// IssueSession creates a new session row and returns fresh tokens.
//
// Refresh and anti-CSRF tokens are opaque random strings and are never
// persisted in plaintext. Only their hashes are stored.
func (s *Service) IssueSession(ctx context.Context, now time.Time, userID string, dev DeviceContext) (Issued, error) {
	refreshPlain, refreshHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}
	csrfPlain, csrfHash, err := s.newAntiCsrf()
	if err != nil {
		return Issued{}, err
	}

	refreshExp := now.Add(s.cfg.RefreshTTL)

	sessionID, err := s.store.Create(ctx, now, NewSession{
		UserID:       userID,
		RefreshHash:  refreshHash,
		AntiCsrfHash: csrfHash,
		ExpiresAt:    refreshExp,
		Device:       dev,
	})
	if err != nil {
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(userID, sessionID, csrfHash, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:     sessionID,
		AccessToken:   accessToken,
		AccessExp:     accessExp,
		RefreshToken:  refreshPlain,
		RefreshExp:    refreshExp,
		AntiCsrfToken: csrfPlain,
	}, nil
}

// ValidateAccessToken verifies an access token and ensures the backing session is active.
//
// A genuine token past its expiry whose session is still active yields
// ErrAccessTokenExpired, as does any genuine token for a rotated session.
// Every other failure means the caller holds no recoverable session.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken, antiCsrf string, now time.Time) (AccessClaims, error) {
	claims, verr := s.tokens.Verify(accessToken, now)
	if verr != nil && !errors.Is(verr, ErrAccessTokenExpired) {
		return AccessClaims{}, verr
	}

	// Server-authoritative session check to honor revocations.
	row, err := s.store.GetByID(ctx, claims.SessionID)
	if err != nil {
		return AccessClaims{}, err
	}
	if row.UserID != claims.UserID {
		return AccessClaims{}, ErrInvalidToken
	}
	// A rotated session is sent to refresh so that a replayed refresh token
	// reaches reuse detection.
	if row.ReplacedBySessionID != nil {
		return claims, ErrAccessTokenExpired
	}
	if err := row.active(now); err != nil {
		return AccessClaims{}, err
	}

	if verr != nil {
		return claims, ErrAccessTokenExpired
	}
	if !s.antiCsrfMatches(antiCsrf, claims.AntiCsrfHash) {
		return AccessClaims{}, ErrAntiCsrfMismatch
	}
	return claims, nil
}

// RevokeByAccessToken revokes the session referenced by an access token.
//
// Expired tokens are accepted so a user can always log out. An unusable
// token, an unknown session or an anti-CSRF mismatch is a no-op.
func (s *Service) RevokeByAccessToken(ctx context.Context, now time.Time, accessToken, antiCsrf string) error {
	claims, err := s.tokens.Verify(accessToken, now)
	if err != nil && !errors.Is(err, ErrAccessTokenExpired) {
		return nil
	}
	if !s.antiCsrfMatches(antiCsrf, claims.AntiCsrfHash) {
		return nil
	}
	return s.store.Revoke(ctx, now, claims.SessionID, "logout")
}

// RevokeSession revokes a single session by ID (e.g., logout from a device).
func (s *Service) RevokeSession(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Revoke(ctx, now, sessionID, "logout")
}

// RevokeAll revokes all sessions for a user (e.g., logout everywhere, password reset).
func (s *Service) RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error {
	return s.store.RevokeAll(ctx, now, userID, reason)
}

// TouchSession updates last_used_at for a session (best-effort).
func (s *Service) TouchSession(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Touch(ctx, now, sessionID)
}

// RotateRefresh performs refresh rotation with reuse detection.
//
// Within one transaction:
//   - Lock the session row by refresh hash.
//   - If the token belongs to a rotated session (revoked + replaced_by), treat it as reuse:
//     revoke all sessions for the user, commit, and return ErrRefreshReuseDetected.
//   - If the token belongs to a revoked session without replacement, return ErrSessionRevoked.
//   - If the session is expired, return ErrSessionExpired.
//   - If an anti-CSRF token is bound and does not match, return ErrAntiCsrfMismatch.
//   - Otherwise, create a new session, revoke the old session, and link replaced_by_session_id.
func (s *Service) RotateRefresh(ctx context.Context, now time.Time, refreshTokenPlain, antiCsrf string, dev DeviceContext) (Issued, error) {
	refreshTokenPlain = strings.TrimSpace(refreshTokenPlain)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshTokenPlain == "" || len(refreshTokenPlain) > 4096 {
		return Issued{}, ErrSessionNotFound
	}

	refreshHash := hashSecret(refreshTokenPlain)

	var (
		out    Issued
		reused bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		row, err := tx.GetByRefreshHashForUpdate(ctx, refreshHash)
		if err != nil {
			return err
		}

		// Reuse detection comes first: a rotated token presented again is a
		// security incident even if the session has since expired.
		if row.RevokedAt != nil && row.ReplacedBySessionID != nil {
			reused = true
			return tx.RevokeAll(ctx, now, row.UserID, "refresh_reuse")
		}
		if row.RevokedAt != nil {
			return ErrSessionRevoked
		}
		if !row.ExpiresAt.After(now) {
			return ErrSessionExpired
		}
		if !s.antiCsrfMatches(antiCsrf, row.AntiCsrfHash) {
			return ErrAntiCsrfMismatch
		}

		newRefreshPlain, newRefreshHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
		if err != nil {
			return err
		}
		csrfPlain, csrfHash, err := s.newAntiCsrf()
		if err != nil {
			return err
		}
		newRefreshExp := now.Add(s.cfg.RefreshTTL)

		newSessionID, err := tx.Create(ctx, now, NewSession{
			UserID:       row.UserID,
			RefreshHash:  newRefreshHash,
			AntiCsrfHash: csrfHash,
			ExpiresAt:    newRefreshExp,
			Device:       dev,
		})
		if err != nil {
			return err
		}
		if err := tx.MarkRotated(ctx, now, row.ID, newSessionID); err != nil {
			return err
		}

		accessToken, accessExp, err := s.tokens.Issue(row.UserID, newSessionID, csrfHash, now)
		if err != nil {
			return err
		}

		out = Issued{
			SessionID:     newSessionID,
			AccessToken:   accessToken,
			AccessExp:     accessExp,
			RefreshToken:  newRefreshPlain,
			RefreshExp:    newRefreshExp,
			AntiCsrfToken: csrfPlain,
		}
		return nil
	})
	if err != nil {
		return Issued{}, err
	}
	if reused {
		return Issued{}, ErrRefreshReuseDetected
	}
	return out, nil
}
