package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrAccessTokenExpired is returned for a genuine access token past its expiry
	// whose session is still active. It is the only validation failure a refresh can repair.
	ErrAccessTokenExpired = errors.New("access token expired")

	// ErrSessionNotFound is returned when a token does not match any session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session itself is past its refresh expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned when the session has been revoked or rotated out.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrRefreshReuseDetected is returned when a rotated refresh token is presented again.
	// All sessions of the user have been revoked by the time it is returned.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// ErrAntiCsrfMismatch is returned when the presented anti-CSRF token does not match.
	ErrAntiCsrfMismatch = errors.New("anti-csrf token mismatch")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
