// Package session issues, validates, rotates and revokes cookie sessions.
//
// Access tokens are PASETO v4.public and short-lived. Refresh tokens are
// opaque, single-use and stored hashed; presenting a rotated refresh token
// again revokes every session of its user. When anti-CSRF is enabled each
// session also carries an anti-CSRF token whose hash is bound into both the
// access token and the session row.
package session
