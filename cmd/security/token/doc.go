// Package token hashes and mints opaque credentials.
//
// Anything secret that is persisted server-side (refresh tokens, anti-CSRF
// tokens, reset tokens, passwordless codes) goes through HashSecretHex.
//
// Environment:
//   - AUTHGATE_TOKEN_HMAC_KEY: when set, hashing is HMAC-SHA256 keyed with it.
//     Otherwise plain SHA-256 is used (dev mode).
package token
