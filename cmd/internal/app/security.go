package app

import (
	"errors"

	"authgate/cmd/security/token"
)

// ValidateSecurityConfig enforces the token hashing policy at startup.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// The key is used as raw bytes, so length is measured in bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: AUTHGATE_REQUIRE_TOKEN_HMAC=true but AUTHGATE_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: AUTHGATE_REQUIRE_TOKEN_HMAC=true but AUTHGATE_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: AUTHGATE_REQUIRE_TOKEN_HMAC=true but refresh and reset token hashing is not in HMAC mode")
	}
	return nil
}
