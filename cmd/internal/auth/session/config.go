package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AntiCsrfMode selects how sessions defend against cross-site request forgery.
type AntiCsrfMode string

const (
	// AntiCsrfViaToken issues an anti-CSRF token with every session and
	// requires it on validation and refresh.
	AntiCsrfViaToken AntiCsrfMode = "VIA_TOKEN"
	// AntiCsrfNone relies on SameSite=Strict cookies alone.
	AntiCsrfNone AntiCsrfMode = "NONE"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the "iss" claim of access tokens.
	Issuer string

	AccessTokenTTL time.Duration
	RefreshTTL     time.Duration

	// ClockSkew is tolerated on the not-before check only. Expiry is exact
	// so that an expired token is always recognized as such.
	ClockSkew time.Duration

	// RefreshTokenBytes is the entropy of opaque refresh tokens.
	RefreshTokenBytes int

	AntiCsrf AntiCsrfMode

	// PasetoV4SecretKeyHex is the hex Ed25519 secret key signing access tokens.
	PasetoV4SecretKeyHex string
}

// DefaultConfig returns defaults suitable for development. The signing key is left empty.
func DefaultConfig() Config {
	return Config{
		Issuer:            "authgate",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTTL:        100 * 24 * time.Hour,
		ClockSkew:         30 * time.Second,
		RefreshTokenBytes: 32,
		AntiCsrf:          AntiCsrfViaToken,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - AUTHGATE_PASETO_V4_SECRET_KEY_HEX
//
// Optional:
//   - AUTHGATE_AUTH_ISSUER
//   - AUTHGATE_AUTH_ACCESS_TTL
//   - AUTHGATE_AUTH_REFRESH_TTL
//   - AUTHGATE_AUTH_CLOCK_SKEW
//   - AUTHGATE_AUTH_REFRESH_TOKEN_BYTES (32..64)
//   - AUTHGATE_AUTH_ANTI_CSRF (VIA_TOKEN|NONE)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("AUTHGATE_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		key       string
		dst       *time.Duration
		allowZero bool
	}{
		{key: "AUTHGATE_AUTH_ACCESS_TTL", dst: &cfg.AccessTokenTTL},
		{key: "AUTHGATE_AUTH_REFRESH_TTL", dst: &cfg.RefreshTTL},
		{key: "AUTHGATE_AUTH_CLOCK_SKEW", dst: &cfg.ClockSkew, allowZero: true},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allowZero) {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	if v := os.Getenv("AUTHGATE_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	if v := os.Getenv("AUTHGATE_AUTH_ANTI_CSRF"); v != "" {
		switch mode := AntiCsrfMode(strings.ToUpper(strings.TrimSpace(v))); mode {
		case AntiCsrfViaToken, AntiCsrfNone:
			cfg.AntiCsrf = mode
		default:
			return Config{}, ErrConfig
		}
	}

	cfg.PasetoV4SecretKeyHex = os.Getenv("AUTHGATE_PASETO_V4_SECRET_KEY_HEX")
	if cfg.PasetoV4SecretKeyHex == "" {
		return Config{}, ErrConfig
	}

	// An access token must never outlive the session that backs it.
	if cfg.AccessTokenTTL >= cfg.RefreshTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
