package session

import (
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// AccessClaims is the identity envelope carried by an access token.
type AccessClaims struct {
	UserID    string
	SessionID string
	// AntiCsrfHash is the hash of the session's anti-CSRF token ("" when disabled).
	AntiCsrfHash string
	ExpiresAt    time.Time
	IssuedAt     time.Time
	Issuer       string
}

// AccessTokenManager issues and verifies short-lived access tokens.
//
// Verify returns the claims together with ErrAccessTokenExpired when the
// token is authentic but past its expiry, so callers can still locate the session.
type AccessTokenManager interface {
	Issue(userID, sessionID, antiCsrfHash string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
	PublicKeyHex() string
}

type pasetoV4PublicManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager builds an AccessTokenManager based on PASETO v4.public.
func NewPasetoV4PublicManager(cfg Config) (AccessTokenManager, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4PublicManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

// NewSecretKeyHex generates a fresh Ed25519 signing key in hex form.
func NewSecretKeyHex() string {
	return paseto.NewV4AsymmetricSecretKey().ExportHex()
}

func (m *pasetoV4PublicManager) PublicKeyHex() string {
	return m.public.ExportHex()
}

func (m *pasetoV4PublicManager) Issue(userID, sessionID, antiCsrfHash string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)

	_ = tok.Set("uid", userID)
	_ = tok.Set("sid", sessionID)
	if antiCsrfHash != "" {
		_ = tok.Set("csrf", antiCsrfHash)
	}

	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *pasetoV4PublicManager) Verify(token string, now time.Time) (AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > 8192 {
		return AccessClaims{}, ErrInvalidToken
	}

	// Expiry is checked below so an expired but authentic token can be told apart.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	if nbf, err := parsed.GetNotBefore(); err == nil && nbf.After(now.Add(m.clockSkew)) {
		return AccessClaims{}, ErrInvalidToken
	}
	exp, err := parsed.GetExpiration()
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	sid, err := parsed.GetString("sid")
	if err != nil || sid == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	csrf, _ := parsed.GetString("csrf")
	iss, _ := parsed.GetIssuer()
	iat, _ := parsed.GetIssuedAt()

	claims := AccessClaims{
		UserID:       uid,
		SessionID:    sid,
		AntiCsrfHash: csrf,
		ExpiresAt:    exp,
		IssuedAt:     iat,
		Issuer:       iss,
	}
	if !exp.After(now) {
		return claims, ErrAccessTokenExpired
	}
	return claims, nil
}
