package thirdparty

import (
	"crypto/rand"
	"errors"
	"os"
	"strings"
	"time"

	"authgate/cmd/security/token"

	jwt "github.com/golang-jwt/jwt/v5"
)

const stateTTL = 10 * time.Minute

type stateClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

func signState(key []byte, providerID string, now time.Time) (string, error) {
	jti, err := token.NewOpaque(16)
	if err != nil {
		return "", err
	}
	claims := stateClaims{
		Provider: providerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func verifyState(key []byte, state, providerID string, now time.Time) error {
	claims := &stateClaims{}
	tok, err := jwt.ParseWithClaims(
		state, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !tok.Valid {
		return ErrInvalidState
	}
	if claims.Provider != providerID {
		return ErrInvalidState
	}
	return nil
}

// StateKeyFromEnv reads AUTHGATE_OAUTH_STATE_KEY (at least 32 bytes). When
// unset a random key is generated, so pending flows do not survive a restart.
func StateKeyFromEnv() (key []byte, generated bool, err error) {
	v := strings.TrimSpace(os.Getenv("AUTHGATE_OAUTH_STATE_KEY"))
	if v == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, false, err
		}
		return key, true, nil
	}
	if len(v) < 32 {
		return nil, false, errors.New("thirdparty: AUTHGATE_OAUTH_STATE_KEY must be at least 32 bytes")
	}
	return []byte(v), false, nil
}
