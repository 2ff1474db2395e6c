package identity

import (
	"authgate/cmd/security/password"
)

// Passwords hashes and verifies user passwords with the security/password config.
type Passwords struct {
	cfg   password.Config
	dummy string
}

// NewPasswords builds a Passwords and precomputes the dummy hash used to
// keep sign-in timing flat for unknown emails.
func NewPasswords(cfg password.Config) (*Passwords, error) {
	dummy, err := cfg.HashUnchecked("dummy-password-for-timing-only")
	if err != nil {
		return nil, err
	}
	return &Passwords{cfg: cfg, dummy: dummy}, nil
}

// Hash applies the password policy and returns the PHC hash.
func (p *Passwords) Hash(plain string) (string, error) {
	return p.cfg.Hash(plain)
}

// Verify checks plain against hash. An empty hash (no password credential)
// still burns a verification against the dummy hash and never matches.
func (p *Passwords) Verify(plain, hash string) bool {
	if hash == "" {
		_, _ = p.cfg.Verify(p.dummy, plain)
		return false
	}
	ok, err := p.cfg.Verify(hash, plain)
	return err == nil && ok
}
