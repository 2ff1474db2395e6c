// Package routes holds the request paths shared by the gate, the cookie codec
// and the HTTP handlers, optionally mounted under a common prefix.
package routes

import "strings"

// Unprefixed paths.
const (
	home              = "/"
	login             = "/login"
	logout            = "/logout"
	resetPassword     = "/reset-password"
	refreshSession    = "/auth/session/refresh"
	emailExists       = "/api/email-exists"
	loginPasswordless = "/passwordless/login"
	loginThirdParty   = "/thirdparty/login"
	private           = "/private"
)

// Paths resolves every route against a prefix. The zero value has no prefix.
type Paths struct {
	prefix string
}

// New returns Paths mounted under prefix ("" or "/" for none).
func New(prefix string) Paths {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimRight(prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return Paths{prefix: prefix}
}

// Prefix returns the normalized prefix ("" when none).
func (p Paths) Prefix() string { return p.prefix }

func (p Paths) join(path string) string {
	if p.prefix == "" {
		return path
	}
	if path == home {
		return p.prefix + "/"
	}
	return p.prefix + path
}

func (p Paths) Home() string              { return p.join(home) }
func (p Paths) Login() string             { return p.join(login) }
func (p Paths) Logout() string            { return p.join(logout) }
func (p Paths) ResetPassword() string     { return p.join(resetPassword) }
func (p Paths) RefreshSession() string    { return p.join(refreshSession) }
func (p Paths) EmailExists() string       { return p.join(emailExists) }
func (p Paths) LoginPasswordless() string { return p.join(loginPasswordless) }
func (p Paths) LoginThirdParty() string   { return p.join(loginThirdParty) }
func (p Paths) Private() string           { return p.join(private) }

// Public returns the pages reachable without a session.
func (p Paths) Public() []string {
	return []string{
		p.Home(),
		p.Login(),
		p.ResetPassword(),
		p.EmailExists(),
		p.LoginPasswordless(),
		p.LoginThirdParty(),
	}
}

// IsPublic reports whether path is exactly one of the public pages.
func (p Paths) IsPublic(path string) bool {
	if p.prefix != "" && path == p.prefix {
		return true
	}
	for _, pub := range p.Public() {
		if path == pub {
			return true
		}
	}
	return false
}
