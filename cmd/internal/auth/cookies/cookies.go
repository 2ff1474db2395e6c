// Package cookies encodes and decodes the session cookie triad and the
// short-lived device cookies used by the passwordless and OAuth flows.
//
// Cookie values are credentials. Nothing in this package logs them.
package cookies

import (
	"net/http"
	"strings"
	"time"

	"authgate/cmd/internal/auth/routes"
)

// Wire-visible cookie names.
const (
	AccessName           = "sAccessToken"
	RefreshName          = "sRefreshToken"
	AntiCsrfName         = "sAntiCsrf"
	DeviceIDName         = "sDeviceId"
	PreAuthSessionIDName = "sPreAuthSessionId"
	PKCEName             = "sPKCE"
)

// LiveFor is how long a live cookie is kept by the browser. Token expiry is
// enforced server-side, the browser only has to hold on to the value.
const LiveFor = 365 * 24 * time.Hour

// TokenPair is the session credential set. An empty field means "absent".
type TokenPair struct {
	AccessToken   string
	RefreshToken  string
	AntiCsrfToken string
}

// HasSession reports whether both the access and refresh tokens are present.
func (t TokenPair) HasSession() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

// DeviceKind selects a group of device cookies.
type DeviceKind int

const (
	// Passwordless covers sDeviceId and sPreAuthSessionId.
	Passwordless DeviceKind = iota + 1
	// PKCE covers sPKCE.
	PKCE
)

// Device carries the values of the device cookies.
type Device struct {
	DeviceID         string
	PreAuthSessionID string
	PKCEVerifier     string
}

// Codec renders Set-Cookie directives with the attributes of one deployment.
type Codec struct {
	paths  routes.Paths
	secure bool

	// Now is the clock used for live cookie expiry. Defaults to time.Now.
	Now func() time.Time
}

// New returns a Codec. Cookies are marked Secure when websiteDomain is an https origin.
func New(paths routes.Paths, websiteDomain string) *Codec {
	return &Codec{
		paths:  paths,
		secure: strings.HasPrefix(strings.TrimSpace(websiteDomain), "https"),
		Now:    time.Now,
	}
}

// Secure reports whether emitted cookies carry the Secure attribute.
func (c *Codec) Secure() bool { return c.secure }

func (c *Codec) live(name, value, path string) string {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  c.Now().Add(LiveFor).UTC(),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
	// net/http has no Priority field.
	return ck.String() + "; Priority=High"
}

func deletion(name, path string) string {
	ck := &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    path,
		Expires: time.Unix(0, 0).UTC(),
		MaxAge:  -1,
	}
	return ck.String()
}

func (c *Codec) directive(name, value, path string) string {
	if value == "" {
		return deletion(name, path)
	}
	return c.live(name, value, path)
}

// SessionCookies returns the directives for access, refresh and anti-CSRF, in that order.
// An empty token yields a deletion, so SessionCookies(TokenPair{}) clears the session.
func (c *Codec) SessionCookies(t TokenPair) []string {
	return []string{
		c.directive(AccessName, t.AccessToken, "/"),
		c.directive(RefreshName, t.RefreshToken, c.paths.RefreshSession()),
		c.directive(AntiCsrfName, t.AntiCsrfToken, "/"),
	}
}

// DeviceCookies returns the directives for the cookies of kind.
func (c *Codec) DeviceCookies(kind DeviceKind, d Device) []string {
	switch kind {
	case Passwordless:
		path := c.paths.LoginPasswordless()
		return []string{
			c.directive(DeviceIDName, d.DeviceID, path),
			c.directive(PreAuthSessionIDName, d.PreAuthSessionID, path),
		}
	case PKCE:
		return []string{c.directive(PKCEName, d.PKCEVerifier, c.paths.LoginThirdParty())}
	default:
		return nil
	}
}

// DeviceCookieDeletion returns deletions for every cookie of kind.
func (c *Codec) DeviceCookieDeletion(kind DeviceKind) []string {
	return c.DeviceCookies(kind, Device{})
}

// WriteSession appends the session directives to w.
func (c *Codec) WriteSession(w http.ResponseWriter, t TokenPair) {
	write(w.Header(), c.SessionCookies(t))
}

// WriteDevice appends the device directives of kind to w.
func (c *Codec) WriteDevice(w http.ResponseWriter, kind DeviceKind, d Device) {
	write(w.Header(), c.DeviceCookies(kind, d))
}

// DeleteDevice appends deletions for the device cookies of kind to w.
func (c *Codec) DeleteDevice(w http.ResponseWriter, kind DeviceKind) {
	write(w.Header(), c.DeviceCookieDeletion(kind))
}

func write(h http.Header, lines []string) {
	for _, l := range lines {
		h.Add("Set-Cookie", l)
	}
}

// ParseTokens reads a TokenPair back from Set-Cookie lines. Deletions and
// unparseable lines leave the corresponding field empty.
func ParseTokens(lines []string) TokenPair {
	var t TokenPair
	now := time.Now()
	for _, line := range lines {
		ck, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		value := ck.Value
		if ck.MaxAge < 0 || (!ck.Expires.IsZero() && !ck.Expires.After(now)) {
			value = ""
		}
		switch ck.Name {
		case AccessName:
			t.AccessToken = value
		case RefreshName:
			t.RefreshToken = value
		case AntiCsrfName:
			t.AntiCsrfToken = value
		}
	}
	return t
}

// ReadTokens returns the session cookies on r. Missing cookies read as "".
func ReadTokens(r *http.Request) TokenPair {
	return TokenPair{
		AccessToken:   value(r, AccessName),
		RefreshToken:  value(r, RefreshName),
		AntiCsrfToken: value(r, AntiCsrfName),
	}
}

// ReadDevice returns the device cookies on r.
func ReadDevice(r *http.Request) Device {
	return Device{
		DeviceID:         value(r, DeviceIDName),
		PreAuthSessionID: value(r, PreAuthSessionIDName),
		PKCEVerifier:     value(r, PKCEName),
	}
}

func value(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
