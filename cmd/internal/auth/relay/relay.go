// Package relay is the script-side half of the silent redirect protocol.
//
// Requests are marked with X-REQUEST-WITH-JS so the server answers redirects
// with a 204 carrying X-Redirect-Location and X-Redirect-Status. Method
// preserving redirects (307, 308) are replayed with the same method and body;
// altering redirects (301, 302, 303) end the exchange with a Navigation the
// caller performs.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"authgate/cmd/internal/auth/gate"
)

const (
	DefaultMaxHops      = 5
	DefaultMaxBodyBytes = 10 << 20
	formContentType     = "application/x-www-form-urlencoded"
)

var ErrTooManyRedirects = errors.New("relay: too many redirects")

// Navigation is an altering redirect the caller must follow as a page load.
type Navigation struct {
	URL        string
	Status     int
	SameOrigin bool
}

// Result is the final response of an exchange. When Navigate is set the
// other fields describe the response that carried the signal.
type Result struct {
	Status   int
	Header   http.Header
	Body     []byte
	URL      string
	Hops     int
	Navigate *Navigation
}

// Client performs relayed requests against a single origin.
type Client struct {
	http         *http.Client
	origin       *url.URL
	MaxHops      int
	MaxBodyBytes int64
}

// New returns a Client rooted at origin. hc is copied; its redirect policy is
// replaced so real 3xx responses reach the relay instead of being followed.
// A client without a cookie jar gets one, so cookies set on one hop are sent
// on the next.
func New(origin string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil {
		return nil, fmt.Errorf("relay: parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("relay: origin %q must be absolute", origin)
	}

	var c http.Client
	if hc != nil {
		c = *hc
	} else {
		c.Timeout = 15 * time.Second
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if c.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("relay: cookie jar: %w", err)
		}
		c.Jar = jar
	}

	return &Client{
		http:         &c,
		origin:       u,
		MaxHops:      DefaultMaxHops,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}, nil
}

// Jar returns the cookie jar shared by every hop.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

// DoForm sends form as an url-encoded body.
func (c *Client) DoForm(ctx context.Context, method, target string, form url.Values) (Result, error) {
	return c.do(ctx, method, target, []byte(form.Encode()), formContentType)
}

// Do sends body (nil for none) to target, which may be relative to the origin.
func (c *Client) Do(ctx context.Context, method, target string, body []byte) (Result, error) {
	ct := ""
	if body != nil {
		ct = formContentType
	}
	return c.do(ctx, method, target, body, ct)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, contentType string) (Result, error) {
	u, err := c.origin.Parse(target)
	if err != nil {
		return Result{}, fmt.Errorf("relay: parse target: %w", err)
	}

	maxHops := c.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	for hop := 0; ; hop++ {
		res, err := c.send(ctx, method, u, body, contentType)
		if err != nil {
			return Result{}, err
		}
		res.Hops = hop

		status, location := redirectSignal(res)
		if location == "" {
			return res, nil
		}
		next, err := u.Parse(location)
		if err != nil {
			return Result{}, fmt.Errorf("relay: parse redirect %q: %w", location, err)
		}

		switch status {
		case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			if hop+1 > maxHops {
				return Result{}, ErrTooManyRedirects
			}
			u = next
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
			res.Navigate = &Navigation{
				URL:        next.String(),
				Status:     status,
				SameOrigin: sameOrigin(c.origin, next),
			}
			return res, nil
		default:
			return res, nil
		}
	}
}

func (c *Client) send(ctx context.Context, method string, u *url.URL, body []byte, contentType string) (Result, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return Result{}, fmt.Errorf("relay: build request: %w", err)
	}
	req.Header.Set(gate.HeaderRequestWithJS, "1")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("relay: %s %s: %w", method, u.Redacted(), err)
	}
	defer resp.Body.Close()

	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return Result{}, fmt.Errorf("relay: read body: %w", err)
	}
	return Result{Status: resp.StatusCode, Header: resp.Header, Body: b, URL: u.String()}, nil
}

// redirectSignal prefers the 204 signal headers and falls back to a real
// 3xx Location.
func redirectSignal(res Result) (int, string) {
	if loc := res.Header.Get(gate.HeaderRedirectLocation); loc != "" {
		status, err := strconv.Atoi(strings.TrimSpace(res.Header.Get(gate.HeaderRedirectStatus)))
		if err != nil {
			return 0, ""
		}
		return status, loc
	}
	if res.Status >= 300 && res.Status < 400 {
		if loc := res.Header.Get("Location"); loc != "" {
			return res.Status, loc
		}
	}
	return 0, ""
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
