// Package thirdparty signs users in through OAuth 2.0 providers using the
// authorization code flow with PKCE (S256).
//
// The state parameter is an HS256 JWT that binds the provider and expires
// after a few minutes. The PKCE verifier is returned to the caller, which
// keeps it in a cookie until the callback.
package thirdparty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrUnknownProvider is returned for a provider ID that is not registered.
	ErrUnknownProvider = errors.New("thirdparty: unknown provider")
	// ErrInvalidState is returned when the callback state is missing, expired or bound to another provider.
	ErrInvalidState = errors.New("thirdparty: invalid state")
	// ErrExchange wraps failures talking to the provider.
	ErrExchange = errors.New("thirdparty: provider exchange failed")
)

// UserInfo is what a provider reports about the signed-in account.
type UserInfo struct {
	ID            string
	Email         string
	EmailVerified bool
}

// Authorization is where to send the browser, plus the verifier to keep until the callback.
type Authorization struct {
	URL          string
	PKCEVerifier string
}

// Registry holds the configured providers.
type Registry struct {
	providers map[string]Provider
	stateKey  []byte
	client    *http.Client
}

// Option configures a Registry.
type Option func(*Registry)

// WithHTTPClient sets the client used for token and userinfo calls.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) { r.client = c }
}

// NewRegistry constructs a Registry signing state with stateKey.
func NewRegistry(stateKey []byte, providers []Provider, opts ...Option) *Registry {
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		stateKey:  stateKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, p := range providers {
		r.providers[p.ID] = p
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IDs returns the registered provider IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Has reports whether providerID is registered.
func (r *Registry) Has(providerID string) bool {
	_, ok := r.providers[providerID]
	return ok
}

func (r *Registry) config(providerID, redirectURI string) (Provider, oauth2.Config, error) {
	p, ok := r.providers[providerID]
	if !ok {
		return Provider{}, oauth2.Config{}, ErrUnknownProvider
	}
	cfg := p.OAuth
	cfg.RedirectURL = redirectURI
	return p, cfg, nil
}

// AuthorizationURL builds the provider redirect for providerID.
func (r *Registry) AuthorizationURL(providerID, redirectURI string, now time.Time) (Authorization, error) {
	_, cfg, err := r.config(providerID, redirectURI)
	if err != nil {
		return Authorization{}, err
	}
	state, err := signState(r.stateKey, providerID, now)
	if err != nil {
		return Authorization{}, err
	}
	verifier := oauth2.GenerateVerifier()
	return Authorization{
		URL:          cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		PKCEVerifier: verifier,
	}, nil
}

// Exchange completes the callback: it checks state, redeems code with the
// PKCE verifier and fetches the account's user info.
func (r *Registry) Exchange(ctx context.Context, providerID, redirectURI, code, state, verifier string, now time.Time) (UserInfo, error) {
	p, cfg, err := r.config(providerID, redirectURI)
	if err != nil {
		return UserInfo{}, err
	}
	if err := verifyState(r.stateKey, state, providerID, now); err != nil {
		return UserInfo{}, err
	}
	if strings.TrimSpace(code) == "" {
		return UserInfo{}, fmt.Errorf("%w: missing code", ErrExchange)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)

	var exchangeOpts []oauth2.AuthCodeOption
	if verifier != "" {
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(verifier))
	}
	tok, err := cfg.Exchange(ctx, code, exchangeOpts...)
	if err != nil {
		return UserInfo{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	client := cfg.Client(ctx, tok)

	doc, err := getJSON(ctx, client, p.UserInfoURL)
	if err != nil {
		return UserInfo{}, err
	}

	info := UserInfo{
		ID:    lookupString(doc, p.Map.UserID),
		Email: lookupString(doc, p.Map.Email),
	}
	if p.Map.EmailVerified != "" {
		info.EmailVerified = lookupBool(doc, p.Map.EmailVerified)
	}

	if p.EmailsURL != "" {
		emails, err := getJSON(ctx, client, p.EmailsURL)
		if err != nil {
			return UserInfo{}, err
		}
		info.Email, info.EmailVerified = primaryEmail(emails)
	}

	if info.ID == "" {
		return UserInfo{}, fmt.Errorf("%w: userinfo has no account id", ErrExchange)
	}
	return info, nil
}

func getJSON(ctx context.Context, client *http.Client, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrExchange, url, resp.StatusCode)
	}
	var doc any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %v", ErrExchange, err)
	}
	return doc, nil
}

func lookup(doc any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func lookupString(doc any, path string) string {
	v, ok := lookup(doc, path)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func lookupBool(doc any, path string) bool {
	v, ok := lookup(doc, path)
	if !ok {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	default:
		return false
	}
}

func primaryEmail(doc any) (string, bool) {
	list, ok := doc.([]any)
	if !ok {
		return "", false
	}
	for i := range list {
		idx := strconv.Itoa(i)
		if lookupBool(list, idx+".primary") {
			return lookupString(list, idx+".email"), lookupBool(list, idx+".verified")
		}
	}
	return "", false
}
