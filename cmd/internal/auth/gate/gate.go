// Package gate is the edge authorization middleware. It validates the
// session cookies on every request, lets public pages through, and sends
// everything else either to the refresh endpoint or to login.
package gate

import (
	"log/slog"
	"net/http"
	"strings"

	"authgate/cmd/internal/auth/authclient"
	"authgate/cmd/internal/auth/cookies"
	"authgate/cmd/internal/auth/routes"
)

// State is the gate's classification of a request.
type State int

const (
	Authenticated State = iota
	NeedsRefresh
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case NeedsRefresh:
		return "needs_refresh"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Outcome is what the gate did with a request.
type Outcome string

const (
	OutcomeSkipped         Outcome = "skipped"
	OutcomeAuthenticated   Outcome = "authenticated"
	OutcomePublic          Outcome = "public"
	OutcomeRefreshRedirect Outcome = "refresh_redirect"
	OutcomeLoginRedirect   Outcome = "login_redirect"
	OutcomeError           Outcome = "error"
)

// Observer is notified of every gate decision.
type Observer interface {
	GateOutcome(Outcome)
}

// skipPrefixes are never gated.
var skipPrefixes = []string{
	"/_next/static",
	"/_next/image",
	"/logos",
	"/favicon.ico",
	"/sitemap.xml",
	"/robots.txt",
	"/static/",
	"/healthz",
	"/readyz",
	"/metrics",
}

func skipped(path string) bool {
	for _, p := range skipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Gate guards an http.Handler.
type Gate struct {
	client   authclient.Client
	paths    routes.Paths
	codec    *cookies.Codec
	log      *slog.Logger
	observer Observer
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// WithObserver registers o for gate outcomes.
func WithObserver(o Observer) Option {
	return func(g *Gate) { g.observer = o }
}

// New constructs a Gate.
func New(client authclient.Client, paths routes.Paths, codec *cookies.Codec, opts ...Option) *Gate {
	g := &Gate{client: client, paths: paths, codec: codec, log: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) observe(o Outcome) {
	if g.observer != nil {
		g.observer.GateOutcome(o)
	}
}

// Handler wraps next with the gate.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(HeaderGlobalServerData)

		path := r.URL.Path
		if skipped(path) {
			g.observe(OutcomeSkipped)
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		tokens := cookies.ReadTokens(r)
		data := ServerData{URL: r.URL.RequestURI()}

		state := Authenticated
		id, err := g.client.Validate(ctx, tokens.AccessToken, tokens.AntiCsrfToken)
		if err != nil {
			se, ok := authclient.AsSessionError(err)
			if !ok {
				g.log.ErrorContext(ctx, "gate.validate.error", "path", path, "err", err)
				g.observe(OutcomeError)
				http.Error(w, "An unexpected error occurred", http.StatusInternalServerError)
				return
			}
			state = Unauthenticated
			if se.Kind == authclient.KindTryRefresh {
				state = NeedsRefresh
			}
		}

		switch {
		case state == Authenticated:
			data.User = &User{ID: id.UserID}
			g.observe(OutcomeAuthenticated)
			next.ServeHTTP(w, r.WithContext(WithServerData(ctx, data)))
			return
		case g.paths.IsPublic(path), state == NeedsRefresh && path == g.paths.RefreshSession():
			g.observe(OutcomePublic)
			next.ServeHTTP(w, r.WithContext(WithServerData(ctx, data)))
			return
		}

		target := requestTarget(r)
		if state == NeedsRefresh {
			g.log.DebugContext(ctx, "gate.redirect", "state", state.String(), "path", path)
			g.observe(OutcomeRefreshRedirect)
			Redirect(w, r, WithReturnURL(g.paths.RefreshSession(), target), http.StatusTemporaryRedirect)
			return
		}

		g.log.DebugContext(ctx, "gate.redirect", "state", state.String(), "path", path)
		g.observe(OutcomeLoginRedirect)
		g.codec.WriteSession(w, cookies.TokenPair{})
		Redirect(w, r, WithReturnURL(g.paths.Login(), target), http.StatusSeeOther)
	})
}
