// Package authapi serves the auth routes: the refresh endpoint, logout, and
// the login, reset-password, passwordless and third-party flows. Pages
// answer GET with a JSON loader payload and POST with an action that either
// redirects or returns {"banner", "<field>"} errors.
package authapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"authgate/cmd/internal/auth/authclient"
	"authgate/cmd/internal/auth/cookies"
	"authgate/cmd/internal/auth/gate"
	"authgate/cmd/internal/auth/routes"
)

// Observer is notified of the outcome of every auth action.
type Observer interface {
	AuthAction(action, result string)
}

// Handler wires HTTP auth endpoints to an auth backend.
type Handler struct {
	log *slog.Logger
	cfg Config

	client authclient.Client
	codec  *cookies.Codec
	paths  routes.Paths

	audit    *Auditor
	limiter  *loginLimiter
	observer Observer

	now func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithAuditor overrides the default log-only auditor.
func WithAuditor(a *Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.audit = a
		}
	}
}

// WithObserver registers o for action outcomes.
func WithObserver(o Observer) HandlerOption {
	return func(h *Handler) { h.observer = o }
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, client authclient.Client, codec *cookies.Codec, paths routes.Paths, cfg Config, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		log:     log,
		cfg:     cfg,
		client:  client,
		codec:   codec,
		paths:   paths,
		audit:   NewAuditor(log, nil),
		limiter: newLoginLimiter(cfg.LoginIPMax, cfg.LoginIPWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register wires the auth routes onto r.
func (h *Handler) Register(r chi.Router) {
	r.HandleFunc(h.paths.Home(), h.handleHome)
	if p := h.paths.Prefix(); p != "" {
		r.HandleFunc(p, h.handleHome)
	}
	r.HandleFunc(h.paths.RefreshSession(), h.handleRefresh)
	r.HandleFunc(h.paths.Logout(), h.handleLogout)
	r.HandleFunc(h.paths.Login(), h.handleLogin)
	r.HandleFunc(h.paths.ResetPassword(), h.handleResetPassword)
	r.HandleFunc(h.paths.EmailExists(), h.handleEmailExists)
	r.HandleFunc(h.paths.LoginPasswordless(), h.handlePasswordless)
	r.HandleFunc(h.paths.LoginThirdParty(), h.handleThirdParty)
	r.HandleFunc(h.paths.Private(), h.handlePrivate)
}

func (h *Handler) observe(action string, result string) {
	if h.observer != nil {
		h.observer.AuthAction(action, result)
	}
}

// ---- refresh / logout ----

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}

	ctx := r.Context()
	tokens := cookies.ReadTokens(r)
	ip := clientIP(r, h.cfg.TrustProxy)
	returnURL := r.URL.Query().Get("returnUrl")

	res, err := h.client.Refresh(ctx, tokens.RefreshToken, tokens.AntiCsrfToken, h.device(r))
	if err != nil {
		h.log.ErrorContext(ctx, "auth.refresh.error", "err", err)
		h.observe("refresh", "error")
		writeServerError(w)
		return
	}

	if res.Status != authclient.StatusOK {
		h.auditRefresh(ctx, false, ip, r.UserAgent())
		h.observe("refresh", string(res.Status))
		h.codec.WriteSession(w, cookies.TokenPair{})
		target := h.paths.Login()
		if safe := gate.SafeReturnURL(returnURL, ""); safe != "" {
			target = gate.WithReturnURL(target, safe)
		}
		gate.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	h.auditRefresh(ctx, true, ip, r.UserAgent())
	h.observe("refresh", string(res.Status))
	h.codec.WriteSession(w, res.Tokens)
	gate.Redirect(w, r, gate.SafeReturnURL(returnURL, h.paths.Home()), http.StatusTemporaryRedirect)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	tokens := cookies.ReadTokens(r)
	if err := h.client.Logout(ctx, tokens.AccessToken, tokens.AntiCsrfToken); err != nil {
		h.log.ErrorContext(ctx, "auth.logout.error", "err", err)
		writeServerError(w)
		return
	}

	h.auditLogout(ctx, clientIP(r, h.cfg.TrustProxy), r.UserAgent())
	h.observe("logout", string(authclient.StatusOK))
	h.codec.WriteSession(w, cookies.TokenPair{})
	gate.Redirect(w, r, h.paths.Login(), http.StatusSeeOther)
}

// ---- simple pages ----

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": gate.UserFrom(r.Context())})
}

func (h *Handler) handleEmailExists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	ctx := r.Context()
	exists, err := h.client.EmailExists(ctx, strings.TrimSpace(r.URL.Query().Get("email")))
	if err != nil {
		h.log.ErrorContext(ctx, "auth.email_exists.error", "err", err)
		writeServerError(w)
		return
	}
	writeJSON(w, http.StatusOK, exists)
}

func (h *Handler) handlePrivate(w http.ResponseWriter, r *http.Request) {
	user := gate.UserFrom(r.Context())
	if user == nil {
		gate.Redirect(w, r, h.paths.Login(), http.StatusSeeOther)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	case http.MethodPost:
		if err := parseForm(w, r, h.cfg.MaxBodyBytes); err != nil {
			writeBanner(w, http.StatusBadRequest, "Invalid Request")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]string{"text": r.PostForm.Get("reflectData")},
		})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// ---- helpers ----

func (h *Handler) device(r *http.Request) authclient.Device {
	return authclient.Device{
		UserAgent: strings.TrimSpace(r.UserAgent()),
		IP:        clientIP(r, h.cfg.TrustProxy),
	}
}

// redirectHome sends signed-in users away from the sign-in pages.
func (h *Handler) redirectHome(w http.ResponseWriter, r *http.Request) bool {
	if gate.UserFrom(r.Context()) == nil {
		return false
	}
	gate.Redirect(w, r, h.paths.Home(), http.StatusSeeOther)
	return true
}

// finishSignIn writes the new session and sends the user to returnUrl.
func (h *Handler) finishSignIn(ctx context.Context, w http.ResponseWriter, r *http.Request, method string, res authclient.SignInResult) {
	h.auditSignIn(ctx, method, res.UserID, clientIP(r, h.cfg.TrustProxy), r.UserAgent())
	h.codec.WriteSession(w, res.Tokens)
	gate.Redirect(w, r, gate.SafeReturnURL(r.URL.Query().Get("returnUrl"), h.paths.Home()), http.StatusSeeOther)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
