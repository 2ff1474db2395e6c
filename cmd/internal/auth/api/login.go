package authapi

import (
	"net/http"
	"strings"

	"authgate/cmd/internal/auth/authclient"
)

const (
	msgWrongCredentials = "Incorrect email and password combination"
	msgEmailExists      = "This email already exists. Please sign in instead."
)

func loginMode(raw string) string {
	if strings.TrimSpace(raw) == "signup" {
		return "signup"
	}
	return "signin"
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if h.redirectHome(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"mode": loginMode(r.URL.Query().Get("mode"))})
	case http.MethodPost:
		h.loginAction(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) loginAction(w http.ResponseWriter, r *http.Request) {
	if h.redirectHome(w, r) {
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()

	if blocked, retryAfter := h.limiter.check(ip, now); blocked {
		h.auditLoginRateLimited(ctx, ip, ua)
		h.observe("login", "rate_limited")
		writeRateLimited(w, retryAfter)
		return
	}

	if err := parseForm(w, r, h.cfg.MaxBodyBytes); err != nil {
		writeBanner(w, http.StatusBadRequest, "Invalid Request")
		return
	}
	mode := loginMode(r.PostForm.Get("mode"))
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	errs := actionErrors{}
	if msg := emailError(email); msg != "" {
		errs["email"] = msg
	}
	if msg := passwordError(password, mode == "signup", msgPasswordRequired); msg != "" {
		errs["password"] = msg
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	var (
		res authclient.SignInResult
		err error
	)
	if mode == "signup" {
		res, err = h.client.SignUp(ctx, email, password, h.device(r))
	} else {
		res, err = h.client.SignIn(ctx, email, password, h.device(r))
	}
	if err != nil {
		h.log.ErrorContext(ctx, "auth.login.error", "mode", mode, "err", err)
		h.observe(mode, "error")
		writeServerError(w)
		return
	}
	h.observe(mode, string(res.Status))

	switch res.Status {
	case authclient.StatusOK:
		h.finishSignIn(ctx, w, r, "emailpassword", res)
	case authclient.StatusWrongCredentials:
		h.limiter.fail(ip, now)
		h.auditLoginFailed(ctx, ip, ua, mode, string(res.Status))
		writeBanner(w, http.StatusUnauthorized, msgWrongCredentials)
	case authclient.StatusEmailAlreadyExists:
		h.limiter.fail(ip, now)
		h.auditLoginFailed(ctx, ip, ua, mode, string(res.Status))
		writeJSON(w, http.StatusUnauthorized, actionErrors{"email": msgEmailExists})
	default:
		h.log.ErrorContext(ctx, "auth.login.unexpected_status", "mode", mode, "status", string(res.Status))
		writeServerError(w)
	}
}
