package authapi

import (
	"errors"
	"net/http"
	"strings"

	"authgate/cmd/internal/auth/authclient"
	"authgate/cmd/internal/auth/cookies"
	"authgate/cmd/internal/auth/gate"
	"authgate/cmd/internal/auth/passwordless"
)

const (
	msgContactMissing = "Please provide an email or a phone number"
	msgContactBoth    = "You may provide an email or a phone number, but not both"
	msgCodeRequired   = "Code is required"
	msgCodeExpired    = "This code has expired"
	msgCodeInvalid    = "Code is invalid"
	msgRequestNewCode = "Please request a new code"
	msgLinkingFailed  = "Account linking failed"
)

var passwordlessModes = map[string]bool{
	"request":     true,
	"code-signin": true,
	"link-signin": true,
	"messaged":    true,
}

func (h *Handler) handlePasswordless(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if h.redirectHome(w, r) {
			return
		}
		q := r.URL.Query()
		if token := q.Get("token"); token != "" {
			h.passwordlessLinkSignIn(w, r, token)
			return
		}
		mode := q.Get("mode")
		if !passwordlessModes[mode] {
			mode = "request"
		}
		contact := "email"
		if q.Get("contact") == "phoneNumber" {
			contact = "phoneNumber"
		}
		writeJSON(w, http.StatusOK, map[string]string{"mode": mode, "contact": contact})
	case http.MethodPost:
		if h.redirectHome(w, r) {
			return
		}
		if err := parseForm(w, r, h.cfg.MaxBodyBytes); err != nil {
			writeBanner(w, http.StatusBadRequest, "Invalid Request")
			return
		}
		switch r.FormValue("mode") {
		case "request":
			h.passwordlessRequest(w, r)
		case "code-signin":
			h.passwordlessCodeSignIn(w, r)
		default:
			writeBanner(w, http.StatusBadRequest, "Invalid Request")
		}
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) passwordlessRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := strings.TrimSpace(r.PostForm.Get("email"))
	phone := strings.TrimSpace(r.PostForm.Get("phoneNumber"))

	switch {
	case email == "" && phone == "":
		writeBanner(w, http.StatusBadRequest, msgContactMissing)
		return
	case email != "" && phone != "":
		writeBanner(w, http.StatusBadRequest, msgContactBoth)
		return
	case email != "":
		if msg := emailError(email); msg != "" {
			writeJSON(w, http.StatusBadRequest, actionErrors{"email": msg})
			return
		}
	default:
		if msg := phoneError(phone); msg != "" {
			writeJSON(w, http.StatusBadRequest, actionErrors{"phoneNumber": msg})
			return
		}
	}

	flow, err := passwordless.ParseFlow(r.PostForm.Get("flow"))
	if err != nil {
		writeBanner(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	code, err := h.client.CreatePasswordlessCode(ctx, passwordless.Contact{Email: email, PhoneNumber: phone}, flow)
	if err != nil {
		if errors.Is(err, passwordless.ErrInvalidContact) {
			writeBanner(w, http.StatusBadRequest, msgContactMissing)
			return
		}
		h.log.ErrorContext(ctx, "auth.passwordless.create.error", "err", err)
		writeServerError(w)
		return
	}
	h.observe("passwordless_request", string(authclient.StatusOK))

	h.codec.WriteDevice(w, cookies.Passwordless, cookies.Device{
		DeviceID:         code.DeviceID,
		PreAuthSessionID: code.PreAuthSessionID,
	})

	q := r.URL.Query()
	if code.Flow == passwordless.FlowLink {
		q.Set("mode", "messaged")
		q.Del("returnUrl")
	} else {
		q.Set("mode", "code-signin")
	}
	gate.Redirect(w, r, r.URL.Path+"?"+q.Encode(), http.StatusSeeOther)
}

func (h *Handler) passwordlessCodeSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := strings.TrimSpace(r.PostForm.Get("code"))
	if code == "" {
		writeJSON(w, http.StatusBadRequest, actionErrors{"code": msgCodeRequired})
		return
	}

	dev := cookies.ReadDevice(r)
	res, err := h.client.PasswordlessSignIn(ctx, authclient.PasswordlessCredentials{
		UserInputCode:    code,
		DeviceID:         dev.DeviceID,
		PreAuthSessionID: dev.PreAuthSessionID,
	}, h.device(r))
	if err != nil {
		h.log.ErrorContext(ctx, "auth.passwordless.signin.error", "err", err)
		writeServerError(w)
		return
	}
	h.observe("passwordless_signin", string(res.Status))

	switch res.Status {
	case authclient.StatusOK:
		h.codec.DeleteDevice(w, cookies.Passwordless)
		h.finishSignIn(ctx, w, r, "passwordless", res)
	case authclient.StatusRestartFlow:
		h.codec.DeleteDevice(w, cookies.Passwordless)
		writeBanner(w, http.StatusUnauthorized, msgRequestNewCode)
	case authclient.StatusExpiredCode:
		writeJSON(w, http.StatusUnauthorized, actionErrors{"code": msgCodeExpired})
	case authclient.StatusLinkingFailed:
		writeBanner(w, http.StatusBadRequest, msgLinkingFailed)
	default:
		writeJSON(w, http.StatusUnauthorized, actionErrors{"code": msgCodeInvalid})
	}
}

func (h *Handler) passwordlessLinkSignIn(w http.ResponseWriter, r *http.Request, linkCode string) {
	ctx := r.Context()
	dev := cookies.ReadDevice(r)
	res, err := h.client.PasswordlessSignIn(ctx, authclient.PasswordlessCredentials{
		LinkCode:         linkCode,
		PreAuthSessionID: dev.PreAuthSessionID,
	}, h.device(r))
	if err != nil {
		h.log.ErrorContext(ctx, "auth.passwordless.link.error", "err", err)
		writeServerError(w)
		return
	}
	h.observe("passwordless_link", string(res.Status))

	switch res.Status {
	case authclient.StatusOK:
		h.codec.DeleteDevice(w, cookies.Passwordless)
		h.finishSignIn(ctx, w, r, "passwordless", res)
	case authclient.StatusLinkingFailed:
		writeBanner(w, http.StatusBadRequest, msgLinkingFailed)
	default:
		h.codec.DeleteDevice(w, cookies.Passwordless)
		writeBanner(w, http.StatusUnauthorized, msgRequestNewCode)
	}
}
