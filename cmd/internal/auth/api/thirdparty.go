package authapi

import (
	"net/http"
	"strings"

	"authgate/cmd/internal/auth/authclient"
	"authgate/cmd/internal/auth/cookies"
	"authgate/cmd/internal/auth/gate"
)

// thirdPartyFailures maps callback statuses to their HTTP status and banner.
var thirdPartyFailures = map[authclient.Status]struct {
	code int
	msg  string
}{
	authclient.StatusUnrecognizedProvider:  {http.StatusBadRequest, "Provider was not recognized"},
	authclient.StatusNoEmailFound:          {http.StatusBadRequest, "Account lacks a valid email"},
	authclient.StatusEmailNotVerified:      {http.StatusForbidden, "Email not verified with provider"},
	authclient.StatusSignInUpNotAllowed:    {http.StatusForbidden, "Account was rejected"},
	authclient.StatusEmailChangeNotAllowed: {http.StatusForbidden, "Unsupported email change detected"},
}

func (h *Handler) handleThirdParty(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if h.redirectHome(w, r) {
			return
		}
		if provider := strings.TrimSpace(r.URL.Query().Get("provider")); provider != "" {
			h.thirdPartyCallback(w, r, provider)
			return
		}
		providers := h.client.ThirdPartyProviders()
		if providers == nil {
			providers = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
	case http.MethodPost:
		if h.redirectHome(w, r) {
			return
		}
		h.thirdPartyAuthorize(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) thirdPartyAuthorize(w http.ResponseWriter, r *http.Request) {
	const msg = "Could not authorize with provider"
	if err := parseForm(w, r, h.cfg.MaxBodyBytes); err != nil {
		writeBanner(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	ctx := r.Context()
	provider := strings.TrimSpace(r.PostForm.Get("provider"))
	res, err := h.client.ThirdPartyRedirect(ctx, provider)
	if err != nil {
		h.log.ErrorContext(ctx, "auth.thirdparty.authorize.error", "provider", provider, "err", err)
		writeBanner(w, http.StatusInternalServerError, msg)
		return
	}
	if res.Status != authclient.StatusOK {
		writeBanner(w, http.StatusInternalServerError, msg)
		return
	}

	if res.PKCEVerifier != "" {
		h.codec.WriteDevice(w, cookies.PKCE, cookies.Device{PKCEVerifier: res.PKCEVerifier})
	}
	gate.Redirect(w, r, res.URL, http.StatusSeeOther)
}

func (h *Handler) thirdPartyCallback(w http.ResponseWriter, r *http.Request, provider string) {
	ctx := r.Context()
	q := r.URL.Query()
	res, err := h.client.ThirdPartySignIn(ctx, authclient.ThirdPartyCallback{
		Provider:     provider,
		Code:         q.Get("code"),
		State:        q.Get("state"),
		PKCEVerifier: cookies.ReadDevice(r).PKCEVerifier,
	}, h.device(r))
	if err != nil {
		h.log.ErrorContext(ctx, "auth.thirdparty.signin.error", "provider", provider, "err", err)
		writeBanner(w, http.StatusInternalServerError, "Authorization failed")
		return
	}
	h.observe("thirdparty_signin", string(res.Status))

	if res.Status == authclient.StatusOK {
		h.codec.DeleteDevice(w, cookies.PKCE)
		h.finishSignIn(ctx, w, r, "thirdparty:"+provider, res)
		return
	}
	if f, ok := thirdPartyFailures[res.Status]; ok {
		writeBanner(w, f.code, f.msg)
		return
	}
	writeBanner(w, http.StatusInternalServerError, "Authorization failed")
}
