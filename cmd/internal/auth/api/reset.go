package authapi

import (
	"net/http"
	"strings"

	"authgate/cmd/internal/auth/authclient"
	"authgate/cmd/internal/auth/gate"
)

const (
	msgNewPasswordRequired     = "New password is required"
	msgConfirmPasswordRequired = "Confirm password is required"
	msgConfirmMismatch         = "Confirmation password doesn't match"
	msgInvalidResetLink        = "Invalid password reset link"
)

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		mode := "request"
		switch {
		case q.Get("token") != "":
			mode = "attempt"
		case q.Get("mode") != "":
			mode = q.Get("mode")
		}
		writeJSON(w, http.StatusOK, map[string]string{"mode": mode})
	case http.MethodPost:
		h.resetAction(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) resetAction(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r, h.cfg.MaxBodyBytes); err != nil {
		writeBanner(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)

	switch r.FormValue("mode") {
	case "request":
		email := strings.TrimSpace(r.PostForm.Get("email"))
		if msg := emailError(email); msg != "" {
			writeJSON(w, http.StatusBadRequest, actionErrors{"email": msg})
			return
		}
		if err := h.client.SendPasswordResetEmail(ctx, email); err != nil {
			h.log.ErrorContext(ctx, "auth.reset.send.error", "err", err)
		}
		h.auditPasswordReset(ctx, "auth.reset.requested", ip, r.UserAgent())
		h.observe("reset_request", string(authclient.StatusOK))
		gate.Redirect(w, r, h.paths.ResetPassword()+"?mode=emailed", http.StatusSeeOther)

	case "attempt":
		pw := r.PostForm.Get("newPassword")
		confirm := r.PostForm.Get("confirmPassword")

		errs := actionErrors{}
		if msg := passwordError(pw, true, msgNewPasswordRequired); msg != "" {
			errs["newPassword"] = msg
		}
		switch {
		case confirm == "":
			errs["confirmPassword"] = msgConfirmPasswordRequired
		case confirm != pw:
			errs["confirmPassword"] = msgConfirmMismatch
		}
		if len(errs) > 0 {
			writeJSON(w, http.StatusBadRequest, errs)
			return
		}

		token := strings.TrimSpace(r.FormValue("token"))
		if token == "" {
			writeBanner(w, http.StatusUnauthorized, msgInvalidResetLink)
			return
		}
		status, err := h.client.ResetPassword(ctx, token, pw)
		if err != nil {
			h.log.ErrorContext(ctx, "auth.reset.error", "err", err)
			writeServerError(w)
			return
		}
		h.observe("reset_attempt", string(status))
		if status != authclient.StatusOK {
			writeBanner(w, http.StatusUnauthorized, msgInvalidResetLink)
			return
		}
		h.auditPasswordReset(ctx, "auth.reset.completed", ip, r.UserAgent())
		gate.Redirect(w, r, h.paths.ResetPassword()+"?mode=success", http.StatusSeeOther)

	default:
		writeBanner(w, http.StatusBadRequest, "Invalid Request")
	}
}
