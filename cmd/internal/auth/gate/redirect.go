package gate

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Headers of the silent-redirect protocol.
const (
	HeaderRequestWithJS    = "X-REQUEST-WITH-JS"
	HeaderRedirectLocation = "X-Redirect-Location"
	HeaderRedirectStatus   = "X-Redirect-Status"

	// HeaderGlobalServerData is the legacy per-request data header. It is
	// never emitted and is stripped from inbound requests.
	HeaderGlobalServerData = "X-GLOBAL-SERVER-DATA"
)

// WantsJS reports whether r came from the script relay rather than a browser navigation.
func WantsJS(r *http.Request) bool {
	return r.Header.Get(HeaderRequestWithJS) != ""
}

// Redirect sends the client to location with status. Script requests get a
// 204 carrying the redirect in headers so the relay can replay or navigate.
// Cookies already on w are kept in both cases.
func Redirect(w http.ResponseWriter, r *http.Request, location string, status int) {
	h := w.Header()
	if WantsJS(r) {
		h.Set(HeaderRedirectLocation, location)
		h.Set(HeaderRedirectStatus, strconv.Itoa(status))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.Set("Location", location)
	w.WriteHeader(status)
}

// WithReturnURL appends returnUrl=<escaped target> to base.
func WithReturnURL(base, target string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "returnUrl=" + url.QueryEscape(target)
}

// SafeReturnURL returns raw when it is a same-site absolute path, else fallback.
func SafeReturnURL(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	return raw
}

// requestTarget is the path and query of r as the client sent it.
func requestTarget(r *http.Request) string {
	target := r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}
