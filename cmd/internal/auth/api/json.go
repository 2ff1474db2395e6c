package authapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// actionErrors is the error payload of a failed action: an optional
// "banner" plus one message per offending form field.
type actionErrors map[string]string

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBanner(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, actionErrors{"banner": msg})
}

func writeServerError(w http.ResponseWriter) {
	writeBanner(w, http.StatusInternalServerError, "An unexpected error occurred")
}

func methodNotAllowed(w http.ResponseWriter, allow ...string) {
	w.Header().Set("Allow", strings.Join(allow, ", "))
	w.WriteHeader(http.StatusMethodNotAllowed)
}

// parseForm reads a urlencoded or multipart body bounded by maxBytes.
func parseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxBytes)
	}
	return r.ParseForm()
}
