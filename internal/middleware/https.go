// Package middleware holds small, composable HTTP wrappers for the admin
// server.
package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// ForceHTTPS wraps h.  When the configured admin origin is https, a plain
// HTTP request for a non-localhost host gets a 308 to the HTTPS version of
// the same URL.  Otherwise h runs unchanged.
func ForceHTTPS(adminOrigin string, h http.Handler) http.Handler {
	u, err := url.Parse(adminOrigin)
	if err != nil || u.Scheme != "https" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" ||
			stripPort(r.Host) == "localhost" {
			h.ServeHTTP(w, r)
			return
		}
		target := "https://" + r.Host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
}

// stripPort removes the :port suffix from Host when present.
func stripPort(h string) string {
	if i := strings.IndexByte(h, ':'); i != -1 {
		return h[:i]
	}
	return h
}
