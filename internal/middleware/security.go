// internal/middleware/security.go
//
// Security-header middleware.
//
// Injects standard headers on every admin response:
//
//   • Strict-Transport-Security  –  forces HTTPS (2 years)
//   • Content-Security-Policy   –  self-only policy, inline styles allowed
//                                  for the admin form layout
//   • X-Frame-Options           –  click-jacking defence
//   • X-Content-Type-Options    –  MIME-sniffing defence
//   • Referrer-Policy           –  keeps same-origin Referer intact so the
//                                  form security check can read it
//   • Permissions-Policy        –  disables powerful features by default
//
// Notes
// -----
// • Headers are set *before* next.ServeHTTP, since a handler that writes
//   the body commits the header map.  Handlers may still overwrite them.
// • Oxford commas, two spaces after periods.

package middleware

import "net/http"

// Security sets security headers for every response.
func Security(next http.Handler) http.Handler {
	const (
		hsts = "max-age=63072000; includeSubDomains"
		csp  = "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; " +
			"object-src 'none'; base-uri 'self'; form-action 'self'; frame-ancestors 'none'"
		xfo   = "DENY"
		nosn  = "nosniff"
		refer = "same-origin"
		perm  = "geolocation=(), microphone=(), camera=()"
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Strict-Transport-Security", hsts)
		h.Set("Content-Security-Policy", csp)
		h.Set("X-Frame-Options", xfo)
		h.Set("X-Content-Type-Options", nosn)
		h.Set("Referrer-Policy", refer)
		h.Set("Permissions-Policy", perm)
		next.ServeHTTP(w, r)
	})
}
