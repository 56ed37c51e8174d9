// internal/requestinfo/middleware.go
//
// HTTP middleware that enriches each request with *RequestInfo.
//
/*
Context
--------
This handler sits first in the admin chain.  For every request it:

  1. Parses the User-Agent header and Accept-Language list.
  2. Extracts the client IP from X-Forwarded-For or X-Real-IP, falling
     back to `r.RemoteAddr`.
  3. Performs a GeoLite2 lookup when a database is loaded.
  4. Stores a `*RequestInfo` value in the request context and attaches a
     request-scoped logger carrying `ip` and `path`.

The form security check reads the bot flag and the client address from
here; the rate limiter keys on the address.

Notes
-----
  • Oxford commas, two spaces after periods.  No em dash.
*/
package requestinfo

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/adept-forms/internal/logger"
)

/*──────────────────────────── middleware ───────────────────────────────────*/

// Enrich wraps an http.Handler, attaches *RequestInfo, and forwards.
func Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		info := &RequestInfo{
			UA:        ParseUA(r.UserAgent(), r.Header.Get("Accept-Language")),
			Geo:       lookupGeo(ip),
			Timestamp: time.Now().UTC(),
		}

		log := zap.S().With("ip", ip.String(), "path", r.URL.Path)
		log.Debugw("request info",
			"country", info.Geo.CountryISO,
			"browser", info.UA.Browser,
			"device", info.UA.Device,
			"bot", info.UA.IsBot,
		)

		ctx := WithInfo(r.Context(), info)
		ctx = logger.WithContext(ctx, log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

/*──────────────────────────── client IP helper ─────────────────────────────*/

// ClientIP extracts the left-most parseable address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").
func ClientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return nil
}
