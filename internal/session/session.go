// internal/session/session.go
//
// Signed admin session cookie.
//
// Context
//   The admin server needs to know which user is acting so the form
//   security check can test capabilities and key the rate limiter.  The
//   cookie "adept_session" carries `<userID>.<expiryUnix>.<sig>` where sig is
//   HMAC-SHA256 over the first two parts.  `Attach` verifies the cookie and
//   places the user ID in the request context via internal/auth.
//
//   Credential checks live elsewhere; this package only issues and reads the
//   cookie.
//
// Style
//   Two-space sentence spacing, Oxford comma, terse inline notes.
//
//------------------------------------------------------------------------------

package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yanizio/adept-forms/internal/auth"
)

const cookieName = "adept_session"

// Manager issues and verifies session cookies.  Key must be non-empty.
type Manager struct {
	Key []byte
	TTL time.Duration // default 14 days

	now func() time.Time
}

func (m *Manager) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

func (m *Manager) ttl() time.Duration {
	if m.TTL <= 0 {
		return 14 * 24 * time.Hour
	}
	return m.TTL
}

// LoginUser sets a signed session cookie for userID.
func (m *Manager) LoginUser(w http.ResponseWriter, r *http.Request, userID int64) {
	exp := m.clock().Add(m.ttl())
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    m.sign(userID, exp.Unix()),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
}

// LogoutUser clears the session cookie.
func (m *Manager) LogoutUser(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// CurrentUser returns the user ID carried by a valid, unexpired cookie.
func (m *Manager) CurrentUser(r *http.Request) (int64, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return 0, false
	}
	parts := strings.Split(c.Value, ".")
	if len(parts) != 3 {
		return 0, false
	}
	uid, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || m.clock().Unix() >= exp {
		return 0, false
	}
	if !hmac.Equal([]byte(m.sign(uid, exp)), []byte(c.Value)) {
		return 0, false
	}
	return uid, true
}

// Attach is middleware that copies a valid session user into the context.
// Requests without a session pass through anonymous.
func (m *Manager) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid, ok := m.CurrentUser(r); ok {
			r = r.WithContext(auth.WithUser(r.Context(), uid))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Manager) sign(uid, exp int64) string {
	payload := strconv.FormatInt(uid, 10) + "." + strconv.FormatInt(exp, 10)
	mac := hmac.New(sha256.New, m.Key)
	mac.Write([]byte(payload))
	return payload + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
