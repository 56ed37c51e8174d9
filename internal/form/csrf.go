// internal/form/csrf.go
//
// Adept – Forms subsystem: stateless, action-scoped CSRF tokens.
//
// Context
//   Every rendered form embeds a hidden `{formId}_wpnonce` input.  The server
//   verifies it on POST to ensure the request came from a form it rendered,
//   for the same form, and for the same user.  The token is stateless:
//
//      base64url( nonce | unixMicro | HMAC_SHA256(secret, action|uid|nonce|unixMicro) )
//
//   •  nonce – 16 random bytes.
//   •  unixMicro – microseconds since Unix epoch, 8 bytes, big-endian.
//   •  action – the form id, so a token minted for one form fails on another.
//   •  uid – the acting user, so tokens do not travel between sessions.
//
//   Validation checks the signature and the age window.  No server-side
//   storage is needed, so any instance can verify any token.
//
//------------------------------------------------------------------------------

package form

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	tokenBytes      = 16 + 8 + sha256.Size // nonce + ts + sig
	defaultTokenAge = 12 * time.Hour
	maxClockSkew    = time.Minute
)

// Tokens mints and verifies CSRF tokens.  Safe for concurrent use.
type Tokens struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewTokens returns a token service.  An empty key is replaced by a random
// one, which invalidates outstanding tokens on restart.
func NewTokens(key []byte, maxAge time.Duration) *Tokens {
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
		zap.S().Warnw("csrf key not configured, using ephemeral key")
	}
	if maxAge <= 0 {
		maxAge = defaultTokenAge
	}
	return &Tokens{key: key, maxAge: maxAge, now: time.Now}
}

// MaxAge is the validity window.
func (t *Tokens) MaxAge() time.Duration { return t.maxAge }

// Generate creates a token bound to action and userID.
func (t *Tokens) Generate(action string, userID int64) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(t.now().UnixMicro()))

	buf := make([]byte, 0, tokenBytes)
	buf = append(buf, nonce...)
	buf = append(buf, ts...)
	buf = append(buf, t.sign(action, userID, nonce, ts)...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify reports whether tok is authentic for action and userID and within
// the age window.
func (t *Tokens) Verify(action string, userID int64, tok string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return false
	}
	nonce, tsBytes, sig := raw[:16], raw[16:24], raw[24:]

	issued := time.UnixMicro(int64(binary.BigEndian.Uint64(tsBytes)))
	now := t.now()
	if now.Sub(issued) > t.maxAge || issued.Sub(now) > maxClockSkew {
		return false
	}
	return hmac.Equal(sig, t.sign(action, userID, nonce, tsBytes))
}

func (t *Tokens) sign(action string, userID int64, nonce, ts []byte) []byte {
	mac := hmac.New(sha256.New, t.key)
	mac.Write([]byte(action))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strconv.FormatInt(userID, 10)))
	mac.Write([]byte{'|'})
	mac.Write(nonce)
	mac.Write(ts)
	return mac.Sum(nil)
}
