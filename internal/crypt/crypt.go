// internal/crypt/crypt.go
//
// Field-level encryption for `encrypted` form fields.
//
// Context
// -------
// Secrets typed into admin forms (API keys, SMTP passwords) are stored as
// AES-256-GCM ciphertext.  The stored form is a single printable token:
//
//	enc:v1:<base64url(nonce || ciphertext || tag)>
//
// Reads go through `DecryptForContext`, which enforces the field's security
// context before returning plaintext:
//
//	admin_only  – viewer must be an administrator.
//	owner_only  – viewer must own the record (or be an administrator).
//	public      – anyone who can see the form.
//
// The key is 32 raw bytes sourced from config or Vault (see cmd/web).
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const prefix = "enc:v1:"

// MaskText is what the renderer shows in place of an existing secret.
const MaskText = "••••••••"

var (
	// ErrPermission is returned when the viewer may not see the plaintext.
	ErrPermission = errors.New("crypt: permission denied")
	// ErrMalformed marks a token that is not ours or fails authentication.
	ErrMalformed = errors.New("crypt: malformed ciphertext")
)

// Context is the access tier attached to an encrypted field.
type Context string

const (
	AdminOnly Context = "admin_only"
	OwnerOnly Context = "owner_only"
	Public    Context = "public"
)

// Viewer describes who is asking to see a decrypted value.
type Viewer struct {
	UserID  int64
	IsAdmin bool
	OwnerID int64 // owner of the record the value belongs to; 0 if none
}

// Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("crypt: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypt: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypt: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plain under a fresh random nonce.
func (c *Cipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypt: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt.  No access check.
func (c *Cipher) Decrypt(token string) (string, error) {
	if !IsEncrypted(token) {
		return "", ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(token[len(prefix):])
	if err != nil {
		return "", ErrMalformed
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrMalformed
	}
	return string(plain), nil
}

// DecryptForContext decrypts token only if v is allowed under sc.  An
// unknown context is treated as admin_only.
func (c *Cipher) DecryptForContext(token string, sc Context, v Viewer) (string, error) {
	if !Allowed(sc, v) {
		return "", ErrPermission
	}
	return c.Decrypt(token)
}

// Allowed reports whether v may view values guarded by sc.
func Allowed(sc Context, v Viewer) bool {
	switch sc {
	case Public:
		return true
	case OwnerOnly:
		return v.IsAdmin || (v.UserID != 0 && v.UserID == v.OwnerID)
	default:
		return v.IsAdmin
	}
}

// IsEncrypted reports whether s carries the ciphertext prefix.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, prefix)
}
