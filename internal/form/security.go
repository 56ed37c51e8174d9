// internal/form/security.go
//
// Adept – Forms subsystem: request integrity checks.
//
// Context
//   Verify runs before any submitted value is read.  Each check either passes
//   or fails the whole submission with a *SecurityError.  The error names the
//   failed check for the log, while its message stays generic so a client
//   cannot probe which check tripped.
//
// Checks, in order
//   1.  method         – request method equals the form's method.
//   2.  field_count    – at most MaxFields submitted keys.
//   3.  field_size     – no value longer than MaxFieldBytes.
//   4.  form_id        – hidden `form_id` equals the form being processed.
//   5.  timestamp      – hidden `timestamp` not in the future, not stale.
//   6.  nonce          – `{formId}_wpnonce` verifies for this form and user.
//   7.  capability     – the acting user holds the form's capability.
//   8.  origin         – Origin (or Referer) matches the admin origin.
//   9.  bot            – crawler user agents are refused.
//   10. rate_limit     – per (form, user, address) submission budget.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yanizio/adept-forms/internal/auth"
	"github.com/yanizio/adept-forms/internal/metrics"
	"github.com/yanizio/adept-forms/internal/requestinfo"
	"github.com/yanizio/adept-forms/internal/throttle"
)

// Hidden inputs written by the renderer.
const (
	FieldFormID    = "form_id"
	FieldTimestamp = "timestamp"
	NonceSuffix    = "_wpnonce"
)

// Default request-shape limits.
const (
	DefaultMaxFields     = 100
	DefaultMaxFieldBytes = 10 * 1024
)

// CapabilityChecker answers capability questions for the user in ctx.
type CapabilityChecker interface {
	Can(ctx context.Context, capability string) (bool, error)
}

// Security verifies submissions.  Nil collaborators skip their check,
// except Tokens, which is required.
type Security struct {
	Tokens        *Tokens
	Caps          CapabilityChecker
	Limiter       *throttle.Limiter
	AdminOrigin   string
	MaxFields     int
	MaxFieldBytes int
	RejectBots    bool

	now func() time.Time
}

func (s *Security) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func deny(check string, err error) *SecurityError { return &SecurityError{Check: check, Err: err} }

// Verify runs every check against r, whose form must already be parsed.
func (s *Security) Verify(ctx context.Context, r *http.Request, form *Form) error {
	if !strings.EqualFold(r.Method, form.Method) {
		return deny("method", nil)
	}
	if err := s.checkShape(r, form); err != nil {
		return err
	}
	if r.PostFormValue(FieldFormID) != form.ID {
		return deny("form_id", nil)
	}
	if err := s.checkTimestamp(r.PostFormValue(FieldTimestamp)); err != nil {
		return err
	}

	uid, _ := auth.UserID(ctx)
	if s.Tokens == nil || !s.Tokens.Verify(form.ID, uid, r.PostFormValue(form.ID+NonceSuffix)) {
		return deny("nonce", nil)
	}

	if s.Caps != nil {
		ok, err := s.Caps.Can(ctx, form.Capability)
		if err != nil {
			return deny("capability", err)
		}
		if !ok {
			return deny("capability", nil)
		}
	}

	if !s.sameOrigin(r) {
		return deny("origin", nil)
	}

	if s.RejectBots {
		if info := requestinfo.FromContext(ctx); info != nil && info.UA.IsBot {
			return deny("bot", nil)
		}
	}

	if s.Limiter != nil {
		addr := ""
		if ip := requestinfo.ClientIP(r); ip != nil {
			addr = ip.String()
		}
		ok, err := s.Limiter.Allow(ctx, throttle.Key(form.ID, uid, addr))
		if err != nil {
			return deny("rate_limit", err)
		}
		if !ok {
			metrics.RateLimited.WithLabelValues(form.ID).Inc()
			return deny("rate_limit", nil)
		}
	}
	return nil
}

// checkShape bounds the request.  Every posted value counts toward the size
// limit.  Only field names under the form's namespace count toward the field
// limit, with repeater sub-fields folded onto their repeater and the
// rendered-list input left out, so the hidden inputs never eat the budget.
func (s *Security) checkShape(r *http.Request, form *Form) error {
	maxFields, maxBytes := s.MaxFields, s.MaxFieldBytes
	if maxFields <= 0 {
		maxFields = DefaultMaxFields
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFieldBytes
	}

	prefix := form.ID + "["
	fields := map[string]struct{}{}
	for key, vals := range r.PostForm {
		for _, v := range vals {
			if len(v) > maxBytes {
				return deny("field_size", nil)
			}
		}
		if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, "]") {
			continue
		}
		id := key[len(prefix) : len(key)-1]
		if i := strings.Index(id, RepeatSep); i >= 0 {
			id = id[:i]
		}
		if id != renderedKey {
			fields[id] = struct{}{}
		}
	}
	if len(fields) > maxFields {
		return deny("field_count", nil)
	}
	return nil
}

func (s *Security) checkTimestamp(raw string) error {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return deny("timestamp", err)
	}
	issued := time.Unix(ts, 0)
	now := s.clock()
	maxAge := defaultTokenAge
	if s.Tokens != nil {
		maxAge = s.Tokens.MaxAge()
	}
	if issued.Sub(now) > maxClockSkew || now.Sub(issued) > maxAge {
		return deny("timestamp", errors.New("outside window"))
	}
	return nil
}

// sameOrigin compares Origin, or failing that Referer, with AdminOrigin.
// An empty AdminOrigin disables the check.
func (s *Security) sameOrigin(r *http.Request) bool {
	if s.AdminOrigin == "" {
		return true
	}
	want, err := url.Parse(s.AdminOrigin)
	if err != nil {
		return false
	}
	src := r.Header.Get("Origin")
	if src == "" || src == "null" {
		src = r.Referer()
	}
	if src == "" {
		return false
	}
	got, err := url.Parse(src)
	if err != nil {
		return false
	}
	return strings.EqualFold(got.Scheme, want.Scheme) && strings.EqualFold(got.Host, want.Host)
}
