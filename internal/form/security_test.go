package form

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yanizio/adept-forms/internal/requestinfo"
	"github.com/yanizio/adept-forms/internal/throttle"
)

type capsFunc func(string) (bool, error)

func (f capsFunc) Can(_ context.Context, c string) (bool, error) { return f(c) }

func securityForm(t *testing.T) *Form {
	t.Helper()
	return NewBuilder("general").Options("", "").Text("site_name").End().MustBuild()
}

func TestSecurityVerify(t *testing.T) {
	form := securityForm(t)
	tokens := NewTokens(testKey, time.Hour)

	tests := []struct {
		name      string
		sec       func() *Security
		mutate    func(url.Values)
		prepare   func(r *requestinfo.RequestInfo)
		origin    string
		wantCheck string
	}{
		{name: "ok", sec: func() *Security { return &Security{Tokens: tokens} }},
		{
			name:      "wrong form id",
			sec:       func() *Security { return &Security{Tokens: tokens} },
			mutate:    func(v url.Values) { v.Set(FieldFormID, "other") },
			wantCheck: "form_id",
		},
		{
			name: "stale timestamp",
			sec:  func() *Security { return &Security{Tokens: tokens} },
			mutate: func(v url.Values) {
				v.Set(FieldTimestamp, strconv.FormatInt(time.Now().Add(-2*time.Hour).Unix(), 10))
			},
			wantCheck: "timestamp",
		},
		{
			name: "future timestamp",
			sec:  func() *Security { return &Security{Tokens: tokens} },
			mutate: func(v url.Values) {
				v.Set(FieldTimestamp, strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
			},
			wantCheck: "timestamp",
		},
		{
			name:      "bad nonce",
			sec:       func() *Security { return &Security{Tokens: tokens} },
			mutate:    func(v url.Values) { v.Set(form.ID+NonceSuffix, "forged") },
			wantCheck: "nonce",
		},
		{
			name: "capability denied",
			sec: func() *Security {
				return &Security{Tokens: tokens, Caps: capsFunc(func(c string) (bool, error) { return c != "manage_options", nil })}
			},
			wantCheck: "capability",
		},
		{
			name: "capability lookup error",
			sec: func() *Security {
				return &Security{Tokens: tokens, Caps: capsFunc(func(string) (bool, error) { return false, errors.New("db down") })}
			},
			wantCheck: "capability",
		},
		{
			name:      "foreign origin",
			sec:       func() *Security { return &Security{Tokens: tokens, AdminOrigin: "https://admin.example.com"} },
			origin:    "https://evil.example.net",
			wantCheck: "origin",
		},
		{
			name:   "same origin",
			sec:    func() *Security { return &Security{Tokens: tokens, AdminOrigin: "https://admin.example.com"} },
			origin: "https://admin.example.com",
		},
		{
			name:      "missing origin",
			sec:       func() *Security { return &Security{Tokens: tokens, AdminOrigin: "https://admin.example.com"} },
			wantCheck: "origin",
		},
		{
			name:      "bot",
			sec:       func() *Security { return &Security{Tokens: tokens, RejectBots: true} },
			prepare:   func(ri *requestinfo.RequestInfo) { ri.UA.IsBot = true },
			wantCheck: "bot",
		},
		{
			name: "too many fields",
			sec:  func() *Security { return &Security{Tokens: tokens, MaxFields: 2} },
			mutate: func(v url.Values) {
				v.Set(fv(form, "a"), "1")
				v.Set(fv(form, "b"), "1")
			},
			wantCheck: "field_count",
		},
		{
			name: "hidden inputs and repeater options are not counted",
			sec:  func() *Security { return &Security{Tokens: tokens, MaxFields: 2} },
			mutate: func(v url.Values) {
				v.Set(fv(form, renderedKey), "site_name,tags")
				v.Set(fv(form, "tags___a"), "1")
				v.Set(fv(form, "tags___b"), "1")
				v.Set(fv(form, "tags___c"), "1")
			},
		},
		{
			name:      "oversized value",
			sec:       func() *Security { return &Security{Tokens: tokens, MaxFieldBytes: 8} },
			mutate:    func(v url.Values) { v.Set(fv(form, "site_name"), strings.Repeat("x", 9)) },
			wantCheck: "field_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals := signed(t, form, tokens, url.Values{fv(form, "site_name"): {"Acme"}})
			if tt.mutate != nil {
				tt.mutate(vals)
			}
			r, ctx := post(vals)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if tt.prepare != nil {
				ri := &requestinfo.RequestInfo{}
				tt.prepare(ri)
				ctx = requestinfo.WithInfo(ctx, ri)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}

			err := tt.sec().Verify(ctx, r, form)
			if tt.wantCheck == "" {
				if err != nil {
					t.Fatalf("unexpected %v", err)
				}
				return
			}
			var se *SecurityError
			if !errors.As(err, &se) {
				t.Fatalf("want *SecurityError, got %v", err)
			}
			if se.Check != tt.wantCheck {
				t.Fatalf("check = %s, want %s", se.Check, tt.wantCheck)
			}
			if strings.Contains(err.Error(), tt.wantCheck) {
				t.Fatalf("public message leaks the check: %q", err.Error())
			}
		})
	}
}

func TestSecurityRateLimit(t *testing.T) {
	form := securityForm(t)
	tokens := NewTokens(testKey, time.Hour)
	sec := &Security{
		Tokens:  tokens,
		Limiter: &throttle.Limiter{Counter: throttle.NewMemory(), Max: 2, Window: time.Minute},
	}

	var last error
	for i := 0; i < 3; i++ {
		r, ctx := post(signed(t, form, tokens, nil))
		r.RemoteAddr = "203.0.113.9:5555"
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		last = sec.Verify(ctx, r, form)
		if i < 2 && last != nil {
			t.Fatalf("attempt %d rejected: %v", i+1, last)
		}
	}
	var se *SecurityError
	if !errors.As(last, &se) || se.Check != "rate_limit" {
		t.Fatalf("third attempt: got %v", last)
	}
}
