package forms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/adept-forms/internal/auth"
	"github.com/yanizio/adept-forms/internal/component"
	"github.com/yanizio/adept-forms/internal/form"
	"github.com/yanizio/adept-forms/internal/storage"
)

type denyAll struct{}

func (denyAll) Can(context.Context, string) (bool, error) { return false, nil }

func setup(t *testing.T) (http.Handler, *storage.Memory, *form.Tokens) {
	t.Helper()
	mem := storage.NewMemory()
	f := form.NewBuilder("contact_page").
		Title("Contact page").
		Options("cp_", "").
		Text("heading").Required().
		Email("inbox").
		End().MustBuild()
	if err := (form.Stores{KV: mem}).Bind(f); err != nil {
		t.Fatal(err)
	}
	form.Register(f)
	_ = mem.SetOption(context.Background(), "cp_heading", "Say hello")

	tokens := form.NewTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	c := &Component{}
	if err := c.Init(component.Deps{
		Stores:   form.Stores{KV: mem},
		Tokens:   tokens,
		Security: &form.Security{Tokens: tokens},
	}); err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), 9)))
		})
	})
	c.Routes(r)
	return r, mem, tokens
}

func TestShow(t *testing.T) {
	h, _, _ := setup(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/forms/contact_page", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<h1>Contact page</h1>", `id="adept-form-contact_page"`, `value="Say hello"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s", want)
		}
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/forms/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown form status %d", rec.Code)
	}
}

func TestSubmit(t *testing.T) {
	h, mem, tokens := setup(t)
	nonce, err := tokens.Generate("contact_page", 9)
	if err != nil {
		t.Fatal(err)
	}
	send := func(heading string) *httptest.ResponseRecorder {
		vals := url.Values{
			form.FieldFormID:                  {"contact_page"},
			form.FieldTimestamp:               {strconv.FormatInt(time.Now().Unix(), 10)},
			"contact_page" + form.NonceSuffix: {nonce},
			"contact_page[heading]":           {heading},
			"contact_page[inbox]":             {"team@example.com"},
		}
		req := httptest.NewRequest(http.MethodPost, "/admin/forms/contact_page", strings.NewReader(vals.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send("Write to us")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "notice-success") {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	got, _ := mem.GetOptions(context.Background(), []string{"cp_heading", "cp_inbox"})
	if got["cp_heading"] != "Write to us" || got["cp_inbox"] != "team@example.com" {
		t.Fatalf("stored %v", got)
	}

	rec = send("")
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "Heading is required.") {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestCapabilityDenied(t *testing.T) {
	c := &Component{}
	_ = c.Init(component.Deps{Security: &form.Security{Caps: denyAll{}}})
	form.Register(form.NewBuilder("locked").Text("a").End().MustBuild())
	r := chi.NewRouter()
	c.Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/forms/locked", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d", rec.Code)
	}
}
