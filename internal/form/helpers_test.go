package form

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yanizio/adept-forms/internal/auth"
	"github.com/yanizio/adept-forms/internal/storage"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

const testUser int64 = 42

// signed returns vals plus the hidden inputs the renderer would emit for
// form and testUser.
func signed(t *testing.T, form *Form, tokens *Tokens, vals url.Values) url.Values {
	t.Helper()
	tok, err := tokens.Generate(form.ID, testUser)
	if err != nil {
		t.Fatal(err)
	}
	out := url.Values{}
	for k, v := range vals {
		out[k] = v
	}
	out.Set(FieldFormID, form.ID)
	out.Set(FieldTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	out.Set(form.ID+NonceSuffix, tok)
	return out
}

// post builds an urlencoded submission carrying testUser in its context.
func post(vals url.Values) (*http.Request, context.Context) {
	r := httptest.NewRequest(http.MethodPost, "/admin/forms/x", strings.NewReader(vals.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	ctx := auth.WithUser(context.Background(), testUser)
	return r.WithContext(ctx), ctx
}

// fv names a field value under form's namespace.
func fv(form *Form, id string) string { return namespaced(form.ID, id) }

// newMemoryBound binds form to a fresh in-memory store.
func newMemoryBound(t *testing.T, form *Form) *storage.Memory {
	t.Helper()
	mem := storage.NewMemory()
	if err := (Stores{KV: mem, Meta: mem, Groups: mem}).Bind(form); err != nil {
		t.Fatal(err)
	}
	return mem
}
