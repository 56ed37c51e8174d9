package form

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yanizio/adept-forms/internal/crypt"
	"github.com/yanizio/adept-forms/internal/storage"
)

type fixture struct {
	form    *Form
	mem     *storage.Memory
	tokens  *Tokens
	cipher  *crypt.Cipher
	handler *Handler
}

func newFixture(t *testing.T, b *Builder) *fixture {
	t.Helper()
	form, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	mem := newMemoryBound(t, form)
	c, err := crypt.New(testKey)
	if err != nil {
		t.Fatal(err)
	}
	tokens := NewTokens(testKey, time.Hour)
	return &fixture{
		form:   form,
		mem:    mem,
		tokens: tokens,
		cipher: c,
		handler: &Handler{
			Form:     form,
			Security: &Security{Tokens: tokens},
			Cipher:   c,
		},
	}
}

func (fx *fixture) submit(t *testing.T, vals url.Values) *Result {
	t.Helper()
	r, ctx := post(signed(t, fx.form, fx.tokens, vals))
	return fx.handler.Process(ctx, r)
}

func (fx *fixture) stored(t *testing.T, names ...string) map[string]any {
	t.Helper()
	got, err := fx.mem.GetOptions(context.Background(), names)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestProcessNotSubmitted(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").Text("name").End())
	r := httptest.NewRequest(http.MethodGet, "/admin/forms/general", nil)
	res := fx.handler.Process(context.Background(), r)
	if res.IsSubmitted || res.State != StateNotSubmitted {
		t.Fatalf("got %+v", res)
	}
}

func TestProcessSuccess(t *testing.T) {
	var gotSuccess map[string]any
	fx := newFixture(t, NewBuilder("general").
		Hooks(Hooks{OnSuccess: func(_ context.Context, d map[string]any) { gotSuccess = d }}).
		Text("site_name").Required().End().
		Email("contact").End().
		Number("posts_per_page").End())

	res := fx.submit(t, url.Values{
		fv(fx.form, "site_name"):      {"  Acme <b>Travel</b> "},
		fv(fx.form, "contact"):        {"ops@example.com"},
		fv(fx.form, "posts_per_page"): {"12"},
	})
	if res.State != StateSuccess || !res.IsValid {
		t.Fatalf("state %s, errors %v, err %v", res.State, res.Errors, res.Err)
	}
	want := map[string]any{"site_name": "Acme Travel", "contact": "ops@example.com", "posts_per_page": 12.0}
	if diff := cmp.Diff(want, fx.stored(t, "site_name", "contact", "posts_per_page")); diff != "" {
		t.Errorf("stored (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, gotSuccess); diff != "" {
		t.Errorf("OnSuccess data (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Notice{{Type: NoticeSuccess, Message: "Settings saved."}}, res.Notices); diff != "" {
		t.Errorf("notices (-want +got):\n%s", diff)
	}
}

func TestProcessRequiredFieldEmpty(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").Text("name").Required().End())

	res := fx.submit(t, url.Values{fv(fx.form, "name"): {""}})

	if res.IsValid || res.State != StateFailedValidation {
		t.Fatalf("state %s", res.State)
	}
	if diff := cmp.Diff(map[string]string{"name": "Name is required."}, res.Errors); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
	if got := fx.stored(t, "name"); len(got) != 0 {
		t.Errorf("persisted despite failure: %v", got)
	}
	if !errors.Is(res.Err, ErrInvalid) {
		t.Errorf("Err = %v", res.Err)
	}
}

func TestProcessOmittedSwitchStoresFalse(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").Text("name").End().Switch("enabled").End())
	_ = fx.mem.SetOption(context.Background(), "enabled", true)

	res := fx.submit(t, url.Values{fv(fx.form, "name"): {"x"}})
	if res.State != StateSuccess {
		t.Fatalf("state %s: %v", res.State, res.Errors)
	}
	if got := fx.stored(t, "enabled")["enabled"]; got != false {
		t.Fatalf("enabled = %v, want false", got)
	}
}

func TestProcessEncryptedField(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").Encrypted("api_key").Required().End())
	prior, err := fx.cipher.Encrypt("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	_ = fx.mem.SetOption(context.Background(), "api_key", prior)

	for _, submitted := range []string{"", crypt.MaskText} {
		res := fx.submit(t, url.Values{fv(fx.form, "api_key"): {submitted}})
		if res.State != StateSuccess {
			t.Fatalf("submit %q: state %s %v", submitted, res.State, res.Errors)
		}
		if got := fx.stored(t, "api_key")["api_key"]; got != prior {
			t.Fatalf("submit %q replaced the secret with %v", submitted, got)
		}
	}

	res := fx.submit(t, url.Values{fv(fx.form, "api_key"): {"rotated"}})
	if res.State != StateSuccess {
		t.Fatalf("state %s", res.State)
	}
	tok, _ := fx.stored(t, "api_key")["api_key"].(string)
	if !crypt.IsEncrypted(tok) || tok == prior {
		t.Fatalf("stored %q, want fresh ciphertext", tok)
	}
	if plain, err := fx.cipher.Decrypt(tok); err != nil || plain != "rotated" {
		t.Fatalf("decrypt = %q, %v", plain, err)
	}
}

func TestProcessEncryptedTooLong(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").Encrypted("api_key").End())
	long := make([]byte, MaxEncryptedBytes+1)
	for i := range long {
		long[i] = 'k'
	}
	res := fx.submit(t, url.Values{fv(fx.form, "api_key"): {string(long)}})
	if res.State != StateFailedValidation || res.Errors["api_key"] != "Api key is too long." {
		t.Fatalf("state %s, errors %v", res.State, res.Errors)
	}
}

func TestProcessDropsHiddenFieldValues(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").
		Switch("advanced").End().
		Text("endpoint").ShowWhen("advanced", OpIsChecked, nil).End())
	_ = fx.mem.SetOption(context.Background(), "endpoint", "https://kept.example.com")

	res := fx.submit(t, url.Values{fv(fx.form, "endpoint"): {"tampered"}})
	if res.State != StateSuccess {
		t.Fatalf("state %s", res.State)
	}
	if _, ok := res.Data["endpoint"]; ok {
		t.Fatalf("hidden value reached the adapter: %v", res.Data)
	}
	if got := fx.stored(t, "endpoint")["endpoint"]; got != "https://kept.example.com" {
		t.Fatalf("stored endpoint = %v", got)
	}
}

func TestProcessRepeaterRoundTrip(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").
		Repeater("post_types", "checkbox", Opt("post", "Posts"), Opt("page", "Pages")).End())
	// "attachment" is no longer a choice and must be dropped on save.
	_ = fx.mem.SetOption(context.Background(), "post_types", []string{"post", "attachment"})

	res := fx.submit(t, url.Values{fv(fx.form, "post_types___post"): {"1"}})
	if res.State != StateSuccess {
		t.Fatalf("state %s: %v", res.State, res.Errors)
	}
	if diff := cmp.Diff([]string{"post"}, fx.stored(t, "post_types")["post_types"]); diff != "" {
		t.Errorf("stored (-want +got):\n%s", diff)
	}

	res = fx.submit(t, url.Values{})
	if res.State != StateSuccess {
		t.Fatalf("state %s", res.State)
	}
	if diff := cmp.Diff([]string{}, fx.stored(t, "post_types")["post_types"]); diff != "" {
		t.Errorf("empty submit (-want +got):\n%s", diff)
	}
}

func TestProcessUnusedFieldsWarning(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").Text("a").End().Text("b").End())

	res := fx.submit(t, url.Values{
		fv(fx.form, "a"):         {"alpha"},
		fv(fx.form, renderedKey): {"a"},
	})
	if res.State != StateSuccess {
		t.Fatalf("state %s", res.State)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Code != "unused_fields" {
		t.Fatalf("warnings %+v", res.Warnings)
	}
	if diff := cmp.Diff([]string{"b"}, res.Warnings[0].Fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
	if got := fx.stored(t, "a")["a"]; got != "alpha" {
		t.Fatalf("a = %v", got)
	}
}

func TestProcessUnrenderedFieldsKeepStoredValues(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").
		Text("a").End().
		Switch("b").End().
		Repeater("c", "checkbox", Opt("x", "X"), Opt("y", "Y")).End())
	ctx := context.Background()
	_ = fx.mem.SetOption(ctx, "b", true)
	_ = fx.mem.SetOption(ctx, "c", []string{"y"})

	res := fx.submit(t, url.Values{
		fv(fx.form, "a"):         {"alpha"},
		fv(fx.form, renderedKey): {"a"},
	})
	if res.State != StateSuccess {
		t.Fatalf("state %s: %v", res.State, res.Errors)
	}
	if diff := cmp.Diff([]string{"b", "c"}, res.Warnings[0].Fields); diff != "" {
		t.Errorf("unused fields (-want +got):\n%s", diff)
	}
	want := map[string]any{"a": "alpha", "b": true, "c": []string{"y"}}
	if diff := cmp.Diff(want, fx.stored(t, "a", "b", "c")); diff != "" {
		t.Errorf("stored (-want +got):\n%s", diff)
	}
	if _, ok := res.Data["b"]; ok {
		t.Errorf("unrendered switch reached the adapter: %v", res.Data)
	}
}

func TestProcessUnrenderedRequiredFieldDoesNotBlock(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").Text("a").End().Text("b").Required().End())

	res := fx.submit(t, url.Values{
		fv(fx.form, "a"):         {"alpha"},
		fv(fx.form, renderedKey): {"a"},
	})
	if res.State != StateSuccess || len(res.Errors) != 0 {
		t.Fatalf("state %s, errors %v", res.State, res.Errors)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Code != "unused_fields" {
		t.Fatalf("warnings %+v", res.Warnings)
	}
	if got := fx.stored(t, "a")["a"]; got != "alpha" {
		t.Fatalf("a = %v", got)
	}

	// Without a rendered list every configured field is checked.
	res = fx.submit(t, url.Values{fv(fx.form, "a"): {"alpha"}})
	if res.State != StateFailedValidation || res.Errors["b"] != "B is required." {
		t.Fatalf("state %s, errors %v", res.State, res.Errors)
	}
}

func TestProcessSecurityFailure(t *testing.T) {
	var onErr error
	fx := newFixture(t, NewBuilder("general").
		Hooks(Hooks{OnError: func(_ context.Context, _ map[string]any, err error) { onErr = err }}).
		Text("name").End())

	vals := signed(t, fx.form, fx.tokens, url.Values{fv(fx.form, "name"): {"x"}})
	vals.Set(fx.form.ID+NonceSuffix, "forged")
	r, ctx := post(vals)
	res := fx.handler.Process(ctx, r)

	if res.State != StateFailedSecurity || !IsSecurityError(res.Err) || !IsSecurityError(onErr) {
		t.Fatalf("state %s, err %v, hook %v", res.State, res.Err, onErr)
	}
	if len(res.Notices) != 1 || res.Notices[0].Type != NoticeError {
		t.Fatalf("notices %+v", res.Notices)
	}
	if got := fx.stored(t, "name"); len(got) != 0 {
		t.Fatalf("persisted %v", got)
	}
}

func TestProcessHookError(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").
		Hooks(Hooks{BeforeValidate: func(context.Context, map[string]any) (map[string]any, error) {
			return nil, errors.New("license expired")
		}}).
		Text("name").End())

	res := fx.submit(t, url.Values{fv(fx.form, "name"): {"x"}})
	if res.State != StateFailedProcessing {
		t.Fatalf("state %s", res.State)
	}
	if diff := cmp.Diff([]Notice{{Type: NoticeError, Message: "license expired"}}, res.Notices); diff != "" {
		t.Errorf("notices (-want +got):\n%s", diff)
	}
}

func TestProcessRecoversPanic(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").
		Hooks(Hooks{BeforeSave: func(context.Context, map[string]any) (map[string]any, error) {
			panic("boom")
		}}).
		Text("name").End())

	res := fx.submit(t, url.Values{fv(fx.form, "name"): {"x"}})
	var pe *ProcessingError
	if res.State != StateFailedProcessing || !errors.As(res.Err, &pe) {
		t.Fatalf("state %s, err %v", res.State, res.Err)
	}
	if res.Notices[len(res.Notices)-1].Message != "boom" {
		t.Fatalf("notices %+v", res.Notices)
	}
}

func TestProcessBeforeSaveMutates(t *testing.T) {
	fx := newFixture(t, NewBuilder("general").
		Hooks(Hooks{BeforeSave: func(_ context.Context, d map[string]any) (map[string]any, error) {
			d["name"] = "override"
			return d, nil
		}}).
		Text("name").End())

	if res := fx.submit(t, url.Values{fv(fx.form, "name"): {"x"}}); res.State != StateSuccess {
		t.Fatalf("state %s", res.State)
	}
	if got := fx.stored(t, "name")["name"]; got != "override" {
		t.Fatalf("name = %v", got)
	}
}

func TestProcessSaveFailure(t *testing.T) {
	var afterSave *bool
	b := NewBuilder("general").
		Custom(nil, func(context.Context, map[string]any) error { return errors.New("disk full") }).
		Hooks(Hooks{AfterSave: func(_ context.Context, _ map[string]any, ok bool) { afterSave = &ok }}).
		Text("name").End()
	fx := newFixture(t, b)

	res := fx.submit(t, url.Values{fv(fx.form, "name"): {"x"}})
	var pe *PersistenceError
	if res.State != StateFailedSave || !errors.As(res.Err, &pe) {
		t.Fatalf("state %s, err %v", res.State, res.Err)
	}
	if afterSave == nil || *afterSave {
		t.Fatal("AfterSave not told about the failure")
	}
	if got := res.Notices[len(res.Notices)-1].Message; got != fx.form.ErrorMessage {
		t.Fatalf("notice %q", got)
	}
}

func TestStateString(t *testing.T) {
	if StateFailedSave.String() != "failed_save" || State(99).String() != "state(99)" {
		t.Fatal("unexpected state names")
	}
	if StateValid.Terminal() || !StateSuccess.Terminal() {
		t.Fatal("Terminal wrong")
	}
}
