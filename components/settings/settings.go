// components/settings/settings.go
//
// Built-in admin settings, defined in code with the fluent builder.
//
// One form per storage strategy:
//
//   • general        – settings group "adept_general" (one blob per group).
//   • integrations   – individual options prefixed "adept_".
//   • notifications  – custom adapter over the notification_pref table.
//   • post_seo       – entity meta, built per request for /admin/posts/{post}/seo.
//
// The first three are registered at Init and served by the forms component;
// post_seo needs the entity id from the URL, so this component serves it.
//
//------------------------------------------------------------------------------

package settings

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/adept-forms/components/forms"
	"github.com/yanizio/adept-forms/internal/component"
	"github.com/yanizio/adept-forms/internal/crypt"
	"github.com/yanizio/adept-forms/internal/form"
	"github.com/yanizio/adept-forms/internal/logger"
)

// Compile-time assertions.
var (
	_ component.Component   = (*Component)(nil)
	_ component.Initializer = (*Component)(nil)
)

// Component registers the built-in settings forms.
type Component struct {
	deps  component.Deps
	prefs *prefStore
}

func (c *Component) Name() string { return "settings" }

// Migrations creates the table behind the notifications form.
func (c *Component) Migrations() []string {
	return []string{`CREATE TABLE IF NOT EXISTS notification_pref (
  name  VARCHAR(191) NOT NULL PRIMARY KEY,
  value TEXT         NOT NULL
)`}
}

// Init builds, binds, and registers the code-defined forms.
func (c *Component) Init(d component.Deps) error {
	c.deps = d
	c.prefs = &prefStore{db: d.DB, mem: map[string]string{}}

	var errs []error
	for _, b := range []*form.Builder{
		General(d.Kinds),
		Integrations(d.Kinds),
		Notifications(d.Kinds, c.prefs.load, c.prefs.save),
	} {
		f, err := b.Build()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.Stores.Bind(f); err != nil {
			errs = append(errs, err)
			continue
		}
		form.Register(f)
	}
	return errors.Join(errs...)
}

// Routes serves the per-entity SEO form.
func (c *Component) Routes(r chi.Router) {
	r.Get("/admin/posts/{post}/seo", c.postSEO)
	r.Post("/admin/posts/{post}/seo", c.postSEO)
}

func init() { component.Register(&Component{}) }

/*──────────────────────────── Definitions ──────────────────────────────────*/

// General is the site-wide settings group.
func General(kinds *form.Registry) *form.Builder {
	return form.NewBuilder("general").
		Kinds(kinds).
		Title("General Settings").
		Settings("adept_general").
		Text("site_name").Label("Site title").Required().Rule("max_length", 80).
		Text("tagline").Description("In a few words, explain what this site is about.").
		Email("admin_email").Label("Administration email address").Required().
		Number("posts_per_page").Default(10).Rule("min", 1).Rule("max", 100).
		Switch("maintenance").Label("Maintenance mode").
		Textarea("maintenance_message").
		ShowWhen("maintenance", form.OpIsChecked, nil).Required().
		End()
}

// Integrations holds outbound webhook and API credentials.
func Integrations(kinds *form.Registry) *form.Builder {
	return form.NewBuilder("integrations").
		Kinds(kinds).
		Title("Integrations").
		Options("adept_", "").
		Messages("Integrations saved.", "Integrations could not be saved.").
		Switch("webhook_enabled").Label("Send submissions to a webhook").
		URL("webhook_url").Label("Webhook URL").
		RequiredWhen("webhook_enabled", form.OpIsChecked, nil).
		Encrypted("api_key").Label("API key").Security(crypt.AdminOnly).
		Select("environment", form.Opt("sandbox", "Sandbox"), form.Opt("live", "Live")).Default("sandbox").
		Text("live_account").Label("Live account id").
		ShowWhen("environment", form.OpEquals, "live").
		Rule("pattern", `^[A-Z0-9-]{4,32}$`).
		Repeater("post_types", "checkbox",
			form.Opt("post", "Posts"),
			form.Opt("page", "Pages"),
			form.Opt("product", "Products"),
		).Label("Sync post types").
		End().
		AddAction("log", nil)
}

// Notifications stores per-site alert preferences through a custom adapter.
func Notifications(kinds *form.Registry, load func(context.Context, []string) (map[string]any, error), save func(context.Context, map[string]any) error) *form.Builder {
	return form.NewBuilder("notifications").
		Kinds(kinds).
		Title("Notifications").
		Layout(form.LayoutDiv).
		Custom(load, save).
		Switch("notify_on_submit").Label("Email me on every submission").
		Radio("digest", form.Opt("off", "Off"), form.Opt("daily", "Daily"), form.Opt("weekly", "Weekly")).
		Default("off").
		HideWhen("notify_on_submit", form.OpIsChecked, nil).
		Email("notify_address").Label("Send alerts to").
		Validate(func(v any) error {
			s, _ := v.(string)
			if strings.HasSuffix(strings.ToLower(s), "@example.invalid") {
				return errors.New("must be a deliverable address")
			}
			return nil
		}).
		End()
}

// PostSEO is the per-entity meta form for post.
func PostSEO(kinds *form.Registry, post int64) *form.Builder {
	return form.NewBuilder("post_seo").
		Kinds(kinds).
		Title("Search appearance").
		Action("/admin/posts/" + strconv.FormatInt(post, 10) + "/seo").
		Capability("edit_posts").
		PostMeta(post).
		Text("seo_title").Label("SEO title").Rule("max_length", 70).
		Textarea("seo_description").Label("Meta description").Rule("max_length", 160).
		Checkbox("noindex").Label("Hide from search engines").
		URL("canonical").Label("Canonical URL").HideWhen("noindex", form.OpIsChecked, nil).
		End()
}

/*──────────────────────────── Handlers ─────────────────────────────────────*/

func (c *Component) postSEO(w http.ResponseWriter, r *http.Request) {
	post, err := strconv.ParseInt(chi.URLParam(r, "post"), 10, 64)
	if err != nil || post <= 0 {
		http.NotFound(w, r)
		return
	}
	f, err := PostSEO(c.deps.Kinds, post).Build()
	if err == nil {
		err = c.deps.Stores.Bind(f)
	}
	if err != nil {
		logger.FromContext(r.Context()).Errorw("build post_seo form", "post", post, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if r.Method == http.MethodPost {
		forms.Submit(w, r, c.deps, f)
		return
	}
	forms.Show(w, r, c.deps, f)
}
