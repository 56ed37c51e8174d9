// components/forms/forms.go
//
// Admin form pages.
//
// Every form in the definition registry (YAML roots plus code-built forms
// registered by other components) is served at /admin/forms/{id}:
//
//   • GET  renders the form prefilled with stored values.
//   • POST runs the submission pipeline and re-renders with notices, field
//     errors, and the values the user just sent.
//
// GET /admin/forms lists the registered forms.  Capability checks use the
// per-form capability; POST repeats the check inside the pipeline.
//
//------------------------------------------------------------------------------

package forms

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/adept-forms/internal/auth"
	"github.com/yanizio/adept-forms/internal/component"
	"github.com/yanizio/adept-forms/internal/form"
	"github.com/yanizio/adept-forms/internal/logger"
)

// Compile-time assertions.
var (
	_ component.Component   = (*Component)(nil)
	_ component.Initializer = (*Component)(nil)
)

// Component serves every registered form.
type Component struct {
	deps component.Deps
}

func (c *Component) Name() string         { return "forms" }
func (c *Component) Migrations() []string { return nil }

// Init keeps the shared resources for the handlers.
func (c *Component) Init(d component.Deps) error {
	c.deps = d
	return nil
}

// Routes adds the index and per-form pages.
func (c *Component) Routes(r chi.Router) {
	r.Get("/admin/forms", c.index)
	r.Get("/admin/forms/{id}", c.show)
	r.Post("/admin/forms/{id}", c.submit)
}

func init() { component.Register(&Component{}) }

/*──────────────────────────── Handlers ─────────────────────────────────────*/

var pageTpl = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body class="adept-admin">
<div class="wrap">
<h1>{{.Title}}</h1>
{{if .Forms}}<ul class="adept-form-index">{{range .Forms}}
  <li><a href="/admin/forms/{{.ID}}">{{.Title}}</a></li>{{end}}
</ul>{{end}}
{{.Body}}
</div>
</body>
</html>`))

type page struct {
	Title string
	Forms []*form.Form
	Body  template.HTML
}

func (c *Component) index(w http.ResponseWriter, r *http.Request) {
	var list []*form.Form
	for _, id := range form.FormIDs() {
		f, ok := form.GetForm(id)
		if !ok || !can(r, c.deps, f.Capability) {
			continue
		}
		list = append(list, f)
	}
	write(w, r, http.StatusOK, page{Title: "Forms", Forms: list})
}

func (c *Component) lookup(w http.ResponseWriter, r *http.Request) (*form.Form, bool) {
	f, ok := form.GetForm(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return nil, false
	}
	return f, true
}

func (c *Component) show(w http.ResponseWriter, r *http.Request) {
	if f, ok := c.lookup(w, r); ok {
		Show(w, r, c.deps, f)
	}
}

func (c *Component) submit(w http.ResponseWriter, r *http.Request) {
	if f, ok := c.lookup(w, r); ok {
		Submit(w, r, c.deps, f)
	}
}

// Show writes the page for f prefilled with its stored values.  Other
// components call it for forms they build per request.
func Show(w http.ResponseWriter, r *http.Request, d component.Deps, f *form.Form) {
	if !can(r, d, f.Capability) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	stored, err := d.Handler(f).Stored(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Errorw("load form values", "form", f.ID, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	render(w, r, d, http.StatusOK, f, stored, nil, nil)
}

// Submit runs the pipeline for f and re-renders the page with the outcome.
func Submit(w http.ResponseWriter, r *http.Request, d component.Deps, f *form.Form) {
	h := d.Handler(f)
	res := h.Process(r.Context(), r)
	if !res.IsSubmitted {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if res.State == form.StateFailedSecurity {
		// No values are echoed back to a request we could not trust.
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	values, err := h.Stored(r.Context())
	if err != nil {
		values = map[string]any{}
	}
	if res.State != form.StateSuccess {
		for k, v := range res.Submitted {
			values[k] = v
		}
	}
	status := http.StatusOK
	if res.State == form.StateFailedValidation {
		status = http.StatusUnprocessableEntity
	}
	render(w, r, d, status, f, values, res.Errors, res.Notices)
}

/*──────────────────────────── Helpers ──────────────────────────────────────*/

func render(w http.ResponseWriter, r *http.Request, d component.Deps, status int, f *form.Form, values map[string]any, errs map[string]string, notices []form.Notice) {
	uid, _ := auth.UserID(r.Context())
	body, err := form.Render(f, form.RenderOptions{
		Values:  values,
		Errors:  errs,
		Notices: notices,
		Tokens:  d.Tokens,
		UserID:  uid,
		Kinds:   d.Kinds,
	})
	if err != nil {
		logger.FromContext(r.Context()).Errorw("render form", "form", f.ID, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	title := f.Title
	if title == "" {
		title = f.ID
	}
	write(w, r, status, page{Title: title, Body: body})
}

func write(w http.ResponseWriter, r *http.Request, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTpl.Execute(w, p); err != nil {
		logger.FromContext(r.Context()).Errorw("write page", "err", err)
	}
}

// can reports whether the acting user holds capability.  Without a checker
// every request is allowed, which only the development server does.
func can(r *http.Request, d component.Deps, capability string) bool {
	if d.Security == nil || d.Security.Caps == nil {
		return true
	}
	ok, err := d.Security.Caps.Can(r.Context(), capability)
	if err != nil {
		logger.FromContext(r.Context()).Warnw("capability lookup failed", "capability", capability, "err", err)
		return false
	}
	return ok
}
