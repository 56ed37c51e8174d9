// internal/form/renderer.go
//
// Adept – Forms subsystem: HTML renderer.
//
// Context
//   Converts a Form plus its current values into admin markup.  Output follows
//   the admin screen conventions: a `form-table` (or plain div) layout, one
//   row per field, `notice notice-{type}` boxes above the form, and a
//   `button-primary` submit.
//
// Workflow
//   •  Values are the stored values (or the rejected submission, when
//      re-rendering after a failure).  Missing values fall back to the
//      field default.
//   •  The conditional engine decides the initial state of every row.  Rows
//      with a Conditional carry it as JSON in `data-conditional` so a
//      script can re-evaluate on change; hidden rows start with
//      `display:none`.
//   •  Every input is named `{formId}[{fieldId}]`.  Repeaters emit one
//      control per current option named `{formId}[{fieldId}___{option}]`.
//      Options no longer configured are never rendered.
//   •  Encrypted fields never echo their secret.  An existing value renders
//      as the mask text unless Reveal is set and the viewer passes the
//      field's security context.
//   •  Hidden inputs: `form_id`, `timestamp`, `{formId}_wpnonce`, and
//      `{formId}[_rendered]` listing every emitted field id.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/yanizio/adept-forms/internal/crypt"
)

// Layouts.
const (
	LayoutTable = "table"
	LayoutDiv   = "div"
)

// RenderOptions carries per-request render state.
type RenderOptions struct {
	Values  map[string]any
	Errors  map[string]string
	Notices []Notice

	// Tokens mints the CSRF nonce for UserID.  Required.
	Tokens *Tokens
	UserID int64

	// Cipher and Viewer are consulted only when Reveal is set.
	Cipher *crypt.Cipher
	Viewer crypt.Viewer
	Reveal bool

	Kinds *Registry
	Now   func() time.Time
}

// Render returns the markup for form.
func Render(form *Form, opts RenderOptions) (template.HTML, error) {
	if opts.Tokens == nil {
		return "", errors.New("render: no token service")
	}
	if opts.Kinds == nil {
		opts.Kinds = DefaultKinds()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	nonce, err := opts.Tokens.Generate(form.ID, opts.UserID)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", form.ID, err)
	}

	values := withDefaults(form, opts.Values)
	cond := NewConditions(form.Fields).WithFormData(values)

	r := &renderer{form: form, opts: opts, values: values, cond: cond}
	var buf bytes.Buffer

	writeNotices(&buf, opts.Notices)

	buf.WriteString(`<form id="adept-form-` + esc(form.ID) + `" class="adept-form" method="` + esc(strings.ToLower(form.Method)) + `"`)
	if form.Action != "" {
		buf.WriteString(` action="` + esc(form.Action) + `"`)
	}
	if r.hasUpload() {
		buf.WriteString(` enctype="multipart/form-data"`)
	}
	buf.WriteString(">\n")

	hidden(&buf, FieldFormID, form.ID)
	hidden(&buf, FieldTimestamp, strconv.FormatInt(now().Unix(), 10))
	hidden(&buf, form.ID+NonceSuffix, nonce)

	var rendered []string
	if form.Layout == LayoutDiv {
		buf.WriteString(`<div class="adept-fields">` + "\n")
	} else {
		buf.WriteString(`<table class="form-table" role="presentation"><tbody>` + "\n")
	}
	for _, f := range form.Fields {
		ok, err := r.field(&buf, f)
		if err != nil {
			return "", err
		}
		if ok {
			rendered = append(rendered, f.ID)
		}
	}
	if form.Layout == LayoutDiv {
		buf.WriteString("</div>\n")
	} else {
		buf.WriteString("</tbody></table>\n")
	}

	hidden(&buf, namespaced(form.ID, renderedKey), strings.Join(rendered, ","))
	buf.WriteString(`<p class="submit"><input type="submit" name="submit" class="button button-primary" value="` + esc(form.SubmitLabel) + `"></p>` + "\n")
	buf.WriteString("</form>\n")
	return template.HTML(buf.String()), nil
}

type renderer struct {
	form   *Form
	opts   RenderOptions
	values map[string]any
	cond   *Conditions
}

func esc(s string) string { return html.EscapeString(s) }

func hidden(buf *bytes.Buffer, name, value string) {
	buf.WriteString(`<input type="hidden" name="` + esc(name) + `" value="` + esc(value) + `">` + "\n")
}

func writeNotices(buf *bytes.Buffer, notices []Notice) {
	for _, n := range notices {
		buf.WriteString(`<div class="notice notice-` + esc(string(n.Type)) + ` is-dismissible"><p>` + esc(n.Message) + `</p></div>` + "\n")
	}
}

// withDefaults overlays values onto field defaults.
func withDefaults(form *Form, values map[string]any) map[string]any {
	out := make(map[string]any, len(form.Fields))
	for _, f := range form.Fields {
		if f.Default != nil {
			out[f.ID] = f.Default
		}
	}
	for k, v := range values {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func (r *renderer) hasUpload() bool {
	return lo.ContainsBy(r.form.Fields, func(f *Field) bool {
		k, ok := r.opts.Kinds.Lookup(f.Type)
		return ok && k.Upload
	})
}

func (r *renderer) inputID(f *Field, suffix string) string {
	id := r.form.ID + "-" + f.ID
	if suffix != "" {
		id += "-" + suffix
	}
	return id
}

// field writes one row.  It reports false for unknown types, which are
// skipped so the unused_fields check can flag them.
func (r *renderer) field(buf *bytes.Buffer, f *Field) (bool, error) {
	k, ok := r.opts.Kinds.Lookup(f.Type)
	if !ok {
		return false, nil
	}

	if f.Type == "hidden" {
		hidden(buf, namespaced(r.form.ID, f.ID), toString(r.values[f.ID]))
		return true, nil
	}

	var control bytes.Buffer
	if err := r.control(&control, f, k); err != nil {
		return false, err
	}

	attrs := ` id="row-` + esc(r.inputID(f, "")) + `" class="adept-field adept-field-` + esc(f.Type)
	if _, bad := r.opts.Errors[f.ID]; bad {
		attrs += ` has-error`
	}
	attrs += `"`
	if f.Conditional != nil {
		raw, err := json.Marshal(f.Conditional)
		if err != nil {
			return false, fmt.Errorf("render %s: conditional for %s: %w", r.form.ID, f.ID, err)
		}
		attrs += ` data-conditional="` + esc(string(raw)) + `"`
		if !r.cond.ShouldShowField(f.ID) {
			attrs += ` style="display:none"`
		}
	}

	label := esc(labelOf(f))
	if f.Required {
		label += ` <span class="required">*</span>`
	}
	labelFor := r.inputID(f, "")
	if f.Repeat || f.Type == "radio" {
		labelFor = ""
	}

	if r.form.Layout == LayoutDiv {
		buf.WriteString(`<div` + attrs + ">\n")
		writeLabel(buf, labelFor, label)
		buf.Write(control.Bytes())
		r.trailer(buf, f)
		buf.WriteString("</div>\n")
		return true, nil
	}
	buf.WriteString(`<tr` + attrs + ">\n<th scope=\"row\">")
	writeLabel(buf, labelFor, label)
	buf.WriteString("</th>\n<td>\n")
	buf.Write(control.Bytes())
	r.trailer(buf, f)
	buf.WriteString("</td>\n</tr>\n")
	return true, nil
}

func writeLabel(buf *bytes.Buffer, forID, label string) {
	if forID == "" {
		buf.WriteString(`<span class="adept-label">` + label + `</span>`)
		return
	}
	buf.WriteString(`<label for="` + esc(forID) + `">` + label + `</label>`)
}

// trailer writes the description and any error for f.
func (r *renderer) trailer(buf *bytes.Buffer, f *Field) {
	if f.Description != "" {
		buf.WriteString(`<p class="description">` + esc(f.Description) + "</p>\n")
	}
	if msg, ok := r.opts.Errors[f.ID]; ok {
		buf.WriteString(`<p class="adept-field-error" role="alert">` + esc(msg) + "</p>\n")
	}
}

func (r *renderer) control(buf *bytes.Buffer, f *Field, k *Kind) error {
	name := namespaced(r.form.ID, f.ID)
	id := r.inputID(f, "")
	val := r.values[f.ID]
	req := ""
	if f.Required && f.Conditional == nil && !f.Repeat {
		req = ` required aria-required="true"`
	}

	switch {
	case f.Repeat:
		r.repeater(buf, f, k)

	case k.Checkable:
		checked := ""
		if isChecked(val) {
			checked = " checked"
		}
		buf.WriteString(`<input type="checkbox" id="` + esc(id) + `" name="` + esc(name) + `" value="1"` + checked)
		if f.Type == "switch" {
			buf.WriteString(` class="adept-switch" role="switch"`)
		}
		buf.WriteString(">\n")

	case k.Encrypt:
		r.encrypted(buf, f, id, name, val)

	case k.Upload:
		buf.WriteString(`<input type="file" id="` + esc(id) + `" name="` + esc(name) + `"`)
		if len(f.Accept) > 0 {
			buf.WriteString(` accept="` + esc(strings.Join(f.Accept, ",")) + `"`)
		}
		buf.WriteString(">\n")
		if s := toString(val); s != "" {
			buf.WriteString(`<p class="adept-file-current"><a href="` + esc(s) + `" target="_blank" rel="noopener">` + esc(s) + "</a></p>\n")
		}

	case f.Type == "select":
		buf.WriteString(`<select id="` + esc(id) + `" name="` + esc(name) + `"` + req + ">\n")
		cur := toString(val)
		for _, o := range f.Options {
			sel := ""
			if o.Value == cur {
				sel = " selected"
			}
			buf.WriteString(`<option value="` + esc(o.Value) + `"` + sel + `>` + esc(o.Label) + "</option>\n")
		}
		buf.WriteString("</select>\n")

	case f.Type == "radio":
		buf.WriteString(`<fieldset><legend class="screen-reader-text">` + esc(labelOf(f)) + "</legend>\n")
		cur := toString(val)
		for i, o := range f.Options {
			oid := r.inputID(f, strconv.Itoa(i))
			checked := ""
			if o.Value == cur {
				checked = " checked"
			}
			buf.WriteString(`<label for="` + esc(oid) + `"><input type="radio" id="` + esc(oid) + `" name="` + esc(name) + `" value="` + esc(o.Value) + `"` + checked + req + `> ` + esc(o.Label) + "</label><br>\n")
		}
		buf.WriteString("</fieldset>\n")

	case f.Type == "textarea" || f.Type == "wysiwyg":
		class := "large-text"
		if f.Type == "wysiwyg" {
			class += " adept-wysiwyg"
		}
		buf.WriteString(`<textarea id="` + esc(id) + `" name="` + esc(name) + `" class="` + class + `" rows="5"` + placeholder(f) + req + `>` + esc(toString(val)) + "</textarea>\n")

	default:
		typ := f.Type
		switch typ {
		case "text", "email", "url", "password", "number", "color", "date":
		default:
			typ = "text"
		}
		buf.WriteString(`<input type="` + typ + `" id="` + esc(id) + `" name="` + esc(name) + `" class="regular-text"` + placeholder(f) + req)
		if s := toString(val); s != "" && typ != "password" {
			buf.WriteString(` value="` + esc(s) + `"`)
		}
		buf.WriteString(">\n")
	}
	return nil
}

func placeholder(f *Field) string {
	if f.Placeholder == "" {
		return ""
	}
	return ` placeholder="` + esc(f.Placeholder) + `"`
}

// repeater writes one control per current option.  Checkable kinds render a
// checkbox with value "1"; other kinds render a text box holding the option
// value when it is selected.
func (r *renderer) repeater(buf *bytes.Buffer, f *Field, k *Kind) {
	selected := toStrings(r.values[f.ID])
	buf.WriteString(`<fieldset class="adept-repeater"><legend class="screen-reader-text">` + esc(labelOf(f)) + "</legend>\n")
	for _, o := range f.Options {
		name := namespaced(r.form.ID, f.ID+RepeatSep+o.Value)
		id := r.inputID(f, o.Value)
		on := lo.Contains(selected, o.Value)
		if k.Checkable {
			checked := ""
			if on {
				checked = " checked"
			}
			buf.WriteString(`<label for="` + esc(id) + `"><input type="checkbox" id="` + esc(id) + `" name="` + esc(name) + `" value="1"` + checked + `> ` + esc(o.Label) + "</label><br>\n")
			continue
		}
		v := ""
		if on {
			v = o.Value
		}
		buf.WriteString(`<label for="` + esc(id) + `">` + esc(o.Label) + `</label> <input type="text" id="` + esc(id) + `" name="` + esc(name) + `" value="` + esc(v) + `"><br>` + "\n")
	}
	buf.WriteString("</fieldset>\n")
}

func (r *renderer) encrypted(buf *bytes.Buffer, f *Field, id, name string, val any) {
	stored := toString(val)
	shown, typ := "", "password"
	if stored != "" {
		shown = maskText
		if r.opts.Reveal && r.opts.Cipher != nil {
			if plain, err := r.opts.Cipher.DecryptForContext(stored, f.Security, r.opts.Viewer); err == nil {
				shown, typ = plain, "text"
			}
		}
	}
	buf.WriteString(`<input type="` + typ + `" id="` + esc(id) + `" name="` + esc(name) + `" class="regular-text" autocomplete="off" data-encrypted="1"` + placeholder(f))
	if shown != "" {
		buf.WriteString(` value="` + esc(shown) + `"`)
	}
	buf.WriteString(">\n")
	if stored != "" {
		buf.WriteString(`<p class="description adept-encrypted-note">A value is stored.  Leave unchanged to keep it.</p>` + "\n")
	}
}
