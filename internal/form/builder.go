// internal/form/builder.go
//
// Adept – Forms subsystem: fluent builder.
//
// Context
//   Components declare admin forms in Go:
//
//       f, err := form.NewBuilder("general").
//           Title("General").
//           Settings("adept_general").
//           Text("site_name").Label("Site name").Required().End().
//           Switch("maintenance").End().
//           Textarea("maintenance_message").
//               ShowWhen("maintenance", form.OpIsChecked, nil).End().
//           Build()
//
//   Both *Builder and *FieldBuilder satisfy FieldConfigurator, so a field
//   chain may start the next field directly; End is the explicit way back
//   to form-level calls.  Errors are collected along the chain and reported
//   by Build, which also runs the same checks as YAML definitions.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"errors"
	"fmt"

	"github.com/yanizio/adept-forms/internal/crypt"
	"github.com/yanizio/adept-forms/internal/storage"
)

// FieldConfigurator starts new fields.
type FieldConfigurator interface {
	Field(id, typ string) *FieldBuilder
	Text(id string) *FieldBuilder
	Email(id string) *FieldBuilder
	URL(id string) *FieldBuilder
	Password(id string) *FieldBuilder
	Number(id string) *FieldBuilder
	Textarea(id string) *FieldBuilder
	Select(id string, opts ...Option) *FieldBuilder
	Radio(id string, opts ...Option) *FieldBuilder
	Checkbox(id string) *FieldBuilder
	Switch(id string) *FieldBuilder
	File(id string) *FieldBuilder
	Wysiwyg(id string) *FieldBuilder
	Encrypted(id string) *FieldBuilder
	Repeater(id, typ string, opts ...Option) *FieldBuilder
}

var (
	_ FieldConfigurator = (*Builder)(nil)
	_ FieldConfigurator = (*FieldBuilder)(nil)
)

// Opt is shorthand for an Option.
func Opt(value, label string) Option { return Option{Value: value, Label: label} }

// Builder assembles a Form.
type Builder struct {
	form  *Form
	kinds *Registry
	errs  []error
}

// NewBuilder starts a form with id.
func NewBuilder(id string) *Builder {
	return &Builder{form: &Form{ID: id}}
}

func (b *Builder) errorf(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}

// Kinds sets the type registry used by Build.  Default DefaultKinds().
func (b *Builder) Kinds(r *Registry) *Builder { b.kinds = r; return b }

func (b *Builder) Title(s string) *Builder       { b.form.Title = s; return b }
func (b *Builder) Method(s string) *Builder      { b.form.Method = s; return b }
func (b *Builder) Action(s string) *Builder      { b.form.Action = s; return b }
func (b *Builder) Layout(s string) *Builder      { b.form.Layout = s; return b }
func (b *Builder) Capability(s string) *Builder  { b.form.Capability = s; return b }
func (b *Builder) SubmitLabel(s string) *Builder { b.form.SubmitLabel = s; return b }

// Messages sets the success and error notices.
func (b *Builder) Messages(success, failure string) *Builder {
	b.form.SuccessMessage, b.form.ErrorMessage = success, failure
	return b
}

// Options stores each field as the option prefix+id+suffix.
func (b *Builder) Options(prefix, suffix string) *Builder {
	b.form.Storage = StorageConfig{Strategy: storage.StrategyOptions, Prefix: prefix, Suffix: suffix}
	return b
}

// PostMeta stores each field as meta on entityID.
func (b *Builder) PostMeta(entityID int64) *Builder {
	b.form.Storage = StorageConfig{Strategy: storage.StrategyPostMeta, EntityID: entityID}
	return b
}

// Settings stores the form as one blob under group.
func (b *Builder) Settings(group string) *Builder {
	b.form.Storage = StorageConfig{Strategy: storage.StrategySettings, Group: group}
	return b
}

// Custom stores through caller functions.
func (b *Builder) Custom(load func(context.Context, []string) (map[string]any, error), save func(context.Context, map[string]any) error) *Builder {
	b.form.Storage = StorageConfig{Strategy: storage.StrategyCustom}
	b.form.Adapter = &storage.Custom{LoadFunc: load, SaveFunc: save}
	return b
}

// Hooks sets the lifecycle callbacks.
func (b *Builder) Hooks(h Hooks) *Builder { b.form.Hooks = h; return b }

// AddAction appends a post-save action.
func (b *Builder) AddAction(typ string, params map[string]any) *Builder {
	b.form.Actions = append(b.form.Actions, ActionDef{Type: typ, Params: params})
	return b
}

// UpdateField applies fn to an existing field.  An unknown id is a Build
// error.
func (b *Builder) UpdateField(id string, fn func(*Field)) *Builder {
	f := b.form.Field(id)
	if f == nil {
		b.errorf("update: unknown field %q", id)
		return b
	}
	fn(f)
	return b
}

// Build validates and returns the form.
func (b *Builder) Build() (*Form, error) {
	if err := prepare(b.form, b.kinds); err != nil {
		b.errs = append(b.errs, err)
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("form %s: %w", b.form.ID, errors.Join(b.errs...))
	}
	return b.form, nil
}

// MustBuild is Build for package-level declarations.
func (b *Builder) MustBuild() *Form {
	f, err := b.Build()
	if err != nil {
		panic(err)
	}
	return f
}

func (b *Builder) Field(id, typ string) *FieldBuilder {
	f := &Field{ID: id, Type: typ}
	b.form.Fields = append(b.form.Fields, f)
	return &FieldBuilder{parent: b, field: f}
}

func (b *Builder) Text(id string) *FieldBuilder      { return b.Field(id, "text") }
func (b *Builder) Email(id string) *FieldBuilder     { return b.Field(id, "email") }
func (b *Builder) URL(id string) *FieldBuilder       { return b.Field(id, "url") }
func (b *Builder) Password(id string) *FieldBuilder  { return b.Field(id, "password") }
func (b *Builder) Number(id string) *FieldBuilder    { return b.Field(id, "number") }
func (b *Builder) Textarea(id string) *FieldBuilder  { return b.Field(id, "textarea") }
func (b *Builder) Checkbox(id string) *FieldBuilder  { return b.Field(id, "checkbox") }
func (b *Builder) Switch(id string) *FieldBuilder    { return b.Field(id, "switch") }
func (b *Builder) File(id string) *FieldBuilder      { return b.Field(id, "file") }
func (b *Builder) Wysiwyg(id string) *FieldBuilder   { return b.Field(id, "wysiwyg") }
func (b *Builder) Encrypted(id string) *FieldBuilder { return b.Field(id, "encrypted") }

func (b *Builder) Select(id string, opts ...Option) *FieldBuilder {
	return b.Field(id, "select").Options(opts...)
}

func (b *Builder) Radio(id string, opts ...Option) *FieldBuilder {
	return b.Field(id, "radio").Options(opts...)
}

// Repeater adds a field of typ rendered once per option.
func (b *Builder) Repeater(id, typ string, opts ...Option) *FieldBuilder {
	fb := b.Field(id, typ).Options(opts...)
	fb.field.Repeat = true
	return fb
}

/*──────────────────────────────── field level ────────────────────────────────*/

// FieldBuilder configures the most recently added field.
type FieldBuilder struct {
	parent *Builder
	field  *Field
}

// End returns to form-level calls.
func (fb *FieldBuilder) End() *Builder { return fb.parent }

func (fb *FieldBuilder) Label(s string) *FieldBuilder       { fb.field.Label = s; return fb }
func (fb *FieldBuilder) Description(s string) *FieldBuilder { fb.field.Description = s; return fb }
func (fb *FieldBuilder) Placeholder(s string) *FieldBuilder { fb.field.Placeholder = s; return fb }
func (fb *FieldBuilder) Default(v any) *FieldBuilder        { fb.field.Default = v; return fb }
func (fb *FieldBuilder) Required() *FieldBuilder            { fb.field.Required = true; return fb }

// Options appends choices in order.
func (fb *FieldBuilder) Options(opts ...Option) *FieldBuilder {
	for _, o := range opts {
		if o.Label == "" {
			o.Label = o.Value
		}
		fb.field.Options = append(fb.field.Options, o)
	}
	return fb
}

// Rule sets one validation rule.
func (fb *FieldBuilder) Rule(name string, param any) *FieldBuilder {
	if fb.field.Rules == nil {
		fb.field.Rules = map[string]any{}
	}
	fb.field.Rules[name] = param
	return fb
}

// Validate attaches a custom check, run after the built-in rules.
func (fb *FieldBuilder) Validate(fn CustomRule) *FieldBuilder { return fb.Rule("custom", fn) }

// Security sets who may read the decrypted value of an encrypted field.
func (fb *FieldBuilder) Security(sc crypt.Context) *FieldBuilder {
	fb.field.Security = sc
	return fb
}

// Accept limits file uploads to MIME types.
func (fb *FieldBuilder) Accept(types ...string) *FieldBuilder {
	fb.field.Accept = append(fb.field.Accept, types...)
	return fb
}

// MaxBytes caps file uploads.
func (fb *FieldBuilder) MaxBytes(n int64) *FieldBuilder { fb.field.MaxBytes = n; return fb }

// ShowWhen adds a condition under which the field is shown.
func (fb *FieldBuilder) ShowWhen(field, op string, value any) *FieldBuilder {
	return fb.when(ShowWhen, field, op, value)
}

// HideWhen adds a condition under which the field is hidden.
func (fb *FieldBuilder) HideWhen(field, op string, value any) *FieldBuilder {
	return fb.when(HideWhen, field, op, value)
}

// RequiredWhen adds a condition under which the field is required.
func (fb *FieldBuilder) RequiredWhen(field, op string, value any) *FieldBuilder {
	return fb.when(RequiredWhen, field, op, value)
}

// when appends an AND-ed condition.  A field has one Conditional, so mixing
// kinds is an error.
func (fb *FieldBuilder) when(kind ConditionKind, field, op string, value any) *FieldBuilder {
	c := fb.field.Conditional
	if c == nil {
		c = &Conditional{Kind: kind}
		fb.field.Conditional = c
	}
	if c.Kind != kind {
		fb.parent.errorf("field %q: cannot mix %s with %s", fb.field.ID, kind, c.Kind)
		return fb
	}
	c.Conditions = append(c.Conditions, Condition{Field: field, Operator: op, Value: value})
	return fb
}

// FieldConfigurator: starting a field from a field chain ends this one.

func (fb *FieldBuilder) Field(id, typ string) *FieldBuilder { return fb.parent.Field(id, typ) }
func (fb *FieldBuilder) Text(id string) *FieldBuilder       { return fb.parent.Text(id) }
func (fb *FieldBuilder) Email(id string) *FieldBuilder      { return fb.parent.Email(id) }
func (fb *FieldBuilder) URL(id string) *FieldBuilder        { return fb.parent.URL(id) }
func (fb *FieldBuilder) Password(id string) *FieldBuilder   { return fb.parent.Password(id) }
func (fb *FieldBuilder) Number(id string) *FieldBuilder     { return fb.parent.Number(id) }
func (fb *FieldBuilder) Textarea(id string) *FieldBuilder   { return fb.parent.Textarea(id) }
func (fb *FieldBuilder) Checkbox(id string) *FieldBuilder   { return fb.parent.Checkbox(id) }
func (fb *FieldBuilder) Switch(id string) *FieldBuilder     { return fb.parent.Switch(id) }
func (fb *FieldBuilder) File(id string) *FieldBuilder       { return fb.parent.File(id) }
func (fb *FieldBuilder) Wysiwyg(id string) *FieldBuilder    { return fb.parent.Wysiwyg(id) }
func (fb *FieldBuilder) Encrypted(id string) *FieldBuilder  { return fb.parent.Encrypted(id) }

func (fb *FieldBuilder) Select(id string, opts ...Option) *FieldBuilder {
	return fb.parent.Select(id, opts...)
}

func (fb *FieldBuilder) Radio(id string, opts ...Option) *FieldBuilder {
	return fb.parent.Radio(id, opts...)
}

func (fb *FieldBuilder) Repeater(id, typ string, opts ...Option) *FieldBuilder {
	return fb.parent.Repeater(id, typ, opts...)
}

// Build ends the chain and builds the form.
func (fb *FieldBuilder) Build() (*Form, error) { return fb.parent.Build() }
