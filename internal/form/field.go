// internal/form/field.go
//
// Adept – Forms subsystem: form and field model.
//
// Context
//   A Form is built once (from YAML or the fluent builder), then read by every
//   request that renders or submits it.  Nothing in this file is mutated
//   while a request is in flight; per-request state lives in the conditional
//   engine and the handler.
//
//   Conditional logic is flat: a field carries at most one Conditional whose
//   Conditions are AND-combined.  Each Condition names another field, an
//   operator, and a comparand.
//
//   A repeater field (Repeat == true) is one logical field rendered as one
//   sub-field per option.  Sub-field names are "<id>___<option>", and the
//   submitted sub-fields are reassembled into a list of option values.
//
//------------------------------------------------------------------------------

package form

import (
	"gopkg.in/yaml.v3"

	"github.com/yanizio/adept-forms/internal/crypt"
	"github.com/yanizio/adept-forms/internal/storage"
)

// ConditionKind selects how a Conditional's result is applied.
type ConditionKind string

const (
	ShowWhen     ConditionKind = "show_when"
	HideWhen     ConditionKind = "hide_when"
	RequiredWhen ConditionKind = "required_when"
)

// Operators understood by the conditional engine.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpIsChecked   = "is_checked"
	OpNotChecked  = "not_checked"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

// RepeatSep joins a repeater id and an option value in sub-field names.
const RepeatSep = "___"

// Condition is one leaf predicate against another field's value.
type Condition struct {
	Field    string `yaml:"field" json:"field"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value" json:"value"`
}

// Conditional attaches AND-combined Conditions to a field.
type Conditional struct {
	Kind       ConditionKind `yaml:"kind" json:"kind"`
	Conditions []Condition   `yaml:"conditions" json:"conditions"`
}

// Option is one choice of a select, radio, or repeater field.  Order is
// significant and preserved.
type Option struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// UnmarshalYAML accepts either a mapping or a bare scalar ("red" means
// value and label "red").
func (o *Option) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		o.Value, o.Label = n.Value, n.Value
		return nil
	}
	type plain Option
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*o = Option(p)
	if o.Label == "" {
		o.Label = o.Value
	}
	return nil
}

// Field is the configuration of one input.
type Field struct {
	ID          string         `yaml:"id"`
	Type        string         `yaml:"type"`
	Label       string         `yaml:"label"`
	Description string         `yaml:"description"`
	Placeholder string         `yaml:"placeholder"`
	Required    bool           `yaml:"required"`
	Default     any            `yaml:"default"`
	Options     []Option       `yaml:"options"`
	Rules       map[string]any `yaml:"rules"`
	Conditional *Conditional   `yaml:"conditional"`

	// Repeat renders one sub-field per option and stores the list of
	// option values whose sub-field was set.
	Repeat bool `yaml:"repeat"`

	// Security is the read tier for encrypted fields.  Empty means
	// admin_only.
	Security crypt.Context `yaml:"security"`

	// File limits.  Zero values fall back to the uploader's defaults.
	Accept   []string `yaml:"accept"`
	MaxBytes int64    `yaml:"max_bytes"`
}

// OptionValues returns the option values in declaration order.
func (f *Field) OptionValues() []string {
	out := make([]string, len(f.Options))
	for i, o := range f.Options {
		out[i] = o.Value
	}
	return out
}

// StorageConfig selects a persistence strategy and its discriminator.
type StorageConfig struct {
	Strategy string `yaml:"strategy"` // options, post_meta, settings, custom
	Prefix   string `yaml:"prefix"`
	Suffix   string `yaml:"suffix"`
	EntityID int64  `yaml:"entity_id"`
	Group    string `yaml:"group"`
}

// Form is one admin form.
type Form struct {
	ID             string        `yaml:"id"`
	Title          string        `yaml:"title"`
	Method         string        `yaml:"method"` // default POST
	Action         string        `yaml:"action"`
	Layout         string        `yaml:"layout"`     // table (default) or div
	Capability     string        `yaml:"capability"` // default manage_options
	SubmitLabel    string        `yaml:"submit_label"`
	SuccessMessage string        `yaml:"success_message"`
	ErrorMessage   string        `yaml:"error_message"`
	Storage        StorageConfig `yaml:"storage"`
	Fields         []*Field      `yaml:"fields"`
	Actions        []ActionDef   `yaml:"actions"`

	// Runtime collaborators, never loaded from YAML.
	Adapter storage.Adapter `yaml:"-"`
	Hooks   Hooks           `yaml:"-"`
}

// Field returns the field with id, or nil.
func (f *Form) Field(id string) *Field {
	for _, fld := range f.Fields {
		if fld.ID == id {
			return fld
		}
	}
	return nil
}

// FieldIDs returns every configured field id in order.
func (f *Form) FieldIDs() []string {
	out := make([]string, len(f.Fields))
	for i, fld := range f.Fields {
		out[i] = fld.ID
	}
	return out
}

// applyDefaults fills form-level defaults.  Field defaults come from each
// field's Kind.
func (f *Form) applyDefaults(reg *Registry) {
	if f.Method == "" {
		f.Method = "POST"
	}
	if f.Layout == "" {
		f.Layout = LayoutTable
	}
	if f.Capability == "" {
		f.Capability = "manage_options"
	}
	if f.SubmitLabel == "" {
		f.SubmitLabel = "Save Changes"
	}
	if f.SuccessMessage == "" {
		f.SuccessMessage = "Settings saved."
	}
	if f.ErrorMessage == "" {
		f.ErrorMessage = "Unable to save settings.  Please try again."
	}
	for _, fld := range f.Fields {
		if k, ok := reg.Lookup(fld.Type); ok && k.Normalize != nil {
			k.Normalize(fld)
		}
	}
}
