// internal/form/validator.go
//
// Adept – Forms subsystem: server-side validation.
//
// Context
//   Runs after extraction and conditional filtering.  Every visible field is
//   checked, and a failure on one field never stops the others, so the user
//   sees the full error set in one round-trip.
//
// Workflow
//   •  Hidden fields are skipped entirely.
//   •  Requiredness comes from the conditional engine (static flag or
//      required_when).  An empty encrypted field with a stored secret counts
//      as filled, since the secret is preserved on save.
//   •  Choice fields (select, radio, repeaters) must use declared options.
//   •  Remaining values go through the RuleSet; first failure per field wins.
//   •  Configured fields the browser never rendered produce one non-blocking
//      `unused_fields` warning.
//
//------------------------------------------------------------------------------

package form

import (
	"strings"

	"github.com/samber/lo"
)

// Warning is a non-fatal, form-level notice.
type Warning struct {
	Code    string
	Message string
	Fields  []string
}

// ValidationResult is the outcome of Validate.  Errors maps field id to a
// user-facing message.
type ValidationResult struct {
	Valid    bool
	Errors   map[string]string
	Codes    map[string]string
	Warnings []Warning
}

// Validator applies a RuleSet under a conditional engine.
type Validator struct {
	Rules *RuleSet
	Kinds *Registry
}

// Validate checks data (already bound to cond) for form.  rendered lists the
// field ids the client reports as rendered; nil skips the unused check.
// Fields missing from a non-nil rendered list are only reported in the
// unused_fields warning, never checked, so they cannot block a save.
// existing holds stored values, used for encrypted fields.
func (v *Validator) Validate(form *Form, cond *Conditions, data map[string]any, rendered []string, existing map[string]any) ValidationResult {
	res := ValidationResult{Valid: true, Errors: map[string]string{}, Codes: map[string]string{}}

	for _, f := range form.Fields {
		if !cond.ShouldShowField(f.ID) || !wasRendered(rendered, f.ID) {
			continue
		}
		val := data[f.ID]
		if err := v.checkField(f, cond, val, existing[f.ID]); err != nil {
			res.Valid = false
			res.Errors[f.ID] = err.Message
			res.Codes[f.ID] = err.Code
		}
	}

	if rendered != nil {
		if missing := lo.Without(form.FieldIDs(), rendered...); len(missing) > 0 {
			res.Warnings = append(res.Warnings, Warning{
				Code:    "unused_fields",
				Message: "Configured fields were not rendered: " + strings.Join(missing, ", ") + ".",
				Fields:  missing,
			})
		}
	}
	return res
}

func (v *Validator) checkField(f *Field, cond *Conditions, val, stored any) *RuleError {
	required := cond.ShouldRequireField(f.ID)
	if k, ok := v.Kinds.Lookup(f.Type); ok && k.Encrypt && isEmpty(val) && !isEmpty(stored) {
		required = false
	}
	if required && isEmpty(val) {
		return &RuleError{Code: "required", Message: labelOf(f) + " is required."}
	}
	if isEmpty(val) {
		return nil
	}
	if isChoice(f) && !optionAllowed(f, val) {
		return &RuleError{Code: "invalid_choice", Message: labelOf(f) + " contains an invalid choice."}
	}
	return v.Rules.Apply(f, val)
}

func isChoice(f *Field) bool {
	if len(f.Options) == 0 {
		return false
	}
	return f.Repeat || f.Type == "select" || f.Type == "radio"
}

func optionAllowed(f *Field, val any) bool {
	opts := f.OptionValues()
	for _, s := range toStrings(val) {
		if !lo.Contains(opts, s) {
			return false
		}
	}
	return true
}
