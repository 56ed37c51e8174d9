// internal/form/kind.go
//
// Adept – Forms subsystem: field-type registry.
//
// Context
//   Every field type tag ("text", "switch", "encrypted", ...) maps to a Kind:
//   a small bundle of behaviour the pipeline needs for that type.  New types
//   register a Kind instead of growing a switch statement.
//
//   •  Sanitize turns one raw submitted string into the stored value.
//   •  Merge combines the submitted value with the previously stored one.
//   •  Normalize fills field defaults at build time.
//   •  Checkable marks boolean controls (absent means false).
//   •  Encrypt asks the extractor to seal the sanitized value.
//   •  Upload routes the field through the Uploader instead of Sanitize.
//
//------------------------------------------------------------------------------

package form

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// SanitizeFunc converts a raw submitted string into a storable value.
type SanitizeFunc func(raw string, f *Field) (any, error)

// MergeFunc picks the value to persist.  submitted is nil when the field was
// not part of the submission.
type MergeFunc func(submitted, existing any) any

// Kind is the behaviour bundle for one field type.
type Kind struct {
	Name      string
	Checkable bool
	Encrypt   bool
	Upload    bool
	Sanitize  SanitizeFunc
	Merge     MergeFunc
	Normalize func(*Field)
}

// Registry maps type tags to Kinds.  Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*Kind)}
}

// Register adds or replaces k.  Nil hooks are filled with the defaults.
func (r *Registry) Register(k *Kind) {
	if k.Sanitize == nil {
		k.Sanitize = sanitizeText
	}
	if k.Merge == nil {
		k.Merge = mergeDefault
	}
	r.mu.Lock()
	r.kinds[k.Name] = k
	r.mu.Unlock()
}

// Lookup returns the Kind for a type tag.
func (r *Registry) Lookup(name string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	return k, ok
}

// Names returns every registered tag, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for n := range r.kinds {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DefaultKinds returns a registry holding the built-in field types.
func DefaultKinds() *Registry {
	r := NewRegistry()
	for _, name := range []string{"text", "password", "hidden", "select", "radio", "color", "date"} {
		r.Register(&Kind{Name: name, Normalize: normalizeLabel})
	}
	r.Register(&Kind{Name: "textarea", Sanitize: sanitizeTextarea, Normalize: normalizeLabel})
	r.Register(&Kind{Name: "email", Sanitize: sanitizeEmail, Normalize: withRule("email")})
	r.Register(&Kind{Name: "url", Sanitize: sanitizeURL, Normalize: withRule("url")})
	r.Register(&Kind{Name: "number", Sanitize: sanitizeNumber, Normalize: withRule("numeric")})
	r.Register(&Kind{Name: "wysiwyg", Sanitize: sanitizeRich, Normalize: normalizeLabel})
	r.Register(&Kind{Name: "checkbox", Checkable: true, Sanitize: sanitizeBool, Merge: mergeCheckable, Normalize: normalizeCheckable})
	r.Register(&Kind{Name: "switch", Checkable: true, Sanitize: sanitizeBool, Merge: mergeCheckable, Normalize: normalizeCheckable})
	r.Register(&Kind{Name: "encrypted", Encrypt: true, Sanitize: sanitizeSecret, Merge: mergeEncrypted, Normalize: normalizeLabel})
	r.Register(&Kind{Name: "file", Upload: true, Normalize: normalizeLabel})
	return r
}

/*──────────────────────────────── sanitizers ────────────────────────────────*/

var (
	strictPolicy = bluemonday.StrictPolicy()
	richPolicy   = bluemonday.UGCPolicy()
)

func sanitizeText(raw string, _ *Field) (any, error) {
	s := strictPolicy.Sanitize(raw)
	return strings.TrimSpace(strings.Join(strings.Fields(s), " ")), nil
}

// sanitizeTextarea strips markup but keeps line breaks.
func sanitizeTextarea(raw string, _ *Field) (any, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(strictPolicy.Sanitize(l), unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func sanitizeEmail(raw string, _ *Field) (any, error) {
	return strings.TrimSpace(strictPolicy.Sanitize(raw)), nil
}

// sanitizeURL drops anything that is not http, https, or mailto.
func sanitizeURL(raw string, _ *Field) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", nil
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto":
		return u.String(), nil
	}
	return "", nil
}

func sanitizeRich(raw string, _ *Field) (any, error) {
	return strings.TrimSpace(richPolicy.Sanitize(raw)), nil
}

// sanitizeNumber returns a float64 for numeric input.  Anything else is
// kept as text so the numeric rule can report it.
func sanitizeNumber(raw string, _ *Field) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, nil
	}
	return strictPolicy.Sanitize(s), nil
}

func sanitizeBool(raw string, _ *Field) (any, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "on", "true":
		return true, nil
	}
	return false, nil
}

// sanitizeSecret enforces the size cap before encryption.  The mask text is
// what the renderer shows for an existing secret, so echoing it back means
// "unchanged".
func sanitizeSecret(raw string, f *Field) (any, error) {
	if len(raw) > MaxEncryptedBytes {
		return nil, &RuleError{Code: "too_long", Message: labelOf(f) + " is too long."}
	}
	if raw == maskText {
		return "", nil
	}
	return strings.TrimSpace(raw), nil
}

/*───────────────────────────────── merges ──────────────────────────────────*/

// mergeDefault keeps existing when nothing was submitted.
func mergeDefault(submitted, existing any) any {
	if submitted != nil {
		return submitted
	}
	return existing
}

// mergeCheckable treats absence as unchecked; the stored value never leaks
// through.
func mergeCheckable(submitted, _ any) any {
	if b, ok := submitted.(bool); ok {
		return b
	}
	return false
}

// mergeEncrypted keeps the stored ciphertext when the submission is empty.
func mergeEncrypted(submitted, existing any) any {
	if s, ok := submitted.(string); ok && s != "" {
		return s
	}
	if submitted != nil && !isEmpty(submitted) {
		return submitted
	}
	return existing
}

/*──────────────────────────────── normalizers ───────────────────────────────*/

func normalizeLabel(f *Field) {
	if f.Label == "" {
		f.Label = humanize(f.ID)
	}
}

func normalizeCheckable(f *Field) {
	normalizeLabel(f)
	if f.Default == nil && !f.Repeat {
		f.Default = false
	}
}

func withRule(rule string) func(*Field) {
	return func(f *Field) {
		normalizeLabel(f)
		if f.Rules == nil {
			f.Rules = map[string]any{}
		}
		if _, ok := f.Rules[rule]; !ok {
			f.Rules[rule] = true
		}
	}
}

// humanize turns "first_name" into "First name".
func humanize(id string) string {
	s := strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(id))
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func labelOf(f *Field) string {
	if f == nil {
		return "Field"
	}
	if f.Label != "" {
		return f.Label
	}
	return humanize(f.ID)
}
