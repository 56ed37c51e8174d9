// internal/form/rules.go
//
// Adept – Forms subsystem: validation rule table.
//
// Context
//   A field's `rules` map names rules and their parameters:
//
//       rules: { min_length: 3, max_length: 40, pattern: "^[a-z]+$" }
//
//   RuleSet maps each name to a pure RuleFunc.  One RuleSet is built at
//   startup and shared by every form; Register adds site-specific rules.
//   Rules run in a fixed order (the built-in order below, then any other
//   names sorted) and the first failure wins for that field.
//
//   `email`, `url`, and `numeric` delegate to go-playground/validator so the
//   checks match the ones the config layer already uses.
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RuleFunc checks value against param.  label is the field's display name.
type RuleFunc func(value any, param any, label string) *RuleError

// CustomRule is the parameter type of the `custom` rule.
type CustomRule func(value any) error

// canonicalOrder fixes evaluation order for the built-in rules.
var canonicalOrder = []string{
	"required", "email", "url", "numeric", "min", "max",
	"min_length", "max_length", "pattern", "in", "custom",
}

// RuleSet is safe for concurrent use.
type RuleSet struct {
	mu    sync.RWMutex
	rules map[string]RuleFunc
	log   *zap.SugaredLogger
}

// DefaultRules returns a RuleSet holding the built-in rules.
func DefaultRules() *RuleSet {
	rs := &RuleSet{rules: make(map[string]RuleFunc), log: zap.S()}
	rs.Register("required", ruleRequired)
	rs.Register("email", ruleTag("email", "must be a valid email address"))
	rs.Register("url", ruleTag("url", "must be a valid URL"))
	rs.Register("numeric", ruleNumeric)
	rs.Register("min", ruleMin)
	rs.Register("max", ruleMax)
	rs.Register("min_length", ruleMinLength)
	rs.Register("max_length", ruleMaxLength)
	rs.Register("pattern", rulePattern)
	rs.Register("in", ruleIn)
	rs.Register("custom", ruleCustom)
	return rs
}

// Register adds or replaces a rule.
func (rs *RuleSet) Register(name string, fn RuleFunc) {
	rs.mu.Lock()
	rs.rules[name] = fn
	rs.mu.Unlock()
}

// Has reports whether name is registered.
func (rs *RuleSet) Has(name string) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	_, ok := rs.rules[name]
	return ok
}

// Apply runs f's rules against value and returns the first failure.
// A rule whose parameter is false or nil is switched off.
func (rs *RuleSet) Apply(f *Field, value any) *RuleError {
	label := labelOf(f)
	for _, name := range orderedRules(f.Rules) {
		param := f.Rules[name]
		if param == nil || param == false {
			continue
		}
		rs.mu.RLock()
		fn, ok := rs.rules[name]
		rs.mu.RUnlock()
		if !ok {
			rs.log.Debugw("unknown validation rule", "field", f.ID, "rule", name)
			continue
		}
		if err := fn(value, param, label); err != nil {
			return err
		}
	}
	return nil
}

func orderedRules(m map[string]any) []string {
	out := make([]string, 0, len(m))
	known := make(map[string]bool, len(canonicalOrder))
	for _, n := range canonicalOrder {
		known[n] = true
		if _, ok := m[n]; ok {
			out = append(out, n)
		}
	}
	var rest []string
	for n := range m {
		if !known[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

/*───────────────────────────────── built-ins ────────────────────────────────*/

var tagValidator = validator.New()

func fail(code, label, msg string) *RuleError {
	return &RuleError{Code: code, Message: label + " " + msg + "."}
}

func ruleRequired(v any, _ any, label string) *RuleError {
	if isEmpty(v) {
		return &RuleError{Code: "required", Message: label + " is required."}
	}
	return nil
}

// ruleTag wraps a validator tag.  Empty values pass; required is separate.
func ruleTag(tag, msg string) RuleFunc {
	return func(v any, _ any, label string) *RuleError {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil
		}
		if tagValidator.Var(s, tag) != nil {
			return fail(tag, label, msg)
		}
		return nil
	}
}

func ruleNumeric(v any, _ any, label string) *RuleError {
	switch x := v.(type) {
	case float64, float32, int, int64, int32:
		return nil
	case string:
		if x == "" || tagValidator.Var(x, "numeric") == nil {
			return nil
		}
	}
	return fail("numeric", label, "must be a number")
}

func ruleMin(v any, p any, label string) *RuleError {
	if isEmpty(v) {
		return nil
	}
	if toFloat(v) < toFloat(p) {
		return fail("min", label, "must be at least "+fmt.Sprint(p))
	}
	return nil
}

func ruleMax(v any, p any, label string) *RuleError {
	if isEmpty(v) {
		return nil
	}
	if toFloat(v) > toFloat(p) {
		return fail("max", label, "must be no more than "+fmt.Sprint(p))
	}
	return nil
}

func ruleMinLength(v any, p any, label string) *RuleError {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	if n := int(toFloat(p)); utf8.RuneCountInString(s) < n {
		return fail("min_length", label, "must be at least "+strconv.Itoa(n)+" characters")
	}
	return nil
}

func ruleMaxLength(v any, p any, label string) *RuleError {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	if n := int(toFloat(p)); utf8.RuneCountInString(s) > n {
		return fail("max_length", label, "must be no more than "+strconv.Itoa(n)+" characters")
	}
	return nil
}

var patternCache sync.Map // string → *regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patternCache.Store(p, re)
	return re, nil
}

func rulePattern(v any, p any, label string) *RuleError {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	ps, _ := p.(string)
	re, err := compilePattern(ps)
	if err != nil || !re.MatchString(s) {
		return fail("pattern", label, "has an invalid format")
	}
	return nil
}

// ruleIn accepts a scalar in the list, or a list whose every element is in
// the list.
func ruleIn(v any, p any, label string) *RuleError {
	allowed := map[string]bool{}
	for _, a := range toStrings(p) {
		allowed[a] = true
	}
	vals := toStrings(v)
	for _, s := range vals {
		if !allowed[s] {
			return fail("in", label, "contains an invalid choice")
		}
	}
	return nil
}

func ruleCustom(v any, p any, label string) *RuleError {
	var fn CustomRule
	switch x := p.(type) {
	case CustomRule:
		fn = x
	case func(any) error:
		fn = x
	default:
		return nil
	}
	if err := fn(v); err != nil {
		return &RuleError{Code: "custom", Message: err.Error()}
	}
	return nil
}

/*───────────────────────────────── helpers ─────────────────────────────────*/

// isEmpty follows the usual "blank" notion: nil, "", false, and empty
// collections.  Zero numbers are not empty.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

// toStrings flattens a scalar or list into strings.
func toStrings(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		return x
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]string, rv.Len())
		for i := range out {
			out[i] = toString(rv.Index(i).Interface())
		}
		return out
	}
	return []string{toString(v)}
}
