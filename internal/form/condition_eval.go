// internal/form/condition_eval.go
//
// Leaf condition evaluation and the loose scalar conversions it relies on.

package form

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// evaluate reports whether c holds against data.  A condition without a
// field, or with an unknown operator, is false.
func evaluate(c Condition, data map[string]any) bool {
	if c.Field == "" {
		return false
	}
	v := data[c.Field]

	switch c.Operator {
	case OpEquals:
		return reflect.DeepEqual(v, c.Value)
	case OpNotEquals:
		return !reflect.DeepEqual(v, c.Value)
	case OpIsChecked:
		return isChecked(v)
	case OpNotChecked:
		return isUnchecked(v)
	case OpContains:
		return strings.Contains(toString(v), toString(c.Value))
	case OpGreaterThan:
		return toFloat(v) > toFloat(c.Value)
	case OpLessThan:
		return toFloat(v) < toFloat(c.Value)
	default:
		return false
	}
}

// allMet is the AND of every condition.  An empty list holds.
func allMet(conds []Condition, data map[string]any) bool {
	for _, c := range conds {
		if !evaluate(c, data) {
			return false
		}
	}
	return true
}

// isChecked is true only for "1", an integer 1, or true.  Stored JSON
// numbers decode as float64, so an integral 1.0 counts as integer 1.
func isChecked(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "1"
	case float64:
		return x == 1
	case float32:
		return x == 1
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 1
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 1
	}
	return false
}

// isUnchecked is true for "0", 0, false, or an empty value.  Values such as
// "yes" or 2 are neither checked nor unchecked.
func isUnchecked(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == "0" || x == ""
	case float64:
		return x == 0
	case float32:
		return x == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

// toString casts a value the way a loosely typed template would: nil is
// "", true is "1", false is "", lists join with ",".
func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []string:
		return strings.Join(x, ",")
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = toString(e)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

// toFloat parses the leading numeric prefix of strings ("12px" is 12) and
// maps true to 1.  Anything unparseable is 0.
func toFloat(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case float32:
		return float64(x)
	case string:
		return leadingFloat(x)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	}
	return leadingFloat(toString(v))
}

func leadingFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			end = i + 1
		case (c == '+' || c == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			i = len(s)
		}
	}
	if !seenDigit {
		return 0
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}
