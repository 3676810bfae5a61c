// Package validation defines the per-field rules evaluated by the form engine
// and the sequential runner that applies them.
//
// Rules of a single field run in declared order and the first failure wins.
// A rule reports failure by returning a non-empty message; a returned error
// means the check itself could not complete (for example the context was
// cancelled) and carries no verdict.
package validation

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Canonical rule names.
const (
	RuleRequired  = "required"
	RulePattern   = "pattern"
	RuleMin       = "min"
	RuleMax       = "max"
	RuleMinLength = "minLength"
	RuleMaxLength = "maxLength"
	RuleCUE       = "cue"
	RuleCoerce    = "valueAs"
)

// Rule validates a single field value. values is a read-only snapshot of the
// whole form so rules can compare against sibling fields.
type Rule interface {
	Name() string
	Check(ctx context.Context, value any, values map[string]any) (string, error)
}

// CheckFunc is the signature of an arbitrary, possibly blocking, check.
type CheckFunc func(ctx context.Context, value any, values map[string]any) (string, error)

type funcRule struct {
	name string
	fn   CheckFunc
}

// Func wraps fn as a named rule. fn may block (remote lookups, slow checks);
// the engine runs it outside its lock and discards results that went stale
// while it ran.
func Func(name string, fn CheckFunc) Rule {
	return funcRule{name: name, fn: fn}
}

func (r funcRule) Name() string { return r.name }

func (r funcRule) Check(ctx context.Context, value any, values map[string]any) (string, error) {
	if r.fn == nil {
		return "", nil
	}
	return r.fn(ctx, value, values)
}

// Custom builds a synchronous predicate rule. pred returns true for valid
// values; message is reported otherwise.
func Custom(name string, pred func(value any) bool, message string) Rule {
	return Func(name, func(_ context.Context, value any, _ map[string]any) (string, error) {
		if pred == nil || pred(value) {
			return "", nil
		}
		return message, nil
	})
}

type requiredRule struct{ message string }

// Required fails for nil, empty strings, empty lists and maps, false, NaN and
// the zero time.
func Required(message string) Rule {
	if message == "" {
		message = "this field is required"
	}
	return requiredRule{message: message}
}

func (requiredRule) Name() string { return RuleRequired }

func (r requiredRule) Check(_ context.Context, value any, _ map[string]any) (string, error) {
	if IsEmpty(value) {
		return r.message, nil
	}
	if b, ok := value.(bool); ok && !b {
		return r.message, nil
	}
	return "", nil
}

type patternRule struct {
	re      *regexp.Regexp
	message string
}

// Pattern fails when a non-empty value does not match re.
func Pattern(re *regexp.Regexp, message string) Rule {
	if message == "" {
		message = fmt.Sprintf("must match %s", re.String())
	}
	return patternRule{re: re, message: message}
}

// PatternString compiles expr and builds a Pattern rule.
func PatternString(expr, message string) (Rule, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("validation: compile pattern %q: %w", expr, err)
	}
	return Pattern(re, message), nil
}

func (patternRule) Name() string { return RulePattern }

func (r patternRule) Check(_ context.Context, value any, _ map[string]any) (string, error) {
	if IsEmpty(value) {
		return "", nil
	}
	if !r.re.MatchString(toString(value)) {
		return r.message, nil
	}
	return "", nil
}

type lengthRule struct {
	name    string
	limit   int
	message string
}

// MinLength fails when a non-empty string (in runes) or list is shorter than n.
func MinLength(n int, message string) Rule {
	if message == "" {
		message = fmt.Sprintf("must be at least %d characters", n)
	}
	return lengthRule{name: RuleMinLength, limit: n, message: message}
}

// MaxLength fails when a string (in runes) or list is longer than n.
func MaxLength(n int, message string) Rule {
	if message == "" {
		message = fmt.Sprintf("must be at most %d characters", n)
	}
	return lengthRule{name: RuleMaxLength, limit: n, message: message}
}

func (r lengthRule) Name() string { return r.name }

func (r lengthRule) Check(_ context.Context, value any, _ map[string]any) (string, error) {
	if IsEmpty(value) {
		return "", nil
	}
	n := lengthOf(value)
	if n < 0 {
		return "", nil
	}
	if r.name == RuleMinLength && n < r.limit {
		return r.message, nil
	}
	if r.name == RuleMaxLength && n > r.limit {
		return r.message, nil
	}
	return "", nil
}

type boundRule struct {
	name    string
	limit   float64
	message string
}

// Min fails when a numeric value is below limit.
func Min(limit float64, message string) Rule {
	if message == "" {
		message = fmt.Sprintf("must be at least %s", strconv.FormatFloat(limit, 'f', -1, 64))
	}
	return boundRule{name: RuleMin, limit: limit, message: message}
}

// Max fails when a numeric value is above limit.
func Max(limit float64, message string) Rule {
	if message == "" {
		message = fmt.Sprintf("must be at most %s", strconv.FormatFloat(limit, 'f', -1, 64))
	}
	return boundRule{name: RuleMax, limit: limit, message: message}
}

func (r boundRule) Name() string { return r.name }

func (r boundRule) Check(_ context.Context, value any, _ map[string]any) (string, error) {
	if IsEmpty(value) {
		return "", nil
	}
	n, ok := toNumber(value)
	if !ok {
		return "", nil
	}
	if r.name == RuleMin && n < r.limit {
		return r.message, nil
	}
	if r.name == RuleMax && n > r.limit {
		return r.message, nil
	}
	return "", nil
}

// IsEmpty reports whether value counts as "no input".
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	case float64:
		return math.IsNaN(v)
	case time.Time:
		return v.IsZero()
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func lengthOf(value any) int {
	switch v := value.(type) {
	case string:
		return utf8.RuneCountInString(v)
	case []any:
		return len(v)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	}
	return -1
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(value)
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
