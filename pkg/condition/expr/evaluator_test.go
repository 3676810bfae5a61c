package expr

import (
	"testing"
	"time"
)

func TestEvaluatorTruthiness(t *testing.T) {
	t.Parallel()

	eval := New()
	values := map[string]any{"channel": "codevolution", "blank": "  ", "count": float64(0)}

	cases := map[string]bool{
		"channel":             true,
		"!channel":            false,
		"blank":               false,
		"count":               false,
		"missing":             false,
		"!missing && channel": true,
		"":                    false,
	}
	for expression, want := range cases {
		got, err := eval.Eval(expression, values)
		if err != nil {
			t.Fatalf("Eval(%q) returned error: %v", expression, err)
		}
		if got != want {
			t.Fatalf("Eval(%q) = %v, want %v", expression, got, want)
		}
	}
}

func TestEvaluatorComparisons(t *testing.T) {
	t.Parallel()

	eval := New()
	values := map[string]any{
		"channel":   "",
		"age":       float64(21),
		"minAge":    float64(18),
		"subscribe": "true",
		"dob":       time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC),
		"phNumbers": []any{map[string]any{"number": "555"}},
		"social":    map[string]any{"twitter": "@bret"},
	}

	cases := map[string]bool{
		`channel == ""`:                   true,
		`channel == ''`:                   true,
		`unknown == ""`:                   true,
		`unknown == null`:                 true,
		`social.twitter != null`:          true,
		`age >= 18`:                       true,
		`age < minAge`:                    false,
		`age > 20 && age <= 21`:           true,
		`subscribe == true`:               true,
		`phNumbers[0].number == "555"`:    true,
		`phNumbers.0.number == 555`:       true,
		`dob < "2001-01-01"`:              true,
		`(age < 18 || channel) || !age`:   false,
		`social.twitter == '@bret'`:       true,
		`social.twitter != "it\"s"`:       true,
	}
	for expression, want := range cases {
		got, err := eval.Eval(expression, values)
		if err != nil {
			t.Fatalf("Eval(%q) returned error: %v", expression, err)
		}
		if got != want {
			t.Fatalf("Eval(%q) = %v, want %v", expression, got, want)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	for _, expression := range []string{
		`channel ==`,
		`(age > 1`,
		`"unterminated`,
		`age > 1 )`,
		`a..b`,
	} {
		if _, err := Compile(expression); err == nil {
			t.Fatalf("expected compile error for %q", expression)
		}
	}
}

func TestEvaluatorCachesCompiledExpressions(t *testing.T) {
	t.Parallel()

	eval := New()
	if _, err := eval.Eval("age > 1", map[string]any{"age": float64(2)}); err != nil {
		t.Fatalf("Eval returned error: %v", err)
	}
	if _, ok := eval.cache.Load("age > 1"); !ok {
		t.Fatalf("expected compiled expression to be cached")
	}
	got, _ := eval.Eval("age > 1", map[string]any{"age": float64(0)})
	if got {
		t.Fatalf("cached expression must re-read values")
	}
}
