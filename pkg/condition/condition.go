// Package condition evaluates boolean expressions over a form's current
// values. The engine uses them for registration options such as
// `disabledWhen`, where a field's enabled state depends on sibling input.
package condition

// Evaluator decides whether an expression holds for the given values.
type Evaluator interface {
	Eval(expression string, values map[string]any) (bool, error)
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(expression string, values map[string]any) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(expression string, values map[string]any) (bool, error) {
	return fn(expression, values)
}
