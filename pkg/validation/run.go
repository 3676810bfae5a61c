package validation

import "context"

// Result is the outcome of running one field's rules. Message is empty when
// every rule passed; Rule names the rule that failed.
type Result struct {
	Rule    string
	Message string
}

// Valid reports whether no rule failed.
func (r Result) Valid() bool { return r.Message == "" }

// Run evaluates rules in order against value and stops at the first failure.
// Blocking rules are awaited one after another, so an earlier rule always
// takes precedence over a later one.
func Run(ctx context.Context, value any, values map[string]any, rules []Rule) (Result, error) {
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		msg, err := rule.Check(ctx, value, values)
		if err != nil {
			return Result{}, err
		}
		if msg != "" {
			return Result{Rule: rule.Name(), Message: msg}, nil
		}
	}
	return Result{}, nil
}
