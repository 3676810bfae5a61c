package validation

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

type cueRule struct {
	name       string
	message    string
	mu         sync.Mutex
	cctx       *cue.Context
	constraint cue.Value
}

// CUE compiles a CUE constraint (for example `>=18 & <=130` or
// `=~"^[a-z0-9_]+$"`) and builds a rule that fails when the field value does
// not unify with it. Empty values are skipped; pair with Required when input
// is mandatory. Numbers reach CUE as floats, so prefer `number` bounds over
// `int`.
func CUE(name, constraint, message string) (Rule, error) {
	if name == "" {
		name = RuleCUE
	}
	cctx := cuecontext.New()
	compiled := cctx.CompileString(constraint)
	if err := compiled.Err(); err != nil {
		return nil, fmt.Errorf("validation: compile cue constraint %q: %w", constraint, err)
	}
	return &cueRule{
		name:       name,
		message:    message,
		cctx:       cctx,
		constraint: compiled,
	}, nil
}

// MustCUE is like CUE but panics when the constraint does not compile.
func MustCUE(name, constraint, message string) Rule {
	rule, err := CUE(name, constraint, message)
	if err != nil {
		panic(err)
	}
	return rule
}

func (r *cueRule) Name() string { return r.name }

func (r *cueRule) Check(_ context.Context, value any, _ map[string]any) (string, error) {
	if IsEmpty(value) {
		return "", nil
	}

	// cue.Context is not safe for concurrent use.
	r.mu.Lock()
	defer r.mu.Unlock()

	encoded := r.cctx.Encode(value)
	if err := encoded.Err(); err != nil {
		return r.failure(err), nil
	}
	if err := r.constraint.Unify(encoded).Validate(cue.Concrete(true)); err != nil {
		return r.failure(err), nil
	}
	return "", nil
}

func (r *cueRule) failure(err error) string {
	if r.message != "" {
		return r.message
	}
	return err.Error()
}
