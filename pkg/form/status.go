package form

import (
	"sort"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

// ErrorTree maps canonical dotted paths to the message of the rule that
// failed there. A path is present only while its field fails.
type ErrorTree map[string]string

// Get returns the message at p.
func (t ErrorTree) Get(p fieldpath.Path) (string, bool) {
	msg, ok := t[p.String()]
	return msg, ok
}

// Len reports the number of failing fields.
func (t ErrorTree) Len() int { return len(t) }

// Paths returns the failing paths in sorted order.
func (t ErrorTree) Paths() []string {
	out := make([]string, 0, len(t))
	for p := range t {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Tree nests the messages so they mirror the shape of the value tree, for
// example {"phNumbers": [nil, {"number": "required"}]}.
func (t ErrorTree) Tree() map[string]any {
	out := make(map[string]any)
	for _, raw := range t.Paths() {
		p, err := fieldpath.Parse(raw)
		if err != nil {
			continue
		}
		_ = fieldpath.Set(out, p, t[raw])
	}
	return out
}

func (t ErrorTree) clone() ErrorTree {
	out := make(ErrorTree, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Phase is the position in the submission lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseSubmitSuccess
	PhaseSubmitError
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitting:
		return "submitting"
	case PhaseSubmitSuccess:
		return "submit-success"
	case PhaseSubmitError:
		return "submit-error"
	default:
		return "idle"
	}
}

// Status is a derived snapshot of the form. Consumers never set it directly.
type Status struct {
	Phase              Phase
	DirtyFields        []string
	ChangedFields      []string
	TouchedFields      []string
	ValidatingFields   []string
	Errors             ErrorTree
	IsDirty            bool
	IsValid            bool
	IsValidating       bool
	IsSubmitting       bool
	IsSubmitted        bool
	IsSubmitSuccessful bool
	SubmitCount        int
	Loading            bool
	LoadError          error
}

// FieldState is the per-field view used by input bindings.
type FieldState struct {
	Invalid    bool
	Dirty      bool
	Touched    bool
	Validating bool
	Error      string
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k, v := range set {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
