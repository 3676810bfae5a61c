package form

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/goliatone/go-formstate/pkg/condition"
	"github.com/goliatone/go-formstate/pkg/condition/expr"
)

// Mode selects which UI events trigger validation.
type Mode int

const (
	// OnSubmit validates only when the form is submitted.
	OnSubmit Mode = iota
	// OnChange validates a field on every Change.
	OnChange
	// OnBlur validates a field when it loses focus.
	OnBlur
	// OnTouched validates on the first blur and on every change after it.
	OnTouched
	// All validates on both change and blur.
	All
)

var modeNames = map[Mode]string{
	OnSubmit:  "onSubmit",
	OnChange:  "onChange",
	OnBlur:    "onBlur",
	OnTouched: "onTouched",
	All:       "all",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts the names produced by Mode.String, case-insensitively.
// An empty string yields OnSubmit.
func ParseMode(raw string) (Mode, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return OnSubmit, nil
	}
	for mode, name := range modeNames {
		if strings.EqualFold(name, trimmed) {
			return mode, nil
		}
	}
	return OnSubmit, fmt.Errorf("form: unknown validation mode %q", raw)
}

// Option customises a Form.
type Option func(*Form)

// WithDefaults installs a static default tree at construction time.
func WithDefaults(tree map[string]any) Option {
	return func(f *Form) {
		f.initial = tree
	}
}

// WithMode sets the validation mode used before the first submission.
func WithMode(mode Mode) Option {
	return func(f *Form) {
		f.mode = mode
	}
}

// WithReValidateMode sets the validation mode used after the first
// submission. OnTouched is treated as OnChange here.
func WithReValidateMode(mode Mode) Option {
	return func(f *Form) {
		f.reValidateMode = mode
	}
}

// WithLogger routes engine diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Form) {
		f.logger = logger
	}
}

// WithKeyGenerator overrides how registration IDs and array identity keys
// are generated.
func WithKeyGenerator(fn func() string) Option {
	return func(f *Form) {
		f.newKey = fn
	}
}

// WithStrictArrays makes an array key/length divergence panic instead of
// being resynced with a warning.
func WithStrictArrays(strict bool) Option {
	return func(f *Form) {
		f.strictArrays = strict
	}
}

// WithConditionEvaluator replaces the evaluator used for DisabledWhen.
func WithConditionEvaluator(evaluator condition.Evaluator) Option {
	return func(f *Form) {
		f.evaluator = evaluator
	}
}

func (f *Form) applyDefaults() {
	if f.logger == nil {
		f.logger = slog.New(slog.DiscardHandler)
	}
	if f.newKey == nil {
		f.newKey = uuid.NewString
	}
	if f.evaluator == nil {
		f.evaluator = expr.New()
	}
	if f.reValidateMode == OnTouched {
		f.reValidateMode = OnChange
	}
}
