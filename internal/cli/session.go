// Package cli fills a form interactively through a prompt.Driver.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goliatone/go-formstate/internal/prompt"
	"github.com/goliatone/go-formstate/pkg/condition/expr"
	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/formdef"
)

const defaultMaxSubmits = 3

// InvalidError is returned when the form is still invalid after the last
// allowed submission.
type InvalidError struct {
	Errors form.ErrorTree
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("cli: form is invalid: %d field(s) failing", e.Errors.Len())
}

// Session walks a definition field by field, writes answers into a form, and
// submits it.
type Session struct {
	driver     prompt.Driver
	logger     *slog.Logger
	eval       *expr.Evaluator
	maxSubmits int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxSubmits bounds how many submissions are attempted before Run gives
// up with an *InvalidError.
func WithMaxSubmits(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxSubmits = n
		}
	}
}

// New constructs a Session around driver.
func New(driver prompt.Driver, options ...Option) *Session {
	s := &Session{
		driver:     driver,
		logger:     slog.New(slog.DiscardHandler),
		eval:       expr.New(),
		maxSubmits: defaultMaxSubmits,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

type target struct {
	field formdef.Field
	label string
}

// Run prompts every field and array of def, then submits f. Fields that fail
// on submission are prompted again. It returns the submitted values.
func (s *Session) Run(ctx context.Context, def formdef.Definition, f *form.Form) (map[string]any, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("cli: prompt driver is nil")
	}
	token := f.Subscribe(func(ev form.Event) {
		s.logger.Debug("form event", "kind", ev.Kind, "path", ev.Path.String(), "valid", ev.Status.IsValid)
	})
	defer f.Unsubscribe(token)

	targets := make(map[string]target)
	for _, field := range def.Fields {
		p := fieldpath.MustParse(field.Path)
		t := target{field: field, label: displayLabel(field.Label, field.Path)}
		targets[p.String()] = t
		if err := s.promptField(ctx, f, p, t); err != nil {
			return nil, err
		}
	}
	for _, arr := range def.Arrays {
		if err := s.promptArray(ctx, f, arr, targets); err != nil {
			return nil, err
		}
	}

	for attempt := 1; ; attempt++ {
		var (
			values  map[string]any
			invalid form.ErrorTree
		)
		err := f.Submit(ctx, func(_ context.Context, v map[string]any) error {
			values = v
			return nil
		}, func(_ context.Context, errs form.ErrorTree) error {
			invalid = errs
			return nil
		})
		if err != nil {
			return nil, err
		}
		if values != nil {
			s.logger.Info("form submitted", "attempt", attempt)
			return values, nil
		}

		s.logger.Info("submission rejected", "attempt", attempt, "errors", invalid.Len())
		if attempt >= s.maxSubmits {
			return nil, &InvalidError{Errors: invalid}
		}
		for _, path := range invalid.Paths() {
			t, ok := targets[path]
			if !ok {
				if err := s.driver.Info(ctx, fmt.Sprintf("%s: %s", path, invalid[path])); err != nil {
					return nil, err
				}
				continue
			}
			if err := s.driver.Info(ctx, fmt.Sprintf("Invalid %s: %s", t.label, invalid[path])); err != nil {
				return nil, err
			}
			if err := s.promptField(ctx, f, fieldpath.MustParse(path), t); err != nil {
				return nil, err
			}
		}
	}
}

func (s *Session) promptField(ctx context.Context, f *form.Form, p fieldpath.Path, t target) error {
	if s.disabled(f, t.field) {
		s.logger.Debug("skipping disabled field", "path", p.String())
		return nil
	}
	for {
		value, err := s.ask(ctx, f, p, t)
		if err != nil {
			return err
		}
		if err := f.Change(ctx, p, value); err != nil {
			return err
		}
		if err := f.Blur(ctx, p); err != nil {
			return err
		}
		state := f.FieldState(p)
		if state.Error == "" {
			return nil
		}
		if err := s.driver.Info(ctx, fmt.Sprintf("Invalid %s: %s", t.label, state.Error)); err != nil {
			return err
		}
	}
}

func (s *Session) ask(ctx context.Context, f *form.Form, p fieldpath.Path, t target) (any, error) {
	current, _ := f.GetValue(p)
	field := t.field

	switch field.Input {
	case "confirm":
		def, _ := current.(bool)
		return s.driver.Confirm(ctx, prompt.ConfirmConfig{Message: t.label, Default: def, Help: field.Help})
	case "select":
		idx, err := s.driver.Select(ctx, prompt.SelectConfig{
			Message:      t.label,
			Options:      field.Options,
			DefaultIndex: prompt.IndexOf(field.Options, formatValue(current)),
			Help:         field.Help,
		})
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(field.Options) {
			return "", nil
		}
		return field.Options[idx], nil
	case "password":
		answer, err := s.driver.Password(ctx, prompt.InputConfig{Message: t.label, Help: field.Help})
		if err != nil {
			return nil, err
		}
		if answer == "" {
			if keep, ok := current.(string); ok {
				return keep, nil
			}
		}
		return answer, nil
	default:
		return s.driver.Input(ctx, prompt.InputConfig{
			Message: t.label,
			Default: formatValue(current),
			Help:    field.Help,
		})
	}
}

func (s *Session) promptArray(ctx context.Context, f *form.Form, arr formdef.Array, targets map[string]target) error {
	p := fieldpath.MustParse(arr.Path)
	controller, err := f.FieldArray(p)
	if err != nil {
		return err
	}
	label := displayLabel(arr.Label, arr.Path)

	for i := 0; i < controller.Len(); i++ {
		if err := s.promptItem(ctx, f, p.At(i), i, label, arr, targets); err != nil {
			return err
		}
	}
	for {
		more, err := s.driver.Confirm(ctx, prompt.ConfirmConfig{
			Message: fmt.Sprintf("Add an entry to %s?", label),
		})
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		if err := controller.Append(blankItem(arr)); err != nil {
			return err
		}
		i := controller.Len() - 1
		if err := s.promptItem(ctx, f, p.At(i), i, label, arr, targets); err != nil {
			return err
		}
	}
}

func (s *Session) promptItem(ctx context.Context, f *form.Form, item fieldpath.Path, index int, label string, arr formdef.Array, targets map[string]target) error {
	for _, field := range arr.Fields {
		p := item
		if field.Path != "" {
			p = fieldpath.Join(item, fieldpath.MustParse(field.Path))
		}
		t := target{
			field: field,
			label: fmt.Sprintf("%s #%d %s", label, index+1, displayLabel(field.Label, field.Path)),
		}
		targets[p.String()] = t
		if err := s.promptField(ctx, f, p, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) disabled(f *form.Form, field formdef.Field) bool {
	if field.Disabled {
		return true
	}
	if field.DisabledWhen == "" {
		return false
	}
	off, err := s.eval.Eval(field.DisabledWhen, f.GetValues())
	if err != nil {
		s.logger.Warn("disabledWhen failed, prompting anyway", "path", field.Path, "error", err)
		return false
	}
	return off
}

func blankItem(arr formdef.Array) any {
	item := make(map[string]any, len(arr.Fields))
	for _, field := range arr.Fields {
		var zero any = ""
		if field.Input == "confirm" {
			zero = false
		}
		if field.Path == "" {
			return zero
		}
		_ = fieldpath.Set(item, fieldpath.MustParse(field.Path), zero)
	}
	return item
}

func displayLabel(label, path string) string {
	if label != "" {
		return label
	}
	if path == "" {
		return "value"
	}
	return path
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.DateOnly)
	default:
		return fmt.Sprint(x)
	}
}
