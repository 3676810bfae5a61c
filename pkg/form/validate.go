package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/registry"
	"github.com/goliatone/go-formstate/pkg/validation"
	"github.com/goliatone/go-formstate/pkg/values"
)

// ValidateField runs the rules registered at p in declared order and updates
// only p's entry in the ErrorTree. It returns the field's message after the
// run. A result that went stale while the rules ran (the value changed, or a
// newer validation of the same field started) is discarded. A rule error
// leaves the entry unchanged and is returned wrapped.
func (f *Form) ValidateField(ctx context.Context, p fieldpath.Path) (string, error) {
	f.mu.Lock()
	key := p.String()
	reg, ok := f.reg.Lookup(p)
	if !ok {
		delete(f.unsettled, key)
		msg := f.errors[key]
		f.mu.Unlock()
		return msg, nil
	}
	snapshot := f.store.Snapshot()
	if f.disabledLocked(reg, snapshot) {
		_, had := f.errors[key]
		delete(f.errors, key)
		delete(f.unsettled, key)
		var ev Event
		if had {
			ev = f.eventLocked(EventValidation, p)
		}
		f.mu.Unlock()
		if had {
			f.emit(ev)
		}
		return "", nil
	}

	value, _ := fieldpath.Get(snapshot, p)
	f.counter++
	fl := &flight{path: fieldpath.Join(p), seq: f.counter, done: make(chan struct{})}
	f.seq[key] = fl.seq
	f.inflight[fl] = struct{}{}
	ev := f.eventLocked(EventValidation, p)
	f.mu.Unlock()
	f.emit(ev)

	result, err := check(ctx, reg, values.Clone(value), snapshot)

	f.mu.Lock()
	close(fl.done)
	_, live := f.inflight[fl]
	delete(f.inflight, fl)
	key = fl.path.String()
	current, _ := f.store.Get(fl.path)
	stale := !live || f.seq[key] != fl.seq || !values.Equal(current, value)
	switch {
	case err != nil:
	case stale:
		if live && !f.validatingLocked(fl.path) {
			f.unsettled[key] = true
		}
		f.logger.Debug("discarding stale validation result", "path", key, "message", result.Message)
	case result.Valid():
		delete(f.errors, key)
		delete(f.unsettled, key)
	default:
		f.errors[key] = result.Message
		delete(f.unsettled, key)
	}
	msg := f.errors[key]
	ev = f.eventLocked(EventValidation, fl.path)
	f.mu.Unlock()
	f.emit(ev)

	if err != nil {
		return msg, fmt.Errorf("form: validate %s: %w", key, err)
	}
	return msg, nil
}

// ValidateAll validates every registered field concurrently, then waits for
// any validation still in flight. Fields whose result went stale meanwhile
// are validated again against their current value, so the verdict always
// covers the values held when ValidateAll returns. It reports whether the
// ErrorTree is empty. Disabled fields are skipped and their errors cleared.
func (f *Form) ValidateAll(ctx context.Context) (bool, error) {
	f.mu.Lock()
	regs := f.reg.All()
	f.mu.Unlock()

	paths := make([]fieldpath.Path, 0, len(regs))
	for _, reg := range regs {
		paths = append(paths, reg.Path)
	}
	for len(paths) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := f.validatePaths(ctx, paths); err != nil {
			return false, err
		}
		if err := f.awaitInflight(ctx); err != nil {
			return false, err
		}
		paths = f.takeUnsettled()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errors) == 0, nil
}

func (f *Form) validatePaths(ctx context.Context, paths []fieldpath.Path) error {
	errs := make([]error, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.ValidateField(ctx, p)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// takeUnsettled returns the registered fields left without a current verdict.
func (f *Form) takeUnsettled() []fieldpath.Path {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fieldpath.Path, 0, len(f.unsettled))
	for key := range f.unsettled {
		p, err := fieldpath.Parse(key)
		if err != nil {
			delete(f.unsettled, key)
			continue
		}
		if _, ok := f.reg.Lookup(p); !ok {
			delete(f.unsettled, key)
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (f *Form) awaitInflight(ctx context.Context) error {
	for {
		f.mu.Lock()
		pending := make([]chan struct{}, 0, len(f.inflight))
		for fl := range f.inflight {
			pending = append(pending, fl.done)
		}
		f.mu.Unlock()
		if len(pending) == 0 {
			return nil
		}
		for _, done := range pending {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (f *Form) validateWithDeps(ctx context.Context, p fieldpath.Path) error {
	_, err := f.ValidateField(ctx, p)
	errs := []error{err}

	f.mu.Lock()
	reg, _ := f.reg.Lookup(p)
	f.mu.Unlock()
	for _, dep := range reg.Options.Deps {
		dp, perr := fieldpath.Parse(dep)
		if perr != nil {
			f.logger.Warn("ignoring invalid dependency path", "path", p.String(), "dep", dep, "error", perr)
			continue
		}
		_, derr := f.ValidateField(ctx, dp)
		errs = append(errs, derr)
	}
	return errors.Join(errs...)
}

// SetError records a manual error at p. An empty message clears it.
func (f *Form) SetError(p fieldpath.Path, message string) {
	f.mu.Lock()
	if message == "" {
		delete(f.errors, p.String())
	} else {
		f.errors[p.String()] = message
	}
	ev := f.eventLocked(EventValidation, p)
	f.mu.Unlock()
	f.emit(ev)
}

// ClearErrors removes the errors at and below each path, or every error when
// called without paths.
func (f *Form) ClearErrors(paths ...fieldpath.Path) {
	f.mu.Lock()
	if len(paths) == 0 {
		f.errors = make(ErrorTree)
	}
	for key := range f.errors {
		kp, err := fieldpath.Parse(key)
		if err != nil {
			continue
		}
		for _, p := range paths {
			if kp.HasPrefix(p) {
				delete(f.errors, key)
				break
			}
		}
	}
	var at fieldpath.Path
	if len(paths) == 1 {
		at = paths[0]
	}
	ev := f.eventLocked(EventValidation, at)
	f.mu.Unlock()
	f.emit(ev)
}

func (f *Form) disabledLocked(reg registry.Registration, snapshot map[string]any) bool {
	if reg.Options.Disabled {
		return true
	}
	if reg.Options.DisabledWhen == "" {
		return false
	}
	disabled, err := f.evaluator.Eval(reg.Options.DisabledWhen, snapshot)
	if err != nil {
		f.logger.Warn("disabledWhen evaluation failed",
			"path", reg.Path.String(),
			"expression", reg.Options.DisabledWhen,
			"error", err,
		)
		return false
	}
	return disabled
}

func check(ctx context.Context, reg registry.Registration, value any, snapshot map[string]any) (validation.Result, error) {
	if kind := reg.Options.Coercion(); kind != validation.CoerceNone {
		coerced, msg := validation.Coerce(value, kind, reg.Options.DateLayout)
		if msg != "" {
			return validation.Result{Rule: validation.RuleCoerce, Message: msg}, nil
		}
		value = coerced
	}
	return validation.Run(ctx, value, snapshot, reg.Rules)
}
