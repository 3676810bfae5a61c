// Package form is the form state engine. A Form owns the value tree of one
// session and derives dirty, touched, validity, and submission status from
// it. Input bindings call Register, SetValue, Change, and Blur; renderers
// subscribe to change events and read Status.
//
// All methods are safe for concurrent use. Validation rules run outside the
// form lock, so a slow async rule never blocks unrelated fields.
package form

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goliatone/go-formstate/pkg/bus"
	"github.com/goliatone/go-formstate/pkg/condition"
	"github.com/goliatone/go-formstate/pkg/defaults"
	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/registry"
	"github.com/goliatone/go-formstate/pkg/validation"
	"github.com/goliatone/go-formstate/pkg/values"
)

type loadState int

const (
	loadReady loadState = iota
	loadPending
	loadFailed
)

// flight is one running validation of a field.
type flight struct {
	path fieldpath.Path
	seq  uint64
	done chan struct{}
}

// Form is a single form session.
type Form struct {
	mode           Mode
	reValidateMode Mode
	logger         *slog.Logger
	newKey         func() string
	strictArrays   bool
	evaluator      condition.Evaluator
	initial        map[string]any

	events *bus.Bus[Event]

	mu       sync.Mutex
	store    *values.Store
	reg      *registry.Registry
	errors   ErrorTree
	touched  map[string]bool
	dirty    map[string]bool
	seq      map[string]uint64
	counter  uint64
	inflight map[*flight]struct{}
	// unsettled holds fields whose last result was discarded as stale with
	// no newer validation running.
	unsettled map[string]bool

	phase            Phase
	submitted        bool
	submitSuccessful bool
	submitCount      int

	load        loadState
	loadErr     error
	initialized bool
}

// SetOptions controls the side effects of SetValue.
type SetOptions struct {
	// Validate runs the field's rules after the write.
	Validate bool
	// Dirty records the path in Status().DirtyFields while it differs from
	// its default.
	Dirty bool
	// Touch marks the path as touched.
	Touch bool
}

// New constructs a form. Without WithDefaults or Initialize the form is ready
// with an empty default tree.
func New(options ...Option) *Form {
	f := &Form{reValidateMode: OnChange}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(f)
	}
	f.applyDefaults()

	f.events = bus.New[Event]()
	f.store = values.NewStore(defaults.Normalize(f.initial))
	f.reg = registry.New(f.newKey)
	f.errors = make(ErrorTree)
	f.touched = make(map[string]bool)
	f.dirty = make(map[string]bool)
	f.seq = make(map[string]uint64)
	f.inflight = make(map[*flight]struct{})
	f.unsettled = make(map[string]bool)
	return f
}

// Initialize resolves src and installs the result as both the defaults and the
// current values. Edits made while a deferred source is loading are
// overwritten. A failure leaves the form in a terminal state reported by
// Status().LoadError until Initialize is called again.
func (f *Form) Initialize(ctx context.Context, src defaults.Source) error {
	if src == nil {
		return fmt.Errorf("form: defaults source is nil")
	}
	f.mu.Lock()
	switch {
	case f.load == loadPending:
		f.mu.Unlock()
		return ErrDefaultsLoading
	case f.initialized:
		f.mu.Unlock()
		return ErrAlreadyInitialized
	}
	deferred := defaults.IsDeferred(src)
	var ev Event
	if deferred {
		f.load = loadPending
		f.loadErr = nil
		ev = f.eventLocked(EventDefaults, nil)
	}
	f.mu.Unlock()
	if deferred {
		f.emit(ev)
	}

	tree, err := src.Resolve(ctx)

	f.mu.Lock()
	if err != nil {
		resolveErr := &DefaultsResolutionError{Err: err}
		f.load = loadFailed
		f.loadErr = resolveErr
		ev = f.eventLocked(EventDefaults, nil)
		f.mu.Unlock()
		f.logger.Error("defaults resolution failed", "error", err)
		f.emit(ev)
		return resolveErr
	}
	f.load = loadReady
	f.loadErr = nil
	f.initialized = true
	f.resetLocked(defaults.Normalize(tree))
	ev = f.eventLocked(EventDefaults, nil)
	f.mu.Unlock()
	f.emit(ev)
	return nil
}

// GetValue returns a copy of the current value at p. Unset paths and
// out-of-bounds indices report false.
func (f *Form) GetValue(p fieldpath.Path) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.Get(p)
}

// GetValues returns a copy of the whole value tree, or a nested projection
// holding only paths.
func (f *Form) GetValues(paths ...fieldpath.Path) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(paths) == 0 {
		return f.store.Snapshot()
	}
	return f.store.Project(paths...)
}

// SetValue writes value at p. A registered field first has its input
// sanitised and coerced according to its options; input that fails coercion
// is stored as given and reported by validation. Subscribers are always
// notified.
func (f *Form) SetValue(ctx context.Context, p fieldpath.Path, value any, opts SetOptions) error {
	ev, err := f.write(p, defaults.NormalizeValue(value), opts)
	if err != nil {
		return err
	}
	f.emit(ev)

	if opts.Validate {
		if _, err := f.ValidateField(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (f *Form) write(p fieldpath.Path, value any, opts SetOptions) (Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reg, ok := f.reg.Lookup(p); ok {
		value = prepareInput(reg, value)
	}
	if err := f.store.Set(p, value); err != nil {
		return Event{}, fmt.Errorf("form: set %s: %w", p, err)
	}
	key := p.String()
	if opts.Touch {
		f.touched[key] = true
	}
	if opts.Dirty {
		f.dirty[key] = true
	}
	f.syncArraysLocked(p)
	return f.eventLocked(EventValue, p), nil
}

// Change records user input at p: the value is written and marked dirty, then
// validated when the current mode asks for it.
func (f *Form) Change(ctx context.Context, p fieldpath.Path, value any) error {
	if err := f.SetValue(ctx, p, value, SetOptions{Dirty: true}); err != nil {
		return err
	}
	if !f.shouldValidate(p, OnChange) {
		return nil
	}
	return f.validateWithDeps(ctx, p)
}

// Blur marks p as touched and validates it when the current mode asks for it.
func (f *Form) Blur(ctx context.Context, p fieldpath.Path) error {
	f.mu.Lock()
	f.touched[p.String()] = true
	ev := f.eventLocked(EventTouched, p)
	f.mu.Unlock()
	f.emit(ev)

	if !f.shouldValidate(p, OnBlur) {
		return nil
	}
	return f.validateWithDeps(ctx, p)
}

// shouldValidate applies the mode before the first submission and the
// re-validate mode after it. trigger is OnChange or OnBlur.
func (f *Form) shouldValidate(p fieldpath.Path, trigger Mode) bool {
	f.mu.Lock()
	submitted := f.submitted
	touched := f.touched[p.String()]
	f.mu.Unlock()

	mode := f.mode
	if submitted && mode != All {
		mode = f.reValidateMode
	}
	switch mode {
	case All:
		return true
	case OnChange, OnBlur:
		return mode == trigger
	case OnTouched:
		return trigger == OnBlur || touched
	default:
		return false
	}
}

// Reset restores the defaults, or installs newDefaults when it is not nil.
// Dirty, touched, errors, in-flight validations, array identity keys, and
// submission flags all start over.
func (f *Form) Reset(newDefaults map[string]any) {
	f.mu.Lock()
	if newDefaults != nil {
		f.resetLocked(defaults.Normalize(newDefaults))
	} else {
		f.resetLocked(nil)
	}
	ev := f.eventLocked(EventReset, nil)
	f.mu.Unlock()
	f.emit(ev)
}

func (f *Form) resetLocked(tree map[string]any) {
	if tree != nil {
		f.store.Reset(tree)
	} else {
		f.store.Restore()
	}
	f.errors = make(ErrorTree)
	f.touched = make(map[string]bool)
	f.dirty = make(map[string]bool)
	f.seq = make(map[string]uint64)
	f.inflight = make(map[*flight]struct{})
	f.unsettled = make(map[string]bool)
	for _, arr := range f.reg.Arrays() {
		f.reg.Regenerate(arr, max(f.store.Len(arr), 0))
	}
	f.phase = PhaseIdle
	f.submitted = false
	f.submitSuccessful = false
	f.submitCount = 0
}

// Register binds rules and options to p. Registering an existing path updates
// it in place and keeps its ID.
func (f *Form) Register(p fieldpath.Path, rules []validation.Rule, opts registry.Options) registry.Registration {
	f.mu.Lock()
	reg := f.reg.Register(p, rules, opts)
	ev := f.eventLocked(EventRegister, p)
	f.mu.Unlock()
	f.emit(ev)
	return reg
}

// Unregister drops the registration at exactly p together with its error,
// dirty, and touched entries. Sibling and child paths are kept.
func (f *Form) Unregister(p fieldpath.Path) bool {
	f.mu.Lock()
	removed := f.reg.Unregister(p)
	key := p.String()
	delete(f.errors, key)
	delete(f.dirty, key)
	delete(f.touched, key)
	delete(f.seq, key)
	delete(f.unsettled, key)
	ev := f.eventLocked(EventRegister, p)
	f.mu.Unlock()
	f.emit(ev)
	return removed
}

// Registrations lists the registered fields in registration order.
func (f *Form) Registrations() []registry.Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reg.All()
}

// Dirty reports whether the value at p deep-differs from its default.
func (f *Form) Dirty(p fieldpath.Path) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.Changed(p)
}

// Touched reports whether p has been blurred or touched through SetValue.
func (f *Form) Touched(p fieldpath.Path) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touched[p.String()]
}

// Errors returns a copy of the current ErrorTree.
func (f *Form) Errors() ErrorTree {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors.clone()
}

// Status returns the derived status snapshot.
func (f *Form) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked()
}

// FieldState returns the status of a single field.
func (f *Form) FieldState(p fieldpath.Path) FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := p.String()
	msg, invalid := f.errors[key]
	state := FieldState{
		Invalid: invalid,
		Error:   msg,
		Dirty:   f.store.Changed(p),
		Touched: f.touched[key],
	}
	state.Validating = f.validatingLocked(p)
	return state
}

func (f *Form) validatingLocked(p fieldpath.Path) bool {
	for fl := range f.inflight {
		if fl.path.Equal(p) {
			return true
		}
	}
	return false
}

// Subscribe registers fn for change events. With filters, fn only receives
// events on paths overlapping a filter plus form-wide events.
func (f *Form) Subscribe(fn func(Event), filters ...fieldpath.Path) bus.Token {
	return f.events.Subscribe(fn, filters...)
}

// Unsubscribe removes a subscription.
func (f *Form) Unsubscribe(token bus.Token) bool {
	return f.events.Unsubscribe(token)
}

func (f *Form) statusLocked() Status {
	dirty := make(map[string]bool, len(f.dirty))
	for key := range f.dirty {
		p, err := fieldpath.Parse(key)
		if err != nil {
			continue
		}
		if f.store.Changed(p) {
			dirty[key] = true
		}
	}
	validating := make(map[string]bool, len(f.inflight))
	for fl := range f.inflight {
		validating[fl.path.String()] = true
	}

	changed := make([]string, 0)
	for _, p := range f.store.Diff() {
		changed = append(changed, p.String())
	}

	st := Status{
		Phase:              f.phase,
		DirtyFields:        sortedKeys(dirty),
		ChangedFields:      changed,
		TouchedFields:      sortedKeys(f.touched),
		ValidatingFields:   sortedKeys(validating),
		Errors:             f.errors.clone(),
		IsDirty:            f.store.Changed(fieldpath.Path{}),
		IsValidating:       len(f.inflight) > 0,
		IsSubmitting:       f.phase == PhaseSubmitting,
		IsSubmitted:        f.submitted,
		IsSubmitSuccessful: f.submitSuccessful,
		SubmitCount:        f.submitCount,
		Loading:            f.load == loadPending,
		LoadError:          f.loadErr,
	}
	st.IsValid = len(f.errors) == 0 && !st.IsValidating
	return st
}

func prepareInput(reg registry.Registration, value any) any {
	if reg.Options.Sanitize {
		value = validation.Sanitize(value)
	}
	kind := reg.Options.Coercion()
	if kind == validation.CoerceNone {
		return value
	}
	coerced, msg := validation.Coerce(value, kind, reg.Options.DateLayout)
	if msg != "" {
		return value
	}
	return coerced
}
