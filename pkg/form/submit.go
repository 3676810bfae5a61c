package form

import (
	"context"
	"fmt"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

// ValidHandler receives the submitted values. Disabled fields are omitted.
type ValidHandler func(ctx context.Context, values map[string]any) error

// InvalidHandler receives the ErrorTree of a failed submission.
type InvalidHandler func(ctx context.Context, errs ErrorTree) error

// Submit validates every field and hands the outcome to onValid or onInvalid.
// Either handler may be nil. A successful onValid moves the form to
// PhaseSubmitSuccess and increments SubmitCount; invalid input or a handler
// error moves it to PhaseSubmitError. Handler errors are returned wrapped.
//
// Submit is rejected with ErrConcurrentSubmission while another submission
// runs, and with ErrDefaultsLoading or the resolution error while defaults are
// not installed. A rejected call changes nothing. The form is never reset
// automatically.
func (f *Form) Submit(ctx context.Context, onValid ValidHandler, onInvalid InvalidHandler) error {
	f.mu.Lock()
	switch {
	case f.phase == PhaseSubmitting:
		f.mu.Unlock()
		return ErrConcurrentSubmission
	case f.load == loadPending:
		f.mu.Unlock()
		return ErrDefaultsLoading
	case f.load == loadFailed:
		err := f.loadErr
		f.mu.Unlock()
		return err
	}
	f.phase = PhaseSubmitting
	ev := f.eventLocked(EventSubmit, nil)
	f.mu.Unlock()
	f.emit(ev)

	valid, err := f.ValidateAll(ctx)
	if err != nil {
		f.finishSubmit(false)
		return fmt.Errorf("form: submit: %w", err)
	}

	var handlerErr error
	if valid {
		if onValid != nil {
			handlerErr = onValid(ctx, f.submitValues())
		}
	} else if onInvalid != nil {
		handlerErr = onInvalid(ctx, f.Errors())
	}

	f.finishSubmit(valid && handlerErr == nil)
	if handlerErr != nil {
		return fmt.Errorf("form: submit handler: %w", handlerErr)
	}
	return nil
}

func (f *Form) finishSubmit(success bool) {
	f.mu.Lock()
	f.submitted = true
	f.submitSuccessful = success
	if success {
		f.phase = PhaseSubmitSuccess
		f.submitCount++
	} else {
		f.phase = PhaseSubmitError
	}
	ev := f.eventLocked(EventSubmit, nil)
	f.mu.Unlock()
	f.emit(ev)
}

// submitValues snapshots the tree without the values of disabled fields.
// Disabled array items are set to nil so later indices keep their position.
func (f *Form) submitValues() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := f.store.Snapshot()
	var disabled []fieldpath.Path
	for _, reg := range f.reg.All() {
		if f.disabledLocked(reg, snapshot) {
			disabled = append(disabled, reg.Path)
		}
	}
	for _, p := range disabled {
		omit(snapshot, p)
	}
	return snapshot
}

func omit(tree map[string]any, p fieldpath.Path) {
	last, ok := p.Last()
	if !ok {
		return
	}
	parent, ok := fieldpath.Get(tree, p.Parent())
	if !ok {
		return
	}
	switch node := parent.(type) {
	case map[string]any:
		delete(node, last.Key())
	case []any:
		if last.IsIndex() && last.Index() < len(node) {
			node[last.Index()] = nil
		}
	}
}
