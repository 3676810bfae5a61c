package form

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

var (
	// ErrConcurrentSubmission is returned by Submit while a submission is
	// already running. Nothing is changed.
	ErrConcurrentSubmission = errors.New("form: submission already in progress")
	// ErrDefaultsLoading is returned while the defaults source is resolving.
	ErrDefaultsLoading = errors.New("form: defaults are still loading")
	// ErrAlreadyInitialized is returned by Initialize once defaults resolved.
	ErrAlreadyInitialized = errors.New("form: defaults already initialized")
	// ErrNotArray is returned by FieldArray when the value at the path exists
	// but is not a list.
	ErrNotArray = errors.New("form: value is not an array")
)

// DefaultsResolutionError reports a failed defaults source. The form stays in
// the failed state until Initialize is called again.
type DefaultsResolutionError struct {
	Err error
}

func (e *DefaultsResolutionError) Error() string {
	return fmt.Sprintf("form: resolve defaults: %v", e.Err)
}

func (e *DefaultsResolutionError) Unwrap() error { return e.Err }

// ArrayIndexError reports an array operation addressing a position outside
// the array. The array and its registrations are left unchanged.
type ArrayIndexError struct {
	Op    string
	Path  fieldpath.Path
	Index int
	Len   int
}

func (e *ArrayIndexError) Error() string {
	return fmt.Sprintf("form: %s %s: index %d out of range for length %d", e.Op, e.Path, e.Index, e.Len)
}
