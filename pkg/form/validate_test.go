package form_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/registry"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// blockingRule fails values equal to target after release is closed, and
// passes everything else immediately.
func blockingRule(target string, started chan<- struct{}, release <-chan struct{}) validation.Rule {
	return validation.Func("emailAvailable", func(ctx context.Context, v any, _ map[string]any) (string, error) {
		if v != target {
			return "", nil
		}
		started <- struct{}{}
		select {
		case <-release:
			return "Email is taken", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}

func TestStaleAsyncResultIsDiscarded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	f := form.New(form.WithDefaults(map[string]any{"email": ""}))
	f.Register(p("email"), []validation.Rule{blockingRule("taken@example.com", started, release)}, registry.Options{})

	if err := f.SetValue(ctx, p("email"), "taken@example.com", form.SetOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := f.ValidateField(ctx, p("email"))
		done <- err
	}()
	<-started

	status := f.Status()
	if !status.IsValidating || status.IsValid {
		t.Fatalf("in-flight validation must keep the form invalid: %+v", status)
	}
	if diff := cmp.Diff([]string{"email"}, status.ValidatingFields); diff != "" {
		t.Fatalf("ValidatingFields (-want +got):\n%s", diff)
	}
	if !f.FieldState(p("email")).Validating {
		t.Fatalf("field state must report validating")
	}

	// newer input validates immediately and wins
	if err := f.SetValue(ctx, p("email"), "free@example.com", form.SetOptions{Validate: true}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("ValidateField returned error: %v", err)
	}

	if f.Errors().Len() != 0 {
		t.Fatalf("stale result overwrote the fresh one: %v", f.Errors())
	}
	if status := f.Status(); status.IsValidating || !status.IsValid {
		t.Fatalf("expected a settled valid form: %+v", status)
	}
}

func TestValueChangeWithoutValidationDiscardsResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	f := form.New(form.WithDefaults(map[string]any{"email": "taken@example.com"}))
	f.Register(p("email"), []validation.Rule{blockingRule("taken@example.com", started, release)}, registry.Options{})

	done := make(chan string, 1)
	go func() {
		msg, _ := f.ValidateField(ctx, p("email"))
		done <- msg
	}()
	<-started
	if err := f.SetValue(ctx, p("email"), "other@example.com", form.SetOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	close(release)

	if msg := <-done; msg != "" {
		t.Fatalf("result for an outdated value must be discarded, got %q", msg)
	}
	if f.Errors().Len() != 0 {
		t.Fatalf("unexpected errors: %v", f.Errors())
	}
}

func TestValidateAllWaitsForInflight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	f := form.New(form.WithDefaults(map[string]any{"email": "taken@example.com"}))
	f.Register(p("email"), []validation.Rule{blockingRule("taken@example.com", started, release)}, registry.Options{})

	result := make(chan bool, 1)
	go func() {
		valid, err := f.ValidateAll(ctx)
		if err != nil {
			t.Errorf("ValidateAll returned error: %v", err)
		}
		result <- valid
	}()
	<-started

	select {
	case <-result:
		t.Fatalf("ValidateAll returned while a rule was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if valid := <-result; valid {
		t.Fatalf("expected ValidateAll to report the taken email")
	}
	if msg, _ := f.Errors().Get(p("email")); msg != "Email is taken" {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestValidateAllIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newYoutubeForm(t).form
	if err := f.SetValue(ctx, p("email"), "x@baddomain.com", form.SetOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}

	firstValid, err := f.ValidateAll(ctx)
	if err != nil {
		t.Fatalf("ValidateAll returned error: %v", err)
	}
	first := f.Errors()
	secondValid, err := f.ValidateAll(ctx)
	if err != nil {
		t.Fatalf("ValidateAll returned error: %v", err)
	}

	if firstValid != secondValid {
		t.Fatalf("validity changed between runs")
	}
	if diff := cmp.Diff(first, f.Errors()); diff != "" {
		t.Fatalf("error tree changed between runs (-first +second):\n%s", diff)
	}
	want := form.ErrorTree{
		"email":              "This domain is not supported",
		"channel":            "Channel is required",
		"dob":                "Date of birth is required",
		"phNumbers.0.number": "Phone number is required",
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Fatalf("error tree (-want +got):\n%s", diff)
	}
}

func TestRuleErrorLeavesEntryUnchanged(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	f := form.New(form.WithDefaults(map[string]any{"email": "taken@example.com"}))
	f.Register(p("email"), []validation.Rule{blockingRule("taken@example.com", started, release)}, registry.Options{})
	f.SetError(p("email"), "previous")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.ValidateAll(ctx)
		done <- err
	}()
	<-started
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if msg, _ := f.Errors().Get(p("email")); msg != "previous" {
		t.Fatalf("aborted validation must keep the entry, got %q", msg)
	}
	if f.Status().IsValidating {
		t.Fatalf("aborted validation must not stay in flight")
	}
}

func TestUnregisteredFieldValidationIsNoop(t *testing.T) {
	t.Parallel()

	f := form.New()
	msg, err := f.ValidateField(context.Background(), p("nothing"))
	if err != nil || msg != "" {
		t.Fatalf("ValidateField on an unregistered path = %q, %v", msg, err)
	}
}

// gatedRule holds values equal to gate until release is closed and then
// reports gateMsg for them. Values in rejected fail immediately with their
// message; everything else passes.
func gatedRule(gate, gateMsg string, rejected map[string]string, started chan<- struct{}, release <-chan struct{}) validation.Rule {
	return validation.Func("gated", func(ctx context.Context, v any, _ map[string]any) (string, error) {
		s, _ := v.(string)
		if s != gate {
			return rejected[s], nil
		}
		started <- struct{}{}
		select {
		case <-release:
			return gateMsg, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}

func TestSubmitValidatesValueChangedDuringCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	f := form.New(form.WithDefaults(map[string]any{"email": "slow@example.com"}), form.WithMode(form.OnSubmit))
	f.Register(p("email"), []validation.Rule{
		gatedRule("slow@example.com", "", map[string]string{"admin@example.com": "Enter a different email address"}, started, release),
	}, registry.Options{})

	var submitted map[string]any
	var rejected form.ErrorTree
	done := make(chan error, 1)
	go func() {
		done <- f.Submit(ctx,
			func(_ context.Context, values map[string]any) error {
				submitted = values
				return nil
			},
			func(_ context.Context, errs form.ErrorTree) error {
				rejected = errs
				return nil
			},
		)
	}()
	<-started
	if err := f.SetValue(ctx, p("email"), "admin@example.com", form.SetOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if submitted != nil {
		t.Fatalf("value changed mid-check was submitted unvalidated: %v", submitted)
	}
	if diff := cmp.Diff(form.ErrorTree{"email": "Enter a different email address"}, rejected); diff != "" {
		t.Fatalf("rejected errors (-want +got):\n%s", diff)
	}
	status := f.Status()
	if status.IsSubmitSuccessful || status.IsValid || status.IsValidating {
		t.Fatalf("expected a settled failed submission: %+v", status)
	}
}

func TestSubmitRevalidatesItemMovedByRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	f := form.New(form.WithDefaults(map[string]any{
		"phNumbers": []any{
			map[string]any{"number": "555-0100"},
			map[string]any{"number": "555-0199"},
		},
	}))
	arr, err := f.FieldArray(p("phNumbers"), registry.ItemField{
		Path:  p("number"),
		Rules: []validation.Rule{gatedRule("555-0199", "Number is blocked", nil, started, release)},
	})
	if err != nil {
		t.Fatalf("FieldArray returned error: %v", err)
	}

	var submitted map[string]any
	var rejected form.ErrorTree
	done := make(chan error, 1)
	go func() {
		done <- f.Submit(ctx,
			func(_ context.Context, values map[string]any) error {
				submitted = values
				return nil
			},
			func(_ context.Context, errs form.ErrorTree) error {
				rejected = errs
				return nil
			},
		)
	}()
	<-started
	if err := arr.Remove(0); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if submitted != nil {
		t.Fatalf("moved item was submitted without a verdict: %v", submitted)
	}
	if diff := cmp.Diff(form.ErrorTree{"phNumbers.0.number": "Number is blocked"}, rejected); diff != "" {
		t.Fatalf("rejected errors (-want +got):\n%s", diff)
	}
}

func TestValidateAllSettlesFieldLeftStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	f := form.New(form.WithDefaults(map[string]any{"email": "taken@example.com"}))
	f.Register(p("email"), []validation.Rule{
		gatedRule("taken@example.com", "Email is taken", map[string]string{"admin@example.com": "Enter a different email address"}, started, release),
	}, registry.Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.ValidateField(ctx, p("email"))
	}()
	<-started
	if err := f.SetValue(ctx, p("email"), "admin@example.com", form.SetOptions{}); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	close(release)
	<-done

	if f.Errors().Len() != 0 {
		t.Fatalf("stale result must not be recorded: %v", f.Errors())
	}
	valid, err := f.ValidateAll(ctx)
	if err != nil {
		t.Fatalf("ValidateAll returned error: %v", err)
	}
	if valid {
		t.Fatalf("ValidateAll must judge the current value")
	}
	if msg, _ := f.Errors().Get(p("email")); msg != "Enter a different email address" {
		t.Fatalf("email error = %q", msg)
	}
}
