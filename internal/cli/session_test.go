package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/internal/prompt"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/formdef"
)

type stubDriver struct {
	inputs       []string
	passwords    []string
	confirm      []bool
	selectIdx    []int
	messages     []string
	infoMessages []string
	inputPos     int
	passPos      int
	confirmPos   int
	selectPos    int
}

func (s *stubDriver) Input(_ context.Context, cfg prompt.InputConfig) (string, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.inputPos >= len(s.inputs) {
		return "", errors.New("no input scripted")
	}
	val := s.inputs[s.inputPos]
	s.inputPos++
	return val, nil
}

func (s *stubDriver) Password(_ context.Context, cfg prompt.InputConfig) (string, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.passPos >= len(s.passwords) {
		return "", errors.New("no password scripted")
	}
	val := s.passwords[s.passPos]
	s.passPos++
	return val, nil
}

func (s *stubDriver) Confirm(_ context.Context, cfg prompt.ConfirmConfig) (bool, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.confirmPos >= len(s.confirm) {
		return false, errors.New("no confirm scripted")
	}
	val := s.confirm[s.confirmPos]
	s.confirmPos++
	return val, nil
}

func (s *stubDriver) Select(_ context.Context, cfg prompt.SelectConfig) (int, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.selectPos >= len(s.selectIdx) {
		return -1, errors.New("no select scripted")
	}
	val := s.selectIdx[s.selectPos]
	s.selectPos++
	return val, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infoMessages = append(s.infoMessages, msg)
	return nil
}

const signupDefinition = `
mode: onSubmit
defaults:
  username: ""
  email: ""
  newsletter: false
  plan: ""
  phNumbers:
    - number: ""
fields:
  - path: username
    label: Username
    required: Username is required
  - path: email
    label: E-mail
    required: Email is required
    pattern:
      value: '^[^@]+@[^@]+$'
      message: Invalid email format
  - path: age
    label: Age
    valueAsNumber: true
  - path: newsletter
    label: Newsletter
    input: confirm
  - path: frequency
    label: Frequency
    disabledWhen: '!newsletter'
  - path: plan
    label: Plan
    input: select
    options: [free, pro]
arrays:
  - path: phNumbers
    label: Phone numbers
    fields:
      - path: number
        label: Number
        required: Phone number is required
`

func buildSignup(t *testing.T, mode string) (formdef.Definition, *form.Form) {
	t.Helper()
	def, err := formdef.Load([]byte(signupDefinition))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if mode != "" {
		def.Mode = mode
	}
	f, err := def.Build(nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	return def, f
}

func TestRunRepromptsFailingFieldsAfterSubmit(t *testing.T) {
	t.Parallel()

	def, f := buildSignup(t, "")
	driver := &stubDriver{
		inputs:    []string{"", "bruce@example.com", "30", "555", "666", "Bruce"},
		confirm:   []bool{false, true, false},
		selectIdx: []int{1},
	}

	values, err := New(driver).Run(context.Background(), def, f)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := map[string]any{
		"username":   "Bruce",
		"email":      "bruce@example.com",
		"age":        float64(30),
		"newsletter": false,
		"plan":       "pro",
		"phNumbers": []any{
			map[string]any{"number": "555"},
			map[string]any{"number": "666"},
		},
	}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Fatalf("submitted values (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Invalid Username: Username is required"}, driver.infoMessages); diff != "" {
		t.Fatalf("info messages (-want +got):\n%s", diff)
	}
	for _, msg := range driver.messages {
		if msg == "Frequency" {
			t.Fatalf("disabled field was prompted")
		}
	}
	if status := f.Status(); !status.IsSubmitSuccessful || status.SubmitCount != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestRunValidatesWhileTypingInOnChangeMode(t *testing.T) {
	t.Parallel()

	def, f := buildSignup(t, "onChange")
	driver := &stubDriver{
		inputs:    []string{"Bruce", "not-an-email", "bruce@example.com", "", "frequently", "555"},
		confirm:   []bool{true, false},
		selectIdx: []int{0},
	}

	values, err := New(driver).Run(context.Background(), def, f)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"Invalid E-mail: Invalid email format"}, driver.infoMessages); diff != "" {
		t.Fatalf("info messages (-want +got):\n%s", diff)
	}
	if values["frequency"] != "frequently" || values["newsletter"] != true {
		t.Fatalf("enabled field must be submitted: %v", values)
	}
	if _, ok := values["age"]; ok && values["age"] != nil {
		t.Fatalf("blank age must stay empty: %v", values["age"])
	}
}

func TestRunGivesUpAfterMaxSubmits(t *testing.T) {
	t.Parallel()

	def, f := buildSignup(t, "")
	driver := &stubDriver{
		inputs:    []string{"", "bruce@example.com", "", "555"},
		confirm:   []bool{false, false},
		selectIdx: []int{0},
	}

	_, err := New(driver, WithMaxSubmits(1)).Run(context.Background(), def, f)
	var invalid *InvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidError, got %v", err)
	}
	if diff := cmp.Diff([]string{"username"}, invalid.Errors.Paths()); diff != "" {
		t.Fatalf("failing paths (-want +got):\n%s", diff)
	}
	if f.Status().IsSubmitSuccessful {
		t.Fatalf("invalid form must not be marked successful")
	}
}

func TestRunPropagatesDriverErrors(t *testing.T) {
	t.Parallel()

	def, f := buildSignup(t, "")
	driver := &stubDriver{}
	if _, err := New(driver).Run(context.Background(), def, f); err == nil {
		t.Fatalf("expected the driver error")
	}
}

func TestBlankItem(t *testing.T) {
	t.Parallel()

	scalar := formdef.Array{Fields: []formdef.Field{{Label: "Phone"}}}
	if got := blankItem(scalar); got != "" {
		t.Fatalf("scalar template must produce an empty string, got %v", got)
	}
	nested := formdef.Array{Fields: []formdef.Field{{Path: "number"}, {Path: "primary", Input: "confirm"}}}
	want := map[string]any{"number": "", "primary": false}
	if diff := cmp.Diff(want, blankItem(nested)); diff != "" {
		t.Fatalf("blank item (-want +got):\n%s", diff)
	}
}
