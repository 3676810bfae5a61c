package prompt

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/AlecAivazis/survey/v2/terminal"
)

func TestInfoWritesToOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := NewSurvey(WithOutput(&buf))
	if err := d.Info(context.Background(), "Username is required"); err != nil {
		t.Fatalf("Info returned error: %v", err)
	}
	if got := buf.String(); got != "Username is required\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestCanceledContextSkipsPrompts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewSurvey()

	if _, err := d.Input(ctx, InputConfig{Message: "Username"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Input: expected context.Canceled, got %v", err)
	}
	if _, err := d.Confirm(ctx, ConfirmConfig{Message: "Add?"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Confirm: expected context.Canceled, got %v", err)
	}
	if _, err := d.Select(ctx, SelectConfig{Message: "Plan", Options: []string{"free"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Select: expected context.Canceled, got %v", err)
	}
}

func TestInterruptIsTranslated(t *testing.T) {
	t.Parallel()

	if err := translateSurveyErr(terminal.InterruptErr); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	other := errors.New("tty closed")
	if err := translateSurveyErr(other); err != other {
		t.Fatalf("unexpected translation %v", err)
	}
}

func TestIndexOf(t *testing.T) {
	t.Parallel()

	options := []string{"free", "pro"}
	if IndexOf(options, "pro") != 1 || IndexOf(options, "team") != -1 {
		t.Fatalf("unexpected IndexOf results")
	}
}
