package formstate_test

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	formstate "github.com/goliatone/go-formstate"
	"github.com/goliatone/go-formstate/pkg/defaults"
	"github.com/goliatone/go-formstate/pkg/form"
)

const definition = `
defaults:
  username: ""
  social:
    twitter: ""
    facebook: ""
fields:
  - path: username
    required: Username is required
  - path: social.twitter
`

func TestFromDefinitionFileAndSeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fsys := fstest.MapFS{"form.yaml": {Data: []byte(definition)}}
	f, def, err := formstate.FromDefinitionFile(fsys, "form.yaml", nil)
	if err != nil {
		t.Fatalf("FromDefinitionFile returned error: %v", err)
	}

	err = formstate.Seed(ctx, f, def, defaults.FromJSON([]byte(`{"username":"Bret","social":{"twitter":"@bret"}}`)))
	if err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}
	want := map[string]any{
		"username": "Bret",
		"social":   map[string]any{"twitter": "@bret", "facebook": ""},
	}
	if diff := cmp.Diff(want, f.GetValues()); diff != "" {
		t.Fatalf("seeded values (-want +got):\n%s", diff)
	}
	if f.Status().IsDirty {
		t.Fatalf("seeded values are defaults, not edits")
	}
}

func TestFromDefinitionPropagatesErrors(t *testing.T) {
	t.Parallel()

	if _, _, err := formstate.FromDefinition([]byte("mode: sometimes"), nil); err == nil {
		t.Fatalf("expected an invalid mode error")
	}
	if _, _, err := formstate.FromDefinition([]byte("fields:\n  - path: email\n    validate: [missing]\n"), nil); err == nil {
		t.Fatalf("expected an unknown rule error")
	}
}

func TestSeedFailureIsReported(t *testing.T) {
	t.Parallel()

	f, def, err := formstate.FromDefinition([]byte(definition), nil, form.WithMode(form.OnChange))
	if err != nil {
		t.Fatalf("FromDefinition returned error: %v", err)
	}
	cause := errors.New("timeout")
	err = formstate.Seed(context.Background(), f, def, defaults.Func(func(context.Context) (map[string]any, error) {
		return nil, cause
	}))
	if !errors.Is(err, cause) {
		t.Fatalf("expected the source error, got %v", err)
	}
	if f.Status().LoadError == nil {
		t.Fatalf("expected a load error on the form")
	}
}
