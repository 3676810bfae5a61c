// Package formstate is the entry point for building form sessions. It wires
// declarative definitions to the engine in pkg/form; callers needing finer
// control use the subpackages directly.
package formstate

import (
	"context"
	"io/fs"

	"github.com/goliatone/go-formstate/pkg/defaults"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/formdef"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// Rules maps the names used by a definition's `validate` lists to rules.
type Rules = map[string]validation.Rule

// New constructs an empty form session.
func New(options ...form.Option) *form.Form {
	return form.New(options...)
}

// FromDefinition parses a YAML or JSON definition and builds its form.
func FromDefinition(data []byte, rules Rules, options ...form.Option) (*form.Form, formdef.Definition, error) {
	def, err := formdef.Load(data)
	if err != nil {
		return nil, formdef.Definition{}, err
	}
	f, err := def.Build(rules, options...)
	if err != nil {
		return nil, formdef.Definition{}, err
	}
	return f, def, nil
}

// FromDefinitionFile reads name from fsys and builds its form.
func FromDefinitionFile(fsys fs.FS, name string, rules Rules, options ...form.Option) (*form.Form, formdef.Definition, error) {
	def, err := formdef.LoadFile(fsys, name)
	if err != nil {
		return nil, formdef.Definition{}, err
	}
	f, err := def.Build(rules, options...)
	if err != nil {
		return nil, formdef.Definition{}, err
	}
	return f, def, nil
}

// FromOpenAPI builds the form described by the request body of operationID.
func FromOpenAPI(ctx context.Context, data []byte, operationID string, rules Rules, options ...form.Option) (*form.Form, formdef.Definition, error) {
	def, err := formdef.FromOpenAPI(ctx, data, operationID)
	if err != nil {
		return nil, formdef.Definition{}, err
	}
	f, err := def.Build(rules, options...)
	if err != nil {
		return nil, formdef.Definition{}, err
	}
	return f, def, nil
}

// Seed resolves src, overlays it on the definition's defaults, and installs
// the result in f.
func Seed(ctx context.Context, f *form.Form, def formdef.Definition, src defaults.Source) error {
	return f.Initialize(ctx, defaults.Func(func(ctx context.Context) (map[string]any, error) {
		tree, err := src.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		return defaults.Merge(def.Defaults, tree), nil
	}))
}
