// Package formdef loads declarative form definitions and builds configured
// forms from them. Definitions are YAML or JSON documents, or are derived from
// the request body schema of an OpenAPI operation.
package formdef

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formstate/pkg/condition/expr"
	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/registry"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// Definition describes a form: its validation modes, default values, fields,
// and array fields.
type Definition struct {
	Name           string         `json:"name" yaml:"name"`
	Mode           string         `json:"mode" yaml:"mode"`
	ReValidateMode string         `json:"reValidateMode" yaml:"reValidateMode"`
	Defaults       map[string]any `json:"defaults" yaml:"defaults"`
	Fields         []Field        `json:"fields" yaml:"fields"`
	Arrays         []Array        `json:"arrays" yaml:"arrays"`
}

// Field is a single registered input. Rules are enabled by presence; Required
// is enabled by a non-empty message.
type Field struct {
	Path  string `json:"path" yaml:"path"`
	Label string `json:"label" yaml:"label"`
	// Input hints the prompt kind: text (default), password, confirm, select.
	Input   string   `json:"input" yaml:"input"`
	Options []string `json:"options" yaml:"options"`
	Help    string   `json:"help" yaml:"help"`

	Required  string      `json:"required" yaml:"required"`
	Pattern   *Pattern    `json:"pattern" yaml:"pattern"`
	MinLength *Limit      `json:"minLength" yaml:"minLength"`
	MaxLength *Limit      `json:"maxLength" yaml:"maxLength"`
	Min       *Limit      `json:"min" yaml:"min"`
	Max       *Limit      `json:"max" yaml:"max"`
	CUE       *Constraint `json:"cue" yaml:"cue"`
	// Validate names custom rules supplied to Build, run in this order after
	// the built-in rules.
	Validate []string `json:"validate" yaml:"validate"`

	ValueAsNumber bool     `json:"valueAsNumber" yaml:"valueAsNumber"`
	ValueAsDate   bool     `json:"valueAsDate" yaml:"valueAsDate"`
	DateLayout    string   `json:"dateLayout" yaml:"dateLayout"`
	Disabled      bool     `json:"disabled" yaml:"disabled"`
	DisabledWhen  string   `json:"disabledWhen" yaml:"disabledWhen"`
	Sanitize      bool     `json:"sanitize" yaml:"sanitize"`
	Deps          []string `json:"deps" yaml:"deps"`
}

// Pattern is a regular expression rule.
type Pattern struct {
	Value   string `json:"value" yaml:"value"`
	Message string `json:"message" yaml:"message"`
}

// Limit is a numeric or length bound.
type Limit struct {
	Value   float64 `json:"value" yaml:"value"`
	Message string  `json:"message" yaml:"message"`
}

// Constraint is a CUE expression the value must satisfy.
type Constraint struct {
	Value   string `json:"value" yaml:"value"`
	Message string `json:"message" yaml:"message"`
}

// Array is an array-typed field. Item field paths are relative to the item;
// an empty path addresses the item itself.
type Array struct {
	Path   string  `json:"path" yaml:"path"`
	Label  string  `json:"label" yaml:"label"`
	Fields []Field `json:"fields" yaml:"fields"`
}

var errEmptyDocument = errors.New("formdef: document is empty")

// Load parses a JSON or YAML definition and validates it.
func Load(data []byte) (Definition, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Definition{}, errEmptyDocument
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		def = Definition{}
		if yerr := yaml.Unmarshal(data, &def); yerr != nil {
			return Definition{}, fmt.Errorf("formdef: parse: invalid JSON or YAML: %w", yerr)
		}
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadFile reads and parses name from fsys.
func LoadFile(fsys fs.FS, name string) (Definition, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return Definition{}, fmt.Errorf("formdef: read %s: %w", name, err)
	}
	def, err := Load(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%w (file %s)", err, name)
	}
	return def, nil
}

// Validate checks modes, paths, patterns, and conditions without building.
func (d Definition) Validate() error {
	if _, err := form.ParseMode(d.Mode); err != nil {
		return fmt.Errorf("formdef: %w", err)
	}
	if _, err := form.ParseMode(d.ReValidateMode); err != nil {
		return fmt.Errorf("formdef: reValidateMode: %w", err)
	}

	seen := make(map[string]bool)
	for _, field := range d.Fields {
		if err := field.validate(false); err != nil {
			return err
		}
		key := fieldpath.MustParse(field.Path).String()
		if seen[key] {
			return fmt.Errorf("formdef: duplicate field %q", field.Path)
		}
		seen[key] = true
	}
	for _, arr := range d.Arrays {
		if _, err := fieldpath.Parse(arr.Path); err != nil {
			return fmt.Errorf("formdef: array %q: %w", arr.Path, err)
		}
		if seen[arr.Path] {
			return fmt.Errorf("formdef: %q is declared as both a field and an array", arr.Path)
		}
		for _, field := range arr.Fields {
			if err := field.validate(true); err != nil {
				return fmt.Errorf("formdef: array %q: %w", arr.Path, err)
			}
		}
	}
	return nil
}

func (f Field) validate(relative bool) error {
	if f.Path == "" && !relative {
		return errors.New("formdef: field path is required")
	}
	if f.Path != "" {
		if _, err := fieldpath.Parse(f.Path); err != nil {
			return fmt.Errorf("formdef: field %q: %w", f.Path, err)
		}
	}
	if f.Pattern != nil {
		if _, err := regexp.Compile(f.Pattern.Value); err != nil {
			return fmt.Errorf("formdef: field %q: pattern: %w", f.Path, err)
		}
	}
	if f.DisabledWhen != "" {
		if _, err := expr.Compile(f.DisabledWhen); err != nil {
			return fmt.Errorf("formdef: field %q: disabledWhen: %w", f.Path, err)
		}
	}
	if f.ValueAsNumber && f.ValueAsDate {
		return fmt.Errorf("formdef: field %q: valueAsNumber and valueAsDate are exclusive", f.Path)
	}
	for _, dep := range f.Deps {
		if _, err := fieldpath.Parse(dep); err != nil {
			return fmt.Errorf("formdef: field %q: dep %q: %w", f.Path, dep, err)
		}
	}
	return nil
}

// Rules assembles the field's rules: required, pattern, length and numeric
// bounds, CUE, then the named rules in declared order.
func (f Field) Rules(named map[string]validation.Rule) ([]validation.Rule, error) {
	var rules []validation.Rule
	if f.Required != "" {
		rules = append(rules, validation.Required(f.Required))
	}
	if f.Pattern != nil {
		rule, err := validation.PatternString(f.Pattern.Value, f.Pattern.Message)
		if err != nil {
			return nil, fmt.Errorf("formdef: field %q: %w", f.Path, err)
		}
		rules = append(rules, rule)
	}
	if f.MinLength != nil {
		rules = append(rules, validation.MinLength(int(f.MinLength.Value), f.MinLength.Message))
	}
	if f.MaxLength != nil {
		rules = append(rules, validation.MaxLength(int(f.MaxLength.Value), f.MaxLength.Message))
	}
	if f.Min != nil {
		rules = append(rules, validation.Min(f.Min.Value, f.Min.Message))
	}
	if f.Max != nil {
		rules = append(rules, validation.Max(f.Max.Value, f.Max.Message))
	}
	if f.CUE != nil {
		rule, err := validation.CUE("", f.CUE.Value, f.CUE.Message)
		if err != nil {
			return nil, fmt.Errorf("formdef: field %q: %w", f.Path, err)
		}
		rules = append(rules, rule)
	}
	for _, name := range f.Validate {
		rule, ok := named[name]
		if !ok || rule == nil {
			return nil, fmt.Errorf("formdef: field %q: unknown rule %q", f.Path, name)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// RegistryOptions maps the field flags to registration options.
func (f Field) RegistryOptions() registry.Options {
	return registry.Options{
		Disabled:      f.Disabled,
		DisabledWhen:  f.DisabledWhen,
		ValueAsNumber: f.ValueAsNumber,
		ValueAsDate:   f.ValueAsDate,
		DateLayout:    f.DateLayout,
		Sanitize:      f.Sanitize,
		Deps:          append([]string(nil), f.Deps...),
	}
}

// Build constructs a form with the definition's modes and defaults, registers
// every field, and declares every array. named supplies the rules referenced
// by Field.Validate. opts are applied after the definition's own options.
func (d Definition) Build(named map[string]validation.Rule, opts ...form.Option) (*form.Form, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	mode, _ := form.ParseMode(d.Mode)
	base := []form.Option{form.WithMode(mode), form.WithDefaults(d.Defaults)}
	if d.ReValidateMode != "" {
		reMode, _ := form.ParseMode(d.ReValidateMode)
		base = append(base, form.WithReValidateMode(reMode))
	}
	f := form.New(append(base, opts...)...)

	for _, field := range d.Fields {
		rules, err := field.Rules(named)
		if err != nil {
			return nil, err
		}
		f.Register(fieldpath.MustParse(field.Path), rules, field.RegistryOptions())
	}
	for _, arr := range d.Arrays {
		template := make([]registry.ItemField, 0, len(arr.Fields))
		for _, field := range arr.Fields {
			rules, err := field.Rules(named)
			if err != nil {
				return nil, fmt.Errorf("formdef: array %q: %w", arr.Path, err)
			}
			var rel fieldpath.Path
			if field.Path != "" {
				rel = fieldpath.MustParse(field.Path)
			}
			template = append(template, registry.ItemField{Path: rel, Rules: rules, Options: field.RegistryOptions()})
		}
		if _, err := f.FieldArray(fieldpath.MustParse(arr.Path), template...); err != nil {
			return nil, fmt.Errorf("formdef: array %q: %w", arr.Path, err)
		}
	}
	return f, nil
}
