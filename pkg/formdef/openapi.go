package formdef

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	json "github.com/goccy/go-json"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

const extensionKey = "x-formstate"

// ErrOperationNotFound is returned when the document has no operation with the
// requested ID.
var ErrOperationNotFound = errors.New("formdef: operation not found")

// extension is the per-property x-formstate block.
type extension struct {
	Label          string   `json:"label"`
	Input          string   `json:"input"`
	Help           string   `json:"help"`
	Required       string   `json:"required"`
	DisabledWhen   string   `json:"disabledWhen"`
	Sanitize       bool     `json:"sanitize"`
	Validate       []string `json:"validate"`
	Deps           []string `json:"deps"`
	CUE            string   `json:"cue"`
	CUEMessage     string   `json:"cueMessage"`
	PatternMessage string   `json:"patternMessage"`
}

// FromOpenAPI derives a definition from the JSON request body of operationID.
// Object properties become fields, arrays of objects or scalars become
// arrays, and schema defaults become form defaults.
func FromOpenAPI(ctx context.Context, data []byte, operationID string) (Definition, error) {
	if err := ctx.Err(); err != nil {
		return Definition{}, err
	}
	if len(data) == 0 {
		return Definition{}, errEmptyDocument
	}
	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return Definition{}, fmt.Errorf("formdef: load openapi document: %w", err)
	}

	op := findOperation(doc, operationID)
	if op == nil {
		return Definition{}, fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
	}
	body := requestSchema(op.RequestBody)
	if body == nil || body.Value == nil {
		return Definition{}, fmt.Errorf("formdef: operation %s has no request body schema", operationID)
	}

	def := Definition{Name: operationID, Defaults: map[string]any{}}
	if err := collect(&def, nil, body.Value); err != nil {
		return Definition{}, err
	}
	if ext, err := readExtension(op.Extensions); err != nil {
		return Definition{}, err
	} else if ext.Label != "" {
		def.Name = ext.Label
	}
	if len(def.Defaults) == 0 {
		def.Defaults = nil
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func findOperation(doc *openapi3.T, id string) *openapi3.Operation {
	if doc.Paths == nil {
		return nil
	}
	for _, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for _, op := range item.Operations() {
			if op != nil && op.OperationID == id {
				return op
			}
		}
	}
	return nil
}

func requestSchema(body *openapi3.RequestBodyRef) *openapi3.SchemaRef {
	if body == nil || body.Value == nil {
		return nil
	}
	content := body.Value.Content
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if mt, ok := content[mediaType]; ok && mt != nil {
			return mt.Schema
		}
	}
	return nil
}

func collect(def *Definition, prefix fieldpath.Path, schema *openapi3.Schema) error {
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref := schema.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		prop := ref.Value
		p := prefix.Child(name)

		if prop.Default != nil {
			if err := fieldpath.Set(def.Defaults, p, prop.Default); err != nil {
				return fmt.Errorf("formdef: default for %s: %w", p, err)
			}
		}

		switch schemaType(prop.Type) {
		case openapi3.TypeObject:
			if err := collect(def, p, prop); err != nil {
				return err
			}
		case openapi3.TypeArray:
			arr, err := convertArray(p, name, prop)
			if err != nil {
				return err
			}
			def.Arrays = append(def.Arrays, arr)
		default:
			field, err := convertField(p.String(), name, prop, required[name])
			if err != nil {
				return err
			}
			def.Fields = append(def.Fields, field)
		}
	}
	return nil
}

func convertArray(p fieldpath.Path, name string, prop *openapi3.Schema) (Array, error) {
	arr := Array{Path: p.String(), Label: labelFor(name, prop)}
	if ext, err := readExtension(prop.Extensions); err != nil {
		return Array{}, fmt.Errorf("formdef: %s: %w", p, err)
	} else if ext.Label != "" {
		arr.Label = ext.Label
	}
	if prop.Items == nil || prop.Items.Value == nil {
		return arr, nil
	}
	item := prop.Items.Value
	if schemaType(item.Type) != openapi3.TypeObject {
		field, err := convertField("", name, item, false)
		if err != nil {
			return Array{}, err
		}
		arr.Fields = []Field{field}
		return arr, nil
	}

	nested := Definition{Defaults: map[string]any{}}
	if err := collect(&nested, nil, item); err != nil {
		return Array{}, err
	}
	if len(nested.Arrays) > 0 {
		return Array{}, fmt.Errorf("formdef: %s: nested arrays inside array items are not supported", p)
	}
	arr.Fields = nested.Fields
	return arr, nil
}

func convertField(path, name string, prop *openapi3.Schema, required bool) (Field, error) {
	ext, err := readExtension(prop.Extensions)
	if err != nil {
		return Field{}, fmt.Errorf("formdef: %s: %w", name, err)
	}
	label := labelFor(name, prop)
	if ext.Label != "" {
		label = ext.Label
	}
	field := Field{
		Path:         path,
		Label:        label,
		Input:        ext.Input,
		Help:         prop.Description,
		DisabledWhen: ext.DisabledWhen,
		Sanitize:     ext.Sanitize,
		Validate:     ext.Validate,
		Deps:         ext.Deps,
	}
	if ext.Help != "" {
		field.Help = ext.Help
	}
	if required {
		field.Required = ext.Required
		if field.Required == "" {
			field.Required = label + " is required"
		}
	}

	switch schemaType(prop.Type) {
	case openapi3.TypeInteger, openapi3.TypeNumber:
		field.ValueAsNumber = true
	case openapi3.TypeBoolean:
		if field.Input == "" {
			field.Input = "confirm"
		}
	case openapi3.TypeString:
		switch prop.Format {
		case "date":
			field.ValueAsDate = true
		case "date-time":
			field.ValueAsDate = true
			field.DateLayout = time.RFC3339
		case "password":
			if field.Input == "" {
				field.Input = "password"
			}
		}
	}
	if len(prop.Enum) > 0 {
		for _, v := range prop.Enum {
			field.Options = append(field.Options, fmt.Sprint(v))
		}
		if field.Input == "" {
			field.Input = "select"
		}
	}

	if prop.Pattern != "" {
		msg := ext.PatternMessage
		if msg == "" {
			msg = label + " is invalid"
		}
		field.Pattern = &Pattern{Value: prop.Pattern, Message: msg}
	}
	if prop.MinLength > 0 {
		field.MinLength = &Limit{
			Value:   float64(prop.MinLength),
			Message: fmt.Sprintf("%s must be at least %d characters", label, prop.MinLength),
		}
	}
	if prop.MaxLength != nil {
		field.MaxLength = &Limit{
			Value:   float64(*prop.MaxLength),
			Message: fmt.Sprintf("%s must be at most %d characters", label, *prop.MaxLength),
		}
	}
	if prop.Min != nil {
		field.Min = &Limit{Value: *prop.Min, Message: fmt.Sprintf("%s must be at least %v", label, *prop.Min)}
	}
	if prop.Max != nil {
		field.Max = &Limit{Value: *prop.Max, Message: fmt.Sprintf("%s must be at most %v", label, *prop.Max)}
	}
	if ext.CUE != "" {
		msg := ext.CUEMessage
		if msg == "" {
			msg = label + " is invalid"
		}
		field.CUE = &Constraint{Value: ext.CUE, Message: msg}
	}
	return field, nil
}

func readExtension(raw map[string]any) (extension, error) {
	var ext extension
	value, ok := raw[extensionKey]
	if !ok || value == nil {
		return ext, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return ext, fmt.Errorf("%s: %w", extensionKey, err)
	}
	if err := json.Unmarshal(data, &ext); err != nil {
		return ext, fmt.Errorf("%s: %w", extensionKey, err)
	}
	return ext, nil
}

func schemaType(types *openapi3.Types) string {
	if types == nil {
		return ""
	}
	values := types.Slice()
	for _, v := range values {
		if v != openapi3.TypeNull {
			return v
		}
	}
	return ""
}

func labelFor(name string, prop *openapi3.Schema) string {
	if prop.Title != "" {
		return prop.Title
	}
	if name == "" {
		return "Value"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
