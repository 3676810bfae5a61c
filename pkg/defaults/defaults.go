// Package defaults provides the sources a form session uses to seed its
// default value tree. A Source is resolved once per session; deferred
// producers (functions, HTTP endpoints) keep the form in a loading state until
// they return.
package defaults

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formstate/pkg/values"
)

// Source produces the default value tree for a form session.
type Source interface {
	Resolve(ctx context.Context) (map[string]any, error)
}

// Static is an already-known default tree.
type Static map[string]any

// Resolve returns a deep copy of the static tree.
func (s Static) Resolve(_ context.Context) (map[string]any, error) {
	return values.CloneTree(s), nil
}

// Func adapts a producer function into a Source.
type Func func(ctx context.Context) (map[string]any, error)

// Resolve invokes the producer.
func (fn Func) Resolve(ctx context.Context) (map[string]any, error) {
	if fn == nil {
		return nil, errors.New("defaults: producer is nil")
	}
	tree, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	return Normalize(tree), nil
}

// IsDeferred reports whether resolving src may suspend. Static sources are
// installed synchronously by the form.
func IsDeferred(src Source) bool {
	_, static := src.(Static)
	return !static
}

type bytesSource struct {
	format string
	data   []byte
}

// FromJSON decodes a JSON object into the default tree.
func FromJSON(data []byte) Source {
	return bytesSource{format: "json", data: data}
}

// FromYAML decodes a YAML mapping into the default tree.
func FromYAML(data []byte) Source {
	return bytesSource{format: "yaml", data: data}
}

func (s bytesSource) Resolve(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch s.format {
	case "json":
		return decodeJSON(s.data)
	default:
		return decodeYAML(s.data)
	}
}

func decodeJSON(data []byte) (map[string]any, error) {
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("defaults: decode json: %w", err)
	}
	return Normalize(tree), nil
}

func decodeYAML(data []byte) (map[string]any, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("defaults: decode yaml: %w", err)
	}
	return Normalize(tree), nil
}

// Normalize rewrites a decoded tree into the shapes the engine compares:
// objects become map[string]any, arrays []any and every integer kind
// float64, so a YAML `0` and a JSON `0` are the same default.
func Normalize(tree map[string]any) map[string]any {
	if tree == nil {
		return make(map[string]any)
	}
	out, _ := normalizeValue(tree).(map[string]any)
	return out
}

// NormalizeValue applies the Normalize rules to a single value.
func NormalizeValue(value any) any { return normalizeValue(value) }

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = normalizeValue(v)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[fmt.Sprint(k)] = normalizeValue(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = normalizeValue(v)
		}
		return out
	case []map[string]any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = normalizeValue(v)
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = v
		}
		return out
	case int:
		return float64(typed)
	case int32:
		return float64(typed)
	case int64:
		return float64(typed)
	case uint:
		return float64(typed)
	case uint64:
		return float64(typed)
	case float32:
		return float64(typed)
	case json.Number:
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	default:
		return typed
	}
}

// Merge overlays overlay onto a copy of base. Nested objects merge key by key;
// any other overlay value, arrays included, replaces the base value.
func Merge(base, overlay map[string]any) map[string]any {
	out := Normalize(base)
	for k, v := range Normalize(overlay) {
		if src, ok := v.(map[string]any); ok {
			if dst, ok := out[k].(map[string]any); ok {
				out[k] = Merge(dst, src)
				continue
			}
		}
		out[k] = v
	}
	return out
}
