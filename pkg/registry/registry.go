// Package registry tracks which field paths are bound to validation rules and
// keeps stable identity keys for the items of array fields.
//
// Registrations are keyed by the canonical dotted path. Array items carry an
// identity key that follows the item through removals and reorders, so state
// bound to an item is never transferred to a neighbour when indices shift.
package registry

import (
	"sort"
	"strconv"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// Options are per-field registration flags.
type Options struct {
	Disabled      bool
	DisabledWhen  string
	ValueAsNumber bool
	ValueAsDate   bool
	DateLayout    string
	Sanitize      bool
	// Deps are paths re-validated whenever this field is validated by an
	// input event.
	Deps []string
}

// Coercion maps the ValueAs flags to a validation.Coercion.
func (o Options) Coercion() validation.Coercion {
	switch {
	case o.ValueAsNumber:
		return validation.CoerceNumber
	case o.ValueAsDate:
		return validation.CoerceDate
	default:
		return validation.CoerceNone
	}
}

// Registration binds a path to its rules. ItemKey is set for fields living
// inside an array item and equals that item's identity key.
type Registration struct {
	ID      string
	Path    fieldpath.Path
	Rules   []validation.Rule
	Options Options
	ItemKey string
}

// ItemField describes a field registered for every item of an array, relative
// to the item root (for example `number` for `phNumbers.N.number`). An empty
// path registers the item itself, which suits arrays of scalars.
type ItemField struct {
	Path    fieldpath.Path
	Rules   []validation.Rule
	Options Options
}

// Array is the bookkeeping for one array-typed field.
type Array struct {
	Path     fieldpath.Path
	Keys     []string
	Template []ItemField
}

// Registry is not safe for concurrent use; the form serialises access.
type Registry struct {
	newKey func() string
	fields map[string]*Registration
	order  []string
	arrays map[string]*Array
}

// New returns an empty registry that draws identity keys from newKey.
func New(newKey func() string) *Registry {
	if newKey == nil {
		n := 0
		newKey = func() string {
			n++
			return "k" + strconv.Itoa(n)
		}
	}
	return &Registry{
		newKey: newKey,
		fields: make(map[string]*Registration),
		arrays: make(map[string]*Array),
	}
}

// Register binds rules and options to p. Registering an existing path
// replaces its rules and options in place and keeps its ID.
func (r *Registry) Register(p fieldpath.Path, rules []validation.Rule, opts Options) Registration {
	key := p.String()
	if existing, ok := r.fields[key]; ok {
		existing.Rules = append([]validation.Rule(nil), rules...)
		existing.Options = opts
		existing.ItemKey = r.itemKeyFor(p)
		return copyRegistration(existing)
	}
	reg := &Registration{
		ID:      r.newKey(),
		Path:    fieldpath.Join(p),
		Rules:   append([]validation.Rule(nil), rules...),
		Options: opts,
		ItemKey: r.itemKeyFor(p),
	}
	r.fields[key] = reg
	r.order = append(r.order, key)
	return copyRegistration(reg)
}

// Unregister drops the registration for exactly p.
func (r *Registry) Unregister(p fieldpath.Path) bool {
	key := p.String()
	if _, ok := r.fields[key]; !ok {
		return false
	}
	delete(r.fields, key)
	r.order = removeString(r.order, key)
	return true
}

// Lookup returns the registration bound to p.
func (r *Registry) Lookup(p fieldpath.Path) (Registration, bool) {
	reg, ok := r.fields[p.String()]
	if !ok {
		return Registration{}, false
	}
	return copyRegistration(reg), true
}

// All returns every registration in registration order.
func (r *Registry) All() []Registration {
	out := make([]Registration, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, copyRegistration(r.fields[key]))
	}
	return out
}

// DeclareArray records p as an array field with an item template. A repeated
// declaration keeps existing keys; a non-empty template replaces the previous
// one and is registered for the current items.
func (r *Registry) DeclareArray(p fieldpath.Path, template []ItemField) {
	key := p.String()
	arr, ok := r.arrays[key]
	if !ok {
		arr = &Array{Path: fieldpath.Join(p)}
		r.arrays[key] = arr
	}
	if len(template) == 0 {
		return
	}
	arr.Template = append([]ItemField(nil), template...)
	for i := range arr.Keys {
		r.registerItem(arr, i)
	}
}

// Array returns a copy of the bookkeeping for p.
func (r *Registry) Array(p fieldpath.Path) (Array, bool) {
	arr, ok := r.arrays[p.String()]
	if !ok {
		return Array{}, false
	}
	return Array{
		Path:     fieldpath.Join(arr.Path),
		Keys:     append([]string(nil), arr.Keys...),
		Template: append([]ItemField(nil), arr.Template...),
	}, true
}

// Arrays lists the declared array paths, shallowest first.
func (r *Registry) Arrays() []fieldpath.Path {
	out := make([]fieldpath.Path, 0, len(r.arrays))
	for _, arr := range r.arrays {
		out = append(out, fieldpath.Join(arr.Path))
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i].String() < out[j].String()
	})
	return out
}

// Sync makes the key count of p equal length. Surviving items keep their
// keys; extra items get fresh keys and template registrations; dropped items
// lose theirs. It reports whether the counts had diverged.
func (r *Registry) Sync(p fieldpath.Path, length int) bool {
	arr, ok := r.arrays[p.String()]
	if !ok {
		return false
	}
	if length < 0 {
		length = 0
	}
	if len(arr.Keys) == length {
		return false
	}
	mapping := make([]int, len(arr.Keys))
	for i := range mapping {
		if i < length {
			mapping[i] = i
		} else {
			mapping[i] = -1
		}
	}
	r.Apply(p, mapping, length)
	return true
}

// Regenerate issues fresh keys for every item of p, as on a form reset.
func (r *Registry) Regenerate(p fieldpath.Path, length int) {
	arr, ok := r.arrays[p.String()]
	if !ok {
		return
	}
	for i := range arr.Keys {
		r.dropItem(arr, i)
	}
	arr.Keys = nil
	r.Sync(p, length)
}

// Apply re-indexes the items of p. mapping[old] is the item's new position or
// -1 when it was removed; positions of length not reached by mapping are new
// items. Keys travel with their items, and registrations below p (including
// nested arrays) are moved to their new paths.
func (r *Registry) Apply(p fieldpath.Path, mapping []int, length int) {
	arr, ok := r.arrays[p.String()]
	if !ok {
		return
	}

	keys := make([]string, length)
	filled := make([]bool, length)
	for old, next := range mapping {
		if next < 0 || next >= length || old >= len(arr.Keys) {
			continue
		}
		keys[next] = arr.Keys[old]
		filled[next] = true
	}

	// Move registrations; removed items' registrations disappear.
	moved := make(map[string]*Registration, len(r.fields))
	order := make([]string, 0, len(r.order))
	for _, key := range r.order {
		reg := r.fields[key]
		next, keep := fieldpath.Remap(reg.Path, p, mapping)
		if !keep {
			continue
		}
		reg.Path = next
		nk := next.String()
		moved[nk] = reg
		order = append(order, nk)
	}
	r.fields = moved
	r.order = order

	// Move nested array bookkeeping the same way.
	nested := make(map[string]*Array, len(r.arrays))
	for key, other := range r.arrays {
		if other == arr {
			nested[key] = other
			continue
		}
		next, keep := fieldpath.Remap(other.Path, p, mapping)
		if !keep {
			continue
		}
		other.Path = next
		nested[next.String()] = other
	}
	r.arrays = nested

	arr.Keys = keys
	for i := range keys {
		if !filled[i] {
			arr.Keys[i] = r.newKey()
			r.registerItem(arr, i)
		}
	}
	r.refreshItemKeys(p)
}

func (r *Registry) registerItem(arr *Array, index int) {
	base := arr.Path.At(index)
	for _, field := range arr.Template {
		r.Register(fieldpath.Join(base, field.Path), field.Rules, field.Options)
	}
}

func (r *Registry) dropItem(arr *Array, index int) {
	prefix := arr.Path.At(index)
	for _, key := range append([]string(nil), r.order...) {
		if r.fields[key].Path.HasPrefix(prefix) {
			r.Unregister(r.fields[key].Path)
		}
	}
}

func (r *Registry) refreshItemKeys(prefix fieldpath.Path) {
	for _, reg := range r.fields {
		if reg.Path.HasPrefix(prefix) {
			reg.ItemKey = r.itemKeyFor(reg.Path)
		}
	}
}

// itemKeyFor returns the key of the deepest declared array item containing p.
func (r *Registry) itemKeyFor(p fieldpath.Path) string {
	for depth := len(p) - 1; depth > 0; depth-- {
		seg := p[depth]
		if !seg.IsIndex() {
			continue
		}
		arr, ok := r.arrays[p[:depth].String()]
		if !ok || seg.Index() >= len(arr.Keys) {
			continue
		}
		return arr.Keys[seg.Index()]
	}
	return ""
}

func copyRegistration(reg *Registration) Registration {
	out := *reg
	out.Path = fieldpath.Join(reg.Path)
	out.Rules = append([]validation.Rule(nil), reg.Rules...)
	out.Options.Deps = append([]string(nil), reg.Options.Deps...)
	return out
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, item := range list {
		if item != target {
			out = append(out, item)
		}
	}
	return out
}
