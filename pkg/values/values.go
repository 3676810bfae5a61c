// Package values owns the current and default value trees of a form session.
package values

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

var equalOpts = cmp.Options{
	cmpopts.EquateEmpty(),
	cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
}

// Equal reports deep structural equality. Nil and empty containers compare
// equal so an untouched optional list is not reported as a change.
func Equal(a, b any) bool {
	return cmp.Equal(a, b, equalOpts)
}

// Clone deep-copies maps and slices. Scalars are returned as-is.
func Clone(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = Clone(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = Clone(v)
		}
		return out
	default:
		return typed
	}
}

// CloneTree deep-copies a root object. A nil input yields an empty tree.
func CloneTree(tree map[string]any) map[string]any {
	if tree == nil {
		return make(map[string]any)
	}
	return Clone(tree).(map[string]any)
}

// Store holds the default tree captured at session start and the current
// tree mutated by the form. It is not safe for concurrent use; the form
// serialises access.
type Store struct {
	defaults map[string]any
	current  map[string]any
}

// NewStore seeds both trees from defaults (deep-copied).
func NewStore(defaults map[string]any) *Store {
	s := &Store{}
	s.Reset(defaults)
	return s
}

// Reset replaces the defaults and restores the current tree from them.
func (s *Store) Reset(defaults map[string]any) {
	s.defaults = CloneTree(defaults)
	s.current = CloneTree(defaults)
}

// Restore discards current edits and copies the defaults back.
func (s *Store) Restore() {
	s.current = CloneTree(s.defaults)
}

// Get returns a deep copy of the current value at p.
func (s *Store) Get(p fieldpath.Path) (any, bool) {
	v, ok := fieldpath.Get(s.current, p)
	if !ok {
		return nil, false
	}
	return Clone(v), true
}

// Default returns a deep copy of the default value at p.
func (s *Store) Default(p fieldpath.Path) (any, bool) {
	v, ok := fieldpath.Get(s.defaults, p)
	if !ok {
		return nil, false
	}
	return Clone(v), true
}

// Set writes a deep copy of value at p. Setting the root requires an object.
func (s *Store) Set(p fieldpath.Path, value any) error {
	if p.IsRoot() {
		tree, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("values: root must be an object, got %T", value)
		}
		s.current = CloneTree(tree)
		return nil
	}
	return fieldpath.Set(s.current, p, Clone(value))
}

// Snapshot returns a deep copy of the current tree.
func (s *Store) Snapshot() map[string]any {
	return CloneTree(s.current)
}

// Project returns a tree containing only the requested paths. Paths that do
// not resolve are left out.
func (s *Store) Project(paths ...fieldpath.Path) map[string]any {
	out := make(map[string]any)
	for _, p := range paths {
		if p.IsRoot() {
			return s.Snapshot()
		}
		v, ok := fieldpath.Get(s.current, p)
		if !ok {
			continue
		}
		_ = fieldpath.Set(out, p, Clone(v))
	}
	return out
}

// Len returns the length of the array at p, or -1 when p is not an array.
func (s *Store) Len(p fieldpath.Path) int {
	v, ok := fieldpath.Get(s.current, p)
	if !ok {
		return -1
	}
	arr, ok := v.([]any)
	if !ok {
		return -1
	}
	return len(arr)
}

// Changed reports whether the current value at p deep-differs from the
// default at p.
func (s *Store) Changed(p fieldpath.Path) bool {
	cur, _ := fieldpath.Get(s.current, p)
	def, _ := fieldpath.Get(s.defaults, p)
	return !Equal(cur, def)
}

// Diff lists the leaf paths whose current value differs from the default,
// sorted by their dotted form.
func (s *Store) Diff() []fieldpath.Path {
	var out []fieldpath.Path
	diffInto(fieldpath.Path{}, s.current, s.defaults, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func diffInto(at fieldpath.Path, cur, def any, out *[]fieldpath.Path) {
	curMap, curIsMap := cur.(map[string]any)
	defMap, defIsMap := def.(map[string]any)
	if curIsMap && defIsMap {
		keys := make(map[string]struct{}, len(curMap)+len(defMap))
		for k := range curMap {
			keys[k] = struct{}{}
		}
		for k := range defMap {
			keys[k] = struct{}{}
		}
		for k := range keys {
			diffInto(at.Child(k), curMap[k], defMap[k], out)
		}
		return
	}

	curArr, curIsArr := cur.([]any)
	defArr, defIsArr := def.([]any)
	if curIsArr && defIsArr {
		n := max(len(curArr), len(defArr))
		for i := 0; i < n; i++ {
			var c, d any
			if i < len(curArr) {
				c = curArr[i]
			}
			if i < len(defArr) {
				d = defArr[i]
			}
			diffInto(at.At(i), c, d, out)
		}
		return
	}

	if !Equal(cur, def) && !at.IsRoot() {
		*out = append(*out, at)
	}
}
