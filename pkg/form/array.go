package form

import (
	"fmt"

	"github.com/goliatone/go-formstate/pkg/defaults"
	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/registry"
	"github.com/goliatone/go-formstate/pkg/values"
)

// ArrayField is one item of a field array as a list renderer sees it. Key is
// stable across reorders and should be used as the render key.
type ArrayField struct {
	Key   string
	Index int
	Value any
}

// FieldArray manipulates an array-typed field while keeping identity keys,
// registrations, errors, dirty, and touched entries attached to their items.
type FieldArray struct {
	form *Form
	path fieldpath.Path
}

// FieldArray declares p as an array field and returns its controller. The
// template fields are registered for every current and future item. A missing
// value is treated as an empty array.
func (f *Form) FieldArray(p fieldpath.Path, template ...registry.ItemField) (*FieldArray, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.itemsLocked(p)
	if err != nil {
		return nil, err
	}
	f.reg.DeclareArray(p, template)
	f.reg.Sync(p, len(items))
	return &FieldArray{form: f, path: fieldpath.Join(p)}, nil
}

// Path returns the array's path.
func (a *FieldArray) Path() fieldpath.Path { return fieldpath.Join(a.path) }

// Fields returns the items with their identity keys.
func (a *FieldArray) Fields() []ArrayField {
	f := a.form
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.itemsLocked(a.path)
	if err != nil {
		return nil
	}
	f.syncArrayLocked(a.path)
	arr, _ := f.reg.Array(a.path)
	out := make([]ArrayField, len(items))
	for i, item := range items {
		out[i] = ArrayField{Key: arr.Keys[i], Index: i, Value: item}
	}
	return out
}

// Len returns the number of items.
func (a *FieldArray) Len() int {
	f := a.form
	f.mu.Lock()
	defer f.mu.Unlock()
	return max(f.store.Len(a.path), 0)
}

// Append adds items at the end, each with a fresh identity key.
func (a *FieldArray) Append(items ...any) error {
	return a.mutate("append", func(current []any) ([]any, []int, error) {
		return append(current, normalizeItems(items)...), identity(len(current)), nil
	})
}

// Prepend adds items at the start. Existing items keep their keys and shift
// up by len(items).
func (a *FieldArray) Prepend(items ...any) error {
	return a.Insert(0, items...)
}

// Insert adds items before position index. index may equal the length.
func (a *FieldArray) Insert(index int, items ...any) error {
	return a.mutate("insert", func(current []any) ([]any, []int, error) {
		if index < 0 || index > len(current) {
			return nil, nil, a.indexError("insert", index, len(current))
		}
		added := normalizeItems(items)
		next := make([]any, 0, len(current)+len(added))
		next = append(next, current[:index]...)
		next = append(next, added...)
		next = append(next, current[index:]...)

		mapping := make([]int, len(current))
		for i := range current {
			if i < index {
				mapping[i] = i
			} else {
				mapping[i] = i + len(added)
			}
		}
		return next, mapping, nil
	})
}

// Remove deletes the item at index. Items below index are untouched; items
// above it shift down by one and keep their keys.
func (a *FieldArray) Remove(index int) error {
	return a.mutate("remove", func(current []any) ([]any, []int, error) {
		if index < 0 || index >= len(current) {
			return nil, nil, a.indexError("remove", index, len(current))
		}
		next := make([]any, 0, len(current)-1)
		next = append(next, current[:index]...)
		next = append(next, current[index+1:]...)

		mapping := make([]int, len(current))
		for i := range current {
			switch {
			case i < index:
				mapping[i] = i
			case i == index:
				mapping[i] = -1
			default:
				mapping[i] = i - 1
			}
		}
		return next, mapping, nil
	})
}

// RemoveAll deletes every item.
func (a *FieldArray) RemoveAll() error {
	return a.mutate("remove-all", func(current []any) ([]any, []int, error) {
		return []any{}, dropped(len(current)), nil
	})
}

// Reorder moves the item at from to position to, shifting the items between.
func (a *FieldArray) Reorder(from, to int) error {
	return a.mutate("reorder", func(current []any) ([]any, []int, error) {
		if from < 0 || from >= len(current) {
			return nil, nil, a.indexError("reorder", from, len(current))
		}
		if to < 0 || to >= len(current) {
			return nil, nil, a.indexError("reorder", to, len(current))
		}
		order := make([]int, 0, len(current))
		for i := range current {
			if i != from {
				order = append(order, i)
			}
		}
		order = append(order[:to], append([]int{from}, order[to:]...)...)
		return permute(current, order)
	})
}

// Swap exchanges the items at i and j.
func (a *FieldArray) Swap(i, j int) error {
	return a.mutate("swap", func(current []any) ([]any, []int, error) {
		for _, idx := range []int{i, j} {
			if idx < 0 || idx >= len(current) {
				return nil, nil, a.indexError("swap", idx, len(current))
			}
		}
		order := identity(len(current))
		order[i], order[j] = order[j], order[i]
		return permute(current, order)
	})
}

// Update replaces the value of the item at index. The item keeps its key;
// any validation in flight for it is discarded.
func (a *FieldArray) Update(index int, item any) error {
	return a.mutate("update", func(current []any) ([]any, []int, error) {
		if index < 0 || index >= len(current) {
			return nil, nil, a.indexError("update", index, len(current))
		}
		next := append([]any(nil), current...)
		next[index] = defaults.NormalizeValue(item)
		return next, identity(len(current)), nil
	})
}

// Replace swaps the whole array for items. Every item gets a fresh key.
func (a *FieldArray) Replace(items ...any) error {
	return a.mutate("replace", func(current []any) ([]any, []int, error) {
		return normalizeItems(items), dropped(len(current)), nil
	})
}

func (a *FieldArray) indexError(op string, index, length int) error {
	return &ArrayIndexError{Op: op, Path: fieldpath.Join(a.path), Index: index, Len: length}
}

// mutate applies fn to the current items. fn returns the new items and a
// mapping from old index to new index (-1 for removed items). Nothing changes
// when fn fails.
func (a *FieldArray) mutate(op string, fn func(current []any) ([]any, []int, error)) error {
	ev, err := a.apply(op, fn)
	if err != nil {
		return err
	}
	a.form.emit(ev)
	return nil
}

func (a *FieldArray) apply(op string, fn func(current []any) ([]any, []int, error)) (Event, error) {
	f := a.form
	f.mu.Lock()
	defer f.mu.Unlock()
	current, err := f.itemsLocked(a.path)
	if err != nil {
		return Event{}, err
	}
	f.syncArrayLocked(a.path)

	next, mapping, err := fn(current)
	if err != nil {
		return Event{}, err
	}
	if err := f.store.Set(a.path, next); err != nil {
		return Event{}, fmt.Errorf("form: %s %s: %w", op, a.path, err)
	}
	f.reg.Apply(a.path, mapping, len(next))
	f.remapLocked(a.path, mapping)
	f.dirty[a.path.String()] = true
	return f.eventLocked(EventArray, a.path), nil
}

func (f *Form) itemsLocked(p fieldpath.Path) ([]any, error) {
	v, ok := f.store.Get(p)
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %T", ErrNotArray, p, v)
	}
	return items, nil
}

// syncArraysLocked restores the key/length invariant of every declared array
// overlapping a path written directly.
func (f *Form) syncArraysLocked(changed fieldpath.Path) {
	for _, arr := range f.reg.Arrays() {
		if arr.Overlaps(changed) {
			f.syncArrayLocked(arr)
		}
	}
}

func (f *Form) syncArrayLocked(p fieldpath.Path) {
	arr, ok := f.reg.Array(p)
	if !ok {
		return
	}
	n := max(f.store.Len(p), 0)
	if len(arr.Keys) == n {
		return
	}
	if f.strictArrays {
		panic(fmt.Sprintf("form: array %s has %d identity keys for %d items", p, len(arr.Keys), n))
	}
	f.logger.Warn("resyncing array identity keys", "path", p.String(), "keys", len(arr.Keys), "items", n)

	mapping := make([]int, len(arr.Keys))
	for i := range mapping {
		if i < n {
			mapping[i] = i
		} else {
			mapping[i] = -1
		}
	}
	f.reg.Sync(p, n)
	f.remapLocked(p, mapping)
}

// remapLocked moves per-path state below arr to the new item positions and
// invalidates every validation running below arr.
func (f *Form) remapLocked(arr fieldpath.Path, mapping []int) {
	f.errors = remapKeys(f.errors, arr, mapping)
	f.touched = remapKeys(f.touched, arr, mapping)
	f.dirty = remapKeys(f.dirty, arr, mapping)
	f.unsettled = remapKeys(f.unsettled, arr, mapping)
	for key := range f.seq {
		if p, err := fieldpath.Parse(key); err == nil && len(p) > len(arr) && p.HasPrefix(arr) {
			delete(f.seq, key)
		}
	}
	for fl := range f.inflight {
		next, keep := fieldpath.Remap(fl.path, arr, mapping)
		if !keep {
			delete(f.inflight, fl)
			continue
		}
		fl.path = next
	}
}

func remapKeys[M ~map[string]V, V any](m M, arr fieldpath.Path, mapping []int) M {
	out := make(M, len(m))
	for key, v := range m {
		p, err := fieldpath.Parse(key)
		if err != nil {
			out[key] = v
			continue
		}
		next, keep := fieldpath.Remap(p, arr, mapping)
		if keep {
			out[next.String()] = v
		}
	}
	return out
}

func permute(current []any, order []int) ([]any, []int, error) {
	next := make([]any, len(order))
	mapping := make([]int, len(current))
	for newIdx, oldIdx := range order {
		next[newIdx] = current[oldIdx]
		mapping[oldIdx] = newIdx
	}
	return next, mapping, nil
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func dropped(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = -1
	}
	return out
}

func normalizeItems(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, values.Clone(defaults.NormalizeValue(item)))
	}
	return out
}
