package fieldpath

import "fmt"

// Get resolves p against a value tree made of map[string]any and []any
// containers. It returns false when a segment is missing, an index is out of
// bounds or negative, or a scalar is found where a container was expected.
func Get(root any, p Path) (any, bool) {
	current := root
	for _, seg := range p {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg.Key()]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			if !seg.IsIndex() || seg.Index() < 0 || seg.Index() >= len(node) {
				return nil, false
			}
			current = node[seg.Index()]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set writes value at p inside root, creating intermediate objects and arrays
// as needed. Arrays are padded with nil when an index lands past the end.
func Set(root map[string]any, p Path, value any) error {
	if root == nil {
		return fmt.Errorf("fieldpath: root map is nil")
	}
	if len(p) == 0 {
		return fmt.Errorf("fieldpath: cannot set the root")
	}
	_, err := setIn(root, p, value, p)
	return err
}

func setIn(node any, rest Path, value any, full Path) (any, error) {
	if len(rest) == 0 {
		return value, nil
	}
	seg := rest[0]
	if seg.IsIndex() && seg.Index() < 0 {
		return nil, fmt.Errorf("fieldpath: negative index %d in %q", seg.Index(), full.String())
	}

	switch typed := node.(type) {
	case nil:
		if seg.IsIndex() {
			return setIn([]any{}, rest, value, full)
		}
		return setIn(map[string]any{}, rest, value, full)

	case map[string]any:
		child, err := setIn(typed[seg.Key()], rest[1:], value, full)
		if err != nil {
			return nil, err
		}
		typed[seg.Key()] = child
		return typed, nil

	case []any:
		if !seg.IsIndex() {
			return nil, fmt.Errorf("fieldpath: expected index at %q in %q, got key %q", full[:len(full)-len(rest)].String(), full.String(), seg.Key())
		}
		idx := seg.Index()
		if idx >= len(typed) {
			typed = append(typed, make([]any, idx+1-len(typed))...)
		}
		child, err := setIn(typed[idx], rest[1:], value, full)
		if err != nil {
			return nil, err
		}
		typed[idx] = child
		return typed, nil

	default:
		return nil, fmt.Errorf("fieldpath: cannot descend into %T at segment %q of %q", node, seg.Key(), full.String())
	}
}

// Remap rewrites the index that follows array inside p using mapping, where
// mapping[old] is the new position or -1 when the item was removed. Paths
// outside array, or addressing array itself, are returned unchanged. The
// boolean is false when the addressed item no longer exists.
func Remap(p Path, array Path, mapping []int) (Path, bool) {
	if len(p) <= len(array) || !p.HasPrefix(array) {
		return p, true
	}
	seg := p[len(array)]
	if !seg.IsIndex() {
		return p, true
	}
	old := seg.Index()
	if old < 0 || old >= len(mapping) {
		return p, true
	}
	next := mapping[old]
	if next < 0 {
		return nil, false
	}
	if next == old {
		return p, true
	}
	out := Join(p)
	out[len(array)] = Index(next)
	return out, true
}
