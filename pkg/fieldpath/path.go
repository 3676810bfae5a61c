// Package fieldpath models the location of a field inside a form value tree.
//
// A Path is a typed sequence of segments (object keys or array indices). Paths
// are built with Key, Index, Child, At and Join so that array-shape changes
// never alias unrelated fields through string concatenation. The dotted
// rendering ("phNumbers.0.number") is the canonical identifier used as a map
// key throughout the engine.
package fieldpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Segment is a single step in a Path: either an object key or an array index.
type Segment struct {
	key     string
	index   int
	isIndex bool
}

// Key returns an object-key segment.
func Key(name string) Segment {
	return Segment{key: name}
}

// Index returns an array-index segment. Negative positions never resolve:
// Get reports them missing and Set rejects them.
func Index(i int) Segment {
	return Segment{index: i, isIndex: true}
}

// IsIndex reports whether the segment addresses an array position.
func (s Segment) IsIndex() bool { return s.isIndex }

// Key returns the object key. Index segments return their decimal form.
func (s Segment) Key() string {
	if s.isIndex {
		return strconv.Itoa(s.index)
	}
	return s.key
}

// Index returns the array position; -1 for key segments.
func (s Segment) Index() int {
	if !s.isIndex {
		return -1
	}
	return s.index
}

func (s Segment) String() string { return s.Key() }

// Path is an ordered sequence of segments. The zero value is the root.
type Path []Segment

var errEmptySegment = errors.New("fieldpath: empty segment")

// Parse converts a textual field name into a Path. Dotted names
// ("social.twitter"), bracketed indices ("phNumbers[0].number") and JSON
// pointers ("/phNumbers/0/number") are accepted. Purely numeric segments are
// treated as indices.
func Parse(raw string) (Path, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "#")
	if clean == "" || clean == "/" || clean == "." {
		return Path{}, nil
	}

	pointer := strings.HasPrefix(clean, "/")
	var parts []string
	if pointer {
		parts = strings.Split(clean[1:], "/")
	} else {
		replacer := strings.NewReplacer("[", ".", "]", "")
		parts = strings.Split(replacer.Replace(clean), ".")
	}

	out := make(Path, 0, len(parts))
	for _, part := range parts {
		if pointer {
			part = strings.ReplaceAll(part, "~1", "/")
			part = strings.ReplaceAll(part, "~0", "~")
		}
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w in %q", errEmptySegment, raw)
		}
		if idx, ok := parseIndex(part); ok {
			out = append(out, Index(idx))
			continue
		}
		out = append(out, Key(part))
	}
	return out, nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// literals in code and tests.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func parseIndex(part string) (int, bool) {
	for _, r := range part {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(part)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// Join concatenates paths into a new Path without sharing backing storage.
func Join(parts ...Path) Path {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(Path, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Child returns p extended with an object key.
func (p Path) Child(name string) Path {
	return Join(p, Path{Key(name)})
}

// At returns p extended with an array index.
func (p Path) At(i int) Path {
	return Join(p, Path{Index(i)})
}

// Parent returns p without its last segment. The root is its own parent.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return Join(p[:len(p)-1])
}

// Last returns the final segment and false for the root.
func (p Path) Last() (Segment, bool) {
	if len(p) == 0 {
		return Segment{}, false
	}
	return p[len(p)-1], true
}

// IsRoot reports whether p addresses the whole tree.
func (p Path) IsRoot() bool { return len(p) == 0 }

// String renders the dotted form used as the canonical identifier.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.Key()
	}
	return strings.Join(parts, ".")
}

// Pointer renders p as a JSON pointer.
func (p Path) Pointer() string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		key := strings.ReplaceAll(seg.Key(), "~", "~0")
		b.WriteString(strings.ReplaceAll(key, "/", "~1"))
	}
	return b.String()
}

// Equal reports whether both paths address the same location.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i].Key() != other[i].Key() {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is p itself or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// Overlaps reports whether one path is an ancestor of (or equal to) the other.
func (p Path) Overlaps(other Path) bool {
	return p.HasPrefix(other) || other.HasPrefix(p)
}
