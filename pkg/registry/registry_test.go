package registry_test

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/registry"
	"github.com/goliatone/go-formstate/pkg/validation"
)

func sequentialKeys() func() string {
	n := 0
	return func() string {
		n++
		return "key-" + strconv.Itoa(n)
	}
}

func paths(regs []registry.Registration) []string {
	out := make([]string, len(regs))
	for i, reg := range regs {
		out[i] = reg.Path.String()
	}
	return out
}

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	reg := registry.New(sequentialKeys())
	first := reg.Register(fieldpath.MustParse("username"), []validation.Rule{validation.Required("required")}, registry.Options{})
	second := reg.Register(fieldpath.MustParse("username"), nil, registry.Options{Sanitize: true})

	if first.ID != second.ID {
		t.Fatalf("re-registering changed the ID: %q != %q", first.ID, second.ID)
	}
	if all := reg.All(); len(all) != 1 {
		t.Fatalf("expected a single registration, got %d", len(all))
	}
	got, ok := reg.Lookup(fieldpath.MustParse("username"))
	if !ok || len(got.Rules) != 0 || !got.Options.Sanitize {
		t.Fatalf("expected replaced rules and options, got %+v", got)
	}
}

func TestAllKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()

	reg := registry.New(nil)
	for _, p := range []string{"username", "email", "social.twitter", "social.facebook"} {
		reg.Register(fieldpath.MustParse(p), nil, registry.Options{})
	}
	reg.Unregister(fieldpath.MustParse("email"))

	want := []string{"username", "social.twitter", "social.facebook"}
	if diff := cmp.Diff(want, paths(reg.All())); diff != "" {
		t.Fatalf("All mismatch (-want +got):\n%s", diff)
	}
	if reg.Unregister(fieldpath.MustParse("email")) {
		t.Fatalf("second Unregister should report false")
	}
}

func TestLookupReturnsCopies(t *testing.T) {
	t.Parallel()

	reg := registry.New(nil)
	reg.Register(fieldpath.MustParse("channel"), nil, registry.Options{Deps: []string{"email"}})
	got, _ := reg.Lookup(fieldpath.MustParse("channel"))
	got.Options.Deps[0] = "mutated"
	got.Path[0] = fieldpath.Key("mutated")

	again, _ := reg.Lookup(fieldpath.MustParse("channel"))
	if again.Options.Deps[0] != "email" || again.Path.String() != "channel" {
		t.Fatalf("registry state leaked through Lookup: %+v", again)
	}
}

func TestArrayKeysFollowItems(t *testing.T) {
	t.Parallel()

	reg := registry.New(sequentialKeys())
	arr := fieldpath.MustParse("phNumbers")
	reg.DeclareArray(arr, []registry.ItemField{{
		Path:  fieldpath.MustParse("number"),
		Rules: []validation.Rule{validation.Required("phone number is required")},
	}})
	reg.Sync(arr, 3)

	before, _ := reg.Array(arr)
	if len(before.Keys) != 3 {
		t.Fatalf("expected 3 keys, got %v", before.Keys)
	}
	if diff := cmp.Diff([]string{"phNumbers.0.number", "phNumbers.1.number", "phNumbers.2.number"}, paths(reg.All())); diff != "" {
		t.Fatalf("template registrations mismatch (-want +got):\n%s", diff)
	}

	// remove index 1
	reg.Apply(arr, []int{0, -1, 1}, 2)

	after, _ := reg.Array(arr)
	if diff := cmp.Diff([]string{before.Keys[0], before.Keys[2]}, after.Keys); diff != "" {
		t.Fatalf("keys after removal (-want +got):\n%s", diff)
	}
	moved, ok := reg.Lookup(fieldpath.MustParse("phNumbers.1.number"))
	if !ok || moved.ItemKey != before.Keys[2] {
		t.Fatalf("expected the third item's registration at index 1, got %+v", moved)
	}
	if _, ok := reg.Lookup(fieldpath.MustParse("phNumbers.2.number")); ok {
		t.Fatalf("stale registration left at removed index")
	}
}

func TestApplyPrependCreatesFreshKey(t *testing.T) {
	t.Parallel()

	reg := registry.New(sequentialKeys())
	arr := fieldpath.MustParse("phNumbers")
	reg.DeclareArray(arr, []registry.ItemField{{Path: fieldpath.MustParse("number")}})
	reg.Sync(arr, 1)
	before, _ := reg.Array(arr)

	reg.Apply(arr, []int{1}, 2)

	after, _ := reg.Array(arr)
	if after.Keys[1] != before.Keys[0] {
		t.Fatalf("existing key did not move to index 1: %v", after.Keys)
	}
	if after.Keys[0] == "" || after.Keys[0] == before.Keys[0] {
		t.Fatalf("prepended item needs a fresh key: %v", after.Keys)
	}
	first, ok := reg.Lookup(fieldpath.MustParse("phNumbers.0.number"))
	if !ok || first.ItemKey != after.Keys[0] {
		t.Fatalf("prepended item registration missing: %+v", first)
	}
}

func TestNestedArraysMoveWithParentItem(t *testing.T) {
	t.Parallel()

	reg := registry.New(sequentialKeys())
	outer := fieldpath.MustParse("groups")
	reg.DeclareArray(outer, nil)
	reg.Sync(outer, 2)
	inner := fieldpath.MustParse("groups.1.members")
	reg.DeclareArray(inner, []registry.ItemField{{Path: fieldpath.MustParse("name")}})
	reg.Sync(inner, 1)
	innerKeys, _ := reg.Array(inner)

	reg.Apply(outer, []int{1, 0}, 2)

	moved, ok := reg.Array(fieldpath.MustParse("groups.0.members"))
	if !ok {
		t.Fatalf("nested array bookkeeping did not move")
	}
	if diff := cmp.Diff(innerKeys.Keys, moved.Keys); diff != "" {
		t.Fatalf("nested keys changed (-want +got):\n%s", diff)
	}
	if _, ok := reg.Lookup(fieldpath.MustParse("groups.0.members.0.name")); !ok {
		t.Fatalf("nested registration did not move")
	}
}

func TestRegenerateIssuesNewKeys(t *testing.T) {
	t.Parallel()

	reg := registry.New(sequentialKeys())
	arr := fieldpath.MustParse("phNumbers")
	reg.DeclareArray(arr, []registry.ItemField{{Path: fieldpath.MustParse("number")}})
	reg.Sync(arr, 2)
	before, _ := reg.Array(arr)

	reg.Regenerate(arr, 1)

	after, _ := reg.Array(arr)
	if len(after.Keys) != 1 || after.Keys[0] == before.Keys[0] || after.Keys[0] == before.Keys[1] {
		t.Fatalf("expected one fresh key, got %v (before %v)", after.Keys, before.Keys)
	}
	if diff := cmp.Diff([]string{"phNumbers.0.number"}, paths(reg.All())); diff != "" {
		t.Fatalf("registrations after regenerate (-want +got):\n%s", diff)
	}
}

func TestOptionsCoercion(t *testing.T) {
	t.Parallel()

	if got := (registry.Options{ValueAsNumber: true}).Coercion(); got != validation.CoerceNumber {
		t.Fatalf("expected number coercion, got %v", got)
	}
	if got := (registry.Options{ValueAsDate: true}).Coercion(); got != validation.CoerceDate {
		t.Fatalf("expected date coercion, got %v", got)
	}
	if got := (registry.Options{}).Coercion(); got != validation.CoerceNone {
		t.Fatalf("expected no coercion, got %v", got)
	}
}
