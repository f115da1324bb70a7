package registry

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"voxelcraft.ai/gametest/internal/gametest"
)

func noop(*gametest.T) error { return nil }

func def(suite, name string, tags ...string) TestDefinition {
	return TestDefinition{Suite: suite, Name: name, MaxTicks: 10, Tags: tags, Required: true, Func: noop}
}

func names(defs []TestDefinition) string {
	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		ids = append(ids, d.ID())
	}
	return strings.Join(ids, ",")
}

func TestRegister_DuplicateKeepsFirst(t *testing.T) {
	r := New()
	first := def("doors", "opens")
	first.Source = "a.js"
	first.MaxTicks = 5
	if _, err := r.Register(first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	second := def("doors", "opens")
	second.Source = "b.js"
	second.MaxTicks = 9
	_, err := r.Register(second)
	var dup *DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateNameError, got %v", err)
	}
	if dup.Existing != "a.js" || !strings.Contains(dup.Error(), "doors:opens") {
		t.Fatalf("dup=%+v msg=%q", dup, dup.Error())
	}
	got, ok := r.Lookup("doors", "opens")
	if !ok || got.MaxTicks != 5 || got.Source != "a.js" {
		t.Fatalf("first registration replaced: %+v", got)
	}
	if r.Len() != 1 {
		t.Fatalf("len=%d", r.Len())
	}

	// Same name in a different suite is a different test.
	if _, err := r.Register(def("mobs", "opens")); err != nil {
		t.Fatalf("Register other suite: %v", err)
	}
}

func TestRegister_Invalid(t *testing.T) {
	r := New()
	cases := map[string]TestDefinition{
		"suite": {Name: "x", MaxTicks: 1, Func: noop},
		"name":  {Suite: "s", MaxTicks: 1, Func: noop},
		"ticks": {Suite: "s", Name: "x", Func: noop},
		"setup": {Suite: "s", Name: "x", MaxTicks: 1, SetupTicks: -1, Func: noop},
		"func":  {Suite: "s", Name: "x", MaxTicks: 1},
		"minus": {Suite: "s", Name: "x", MaxTicks: -3, Func: noop},
	}
	for label, d := range cases {
		if _, err := r.Register(d); !errors.Is(err, ErrInvalidDefinition) {
			t.Fatalf("%s: expected ErrInvalidDefinition, got %v", label, err)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("invalid definitions registered: %d", r.Len())
	}
}

func TestRegister_TagsAreCopiedAndNormalized(t *testing.T) {
	r := New()
	tags := []string{"slow", "", "redstone", "slow"}
	h, err := r.Register(def("s", "t", tags...))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	tags[0] = "mutated"
	d, ok := r.Definition(h)
	if !ok {
		t.Fatalf("Definition(%+v) missing", h)
	}
	if strings.Join(d.Tags, ",") != "redstone,slow" {
		t.Fatalf("tags=%v", d.Tags)
	}
	if !d.HasTag("slow") || d.HasTag("mutated") {
		t.Fatalf("HasTag mismatch: %v", d.Tags)
	}
}

func TestReads_DoNotShareTags(t *testing.T) {
	r := New()
	h, err := r.Register(def("s", "t", "a", "b"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.ListBySuite("s")[0].Tags[0] = "x"
	got, _ := r.Lookup("s", "t")
	got.Tags[1] = "y"
	r.Select(Filter{})[0].Tags[0] = "z"
	d, _ := r.Definition(h)
	d.Tags[0] = "w"

	d, _ = r.Definition(h)
	if strings.Join(d.Tags, ",") != "a,b" {
		t.Fatalf("tags after caller writes: %v", d.Tags)
	}
	if sel := r.Select(Filter{Tags: []string{"a"}}); len(sel) != 1 {
		t.Fatalf("tag filter saw mutated tags: %d", len(sel))
	}
}

func TestDefinition_HandleMustMatch(t *testing.T) {
	r := New()
	h, err := r.Register(def("s", "a"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := r.Definition(Handle{Suite: "s", Name: "b", index: h.index}); ok {
		t.Fatalf("mismatched handle resolved")
	}
	if _, ok := r.Definition(Handle{Suite: "s", Name: "a", index: 7}); ok {
		t.Fatalf("out of range handle resolved")
	}
	if _, ok := New().Definition(h); ok {
		t.Fatalf("handle resolved against another registry")
	}
}

func TestListBySuite_RegistrationOrder(t *testing.T) {
	r := New()
	for _, d := range []TestDefinition{def("b", "z"), def("a", "y"), def("b", "x"), def("b", "w")} {
		if _, err := r.Register(d); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if got := names(r.ListBySuite("b")); got != "b:z,b:x,b:w" {
		t.Fatalf("ListBySuite(b)=%s", got)
	}
	if got := r.ListBySuite("missing"); len(got) != 0 {
		t.Fatalf("unknown suite: %v", got)
	}
	if got := strings.Join(r.Suites(), ","); got != "a,b" {
		t.Fatalf("Suites=%s", got)
	}
}

func TestSelect(t *testing.T) {
	r := New()
	for _, d := range []TestDefinition{
		def("redstone", "door_opens", "smoke"),
		def("mobs", "zombie_falls", "gravity"),
		def("redstone", "lever_toggles"),
		def("mobs", "villager_walks", "smoke", "ai"),
	} {
		if _, err := r.Register(d); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	cases := []struct {
		f    Filter
		want string
	}{
		{Filter{}, "mobs:zombie_falls,mobs:villager_walks,redstone:door_opens,redstone:lever_toggles"},
		{Filter{Suites: []string{"redstone"}}, "redstone:door_opens,redstone:lever_toggles"},
		{Filter{Tags: []string{"smoke"}}, "mobs:villager_walks,redstone:door_opens"},
		{Filter{Tags: []string{"gravity", "ai"}}, "mobs:zombie_falls,mobs:villager_walks"},
		{Filter{Name: "*_opens"}, "redstone:door_opens"},
		{Filter{Suites: []string{"mobs"}, Tags: []string{"smoke"}}, "mobs:villager_walks"},
		{Filter{Name: "["}, ""},
		{Filter{Suites: []string{"nether"}}, ""},
	}
	for _, tc := range cases {
		if got := names(r.Select(tc.f)); got != tc.want {
			t.Fatalf("Select(%+v)=%s want %s", tc.f, got, tc.want)
		}
	}
}

func TestRotations(t *testing.T) {
	d := def("s", "t")
	if got := d.Rotations(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("unrotated: %v", got)
	}
	d.Rotate = true
	if got := d.Rotations(); len(got) != 4 || got[3] != 3 {
		t.Fatalf("rotated: %v", got)
	}
}

func TestRegister_Concurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every name is registered twice; exactly one of each pair wins.
			_, err := r.Register(def("s", string(rune('a'+i%32))))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	dups := 0
	for err := range errs {
		var dup *DuplicateNameError
		if errors.As(err, &dup) {
			dups++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if dups != 32 || r.Len() != 32 {
		t.Fatalf("dups=%d len=%d", dups, r.Len())
	}
}
