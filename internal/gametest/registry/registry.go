// Package registry holds the process-wide set of test definitions. A Registry
// starts empty and only grows; there is no way to clear it short of building
// a new one, and the runner is always handed one explicitly.
package registry

import (
	"path"
	"sort"
	"sync"
)

// Handle identifies a registered definition.
type Handle struct {
	Suite string
	Name  string
	index int
}

type key struct{ suite, name string }

type Registry struct {
	mu     sync.RWMutex
	defs   []TestDefinition
	byKey  map[key]int
	suites map[string][]int
}

func New() *Registry {
	return &Registry{
		byKey:  map[key]int{},
		suites: map[string][]int{},
	}
}

// Register stores def. A second registration of the same (suite, name) pair
// fails with *DuplicateNameError and leaves the first one untouched.
func (r *Registry) Register(def TestDefinition) (Handle, error) {
	if err := def.validate(); err != nil {
		return Handle{}, err
	}
	def = def.clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{def.Suite, def.Name}
	if i, ok := r.byKey[k]; ok {
		return Handle{}, &DuplicateNameError{Suite: def.Suite, Name: def.Name, Existing: r.defs[i].Source}
	}
	idx := len(r.defs)
	r.defs = append(r.defs, def)
	r.byKey[k] = idx
	r.suites[def.Suite] = append(r.suites[def.Suite], idx)
	return Handle{Suite: def.Suite, Name: def.Name, index: idx}, nil
}

// Definition resolves a handle returned by Register.
func (r *Registry) Definition(h Handle) (TestDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h.index < 0 || h.index >= len(r.defs) {
		return TestDefinition{}, false
	}
	d := r.defs[h.index]
	if d.Suite != h.Suite || d.Name != h.Name {
		return TestDefinition{}, false
	}
	return d.copied(), true
}

func (r *Registry) Lookup(suite, name string) (TestDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byKey[key{suite, name}]
	if !ok {
		return TestDefinition{}, false
	}
	return r.defs[i].copied(), true
}

// ListBySuite returns the suite's definitions in registration order.
func (r *Registry) ListBySuite(suite string) []TestDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.suites[suite]
	out := make([]TestDefinition, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.defs[i].copied())
	}
	return out
}

// Suites returns all suite names, sorted.
func (r *Registry) Suites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.suites))
	for s := range r.suites {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Filter narrows a selection. Zero values match everything.
type Filter struct {
	Suites []string
	// Tags matches definitions carrying any of the tags.
	Tags []string
	// Name is a path.Match glob applied to the test name.
	Name string
}

func (f Filter) match(d TestDefinition) bool {
	if len(f.Suites) > 0 && !contains(f.Suites, d.Suite) {
		return false
	}
	if len(f.Tags) > 0 {
		hit := false
		for _, t := range f.Tags {
			if d.HasTag(t) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.Name != "" {
		ok, err := path.Match(f.Name, d.Name)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Select returns matching definitions ordered by suite name, then
// registration order within the suite.
func (r *Registry) Select(f Filter) []TestDefinition {
	var out []TestDefinition
	for _, s := range r.Suites() {
		for _, d := range r.ListBySuite(s) {
			if f.match(d) {
				out = append(out, d)
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
