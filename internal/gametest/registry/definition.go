package registry

import (
	"errors"
	"fmt"
	"sort"

	"voxelcraft.ai/gametest/internal/gametest"
)

var ErrInvalidDefinition = errors.New("invalid test definition")

// TestDefinition describes one registered test. It is immutable once
// registered; Register stores a private copy.
type TestDefinition struct {
	Suite string
	Name  string
	// Structure is the fixture placed before the run; resolved by the host.
	Structure string
	MaxTicks  int
	Tags      []string
	// Rotate runs the test once per quarter turn of the fixture.
	Rotate bool
	// SetupTicks lets the host settle after fixture placement before tick 0.
	SetupTicks int
	// Required tests fail the batch when they do not pass.
	Required bool
	// Source is the file the definition was loaded from, if any.
	Source string

	Func gametest.TestFunc
}

func (d TestDefinition) ID() string { return d.Suite + ":" + d.Name }

func (d TestDefinition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Rotations lists the quarter turns a run should be executed with.
func (d TestDefinition) Rotations() []int {
	if d.Rotate {
		return []int{0, 1, 2, 3}
	}
	return []int{0}
}

func (d TestDefinition) validate() error {
	switch {
	case d.Suite == "":
		return fmt.Errorf("%w: empty suite", ErrInvalidDefinition)
	case d.Name == "":
		return fmt.Errorf("%w: %s: empty name", ErrInvalidDefinition, d.Suite)
	case d.MaxTicks <= 0:
		return fmt.Errorf("%w: %s: max ticks must be positive, got %d", ErrInvalidDefinition, d.ID(), d.MaxTicks)
	case d.SetupTicks < 0:
		return fmt.Errorf("%w: %s: negative setup ticks", ErrInvalidDefinition, d.ID())
	case d.Func == nil:
		return fmt.Errorf("%w: %s: nil test func", ErrInvalidDefinition, d.ID())
	}
	return nil
}

func (d TestDefinition) clone() TestDefinition {
	out := d
	seen := make(map[string]bool, len(d.Tags))
	out.Tags = make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out.Tags = append(out.Tags, t)
	}
	sort.Strings(out.Tags)
	return out
}

// copied returns d with its own Tags so callers cannot reach stored state.
func (d TestDefinition) copied() TestDefinition {
	d.Tags = append([]string(nil), d.Tags...)
	return d
}

// DuplicateNameError is returned when a (suite, name) pair is registered twice.
type DuplicateNameError struct {
	Suite string
	Name  string
	// Source of the registration that already holds the name.
	Existing string
}

func (e *DuplicateNameError) Error() string {
	if e.Existing != "" {
		return fmt.Sprintf("duplicate test %s:%s (already registered from %s)", e.Suite, e.Name, e.Existing)
	}
	return fmt.Sprintf("duplicate test %s:%s", e.Suite, e.Name)
}
