package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/expr-lang/expr/vm"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxelcraft.ai/gametest/internal/gametest"
	"voxelcraft.ai/gametest/internal/gametest/registry"
	"voxelcraft.ai/gametest/internal/host"
)

const DefaultMaxTicks = 100

var ErrInvalidScenario = errors.New("invalid scenario")

type Loader struct {
	Registry *registry.Registry
	// Schema validates documents before decoding. Nil skips validation.
	Schema          *jsonschema.Schema
	DefaultMaxTicks int
}

// CompileSchema compiles the scenario JSON schema at path.
func CompileSchema(path string) (*jsonschema.Schema, error) {
	s, err := jsonschema.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}
	return s, nil
}

// LoadDir loads every *.yaml and *.yml file in dir in lexical order.
func (l *Loader) LoadDir(dir string) ([]registry.Handle, error) {
	var paths []string
	for _, pat := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return nil, err
		}
		paths = append(paths, m...)
	}
	sort.Strings(paths)
	var out []registry.Handle
	for _, p := range paths {
		hs, err := l.LoadFile(p)
		out = append(out, hs...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (l *Loader) LoadFile(path string) ([]registry.Handle, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.LoadBytes(path, b)
}

// LoadBytes validates, compiles and registers every test in the document.
// Nothing is registered unless the whole document compiles.
func (l *Loader) LoadBytes(name string, b []byte) ([]registry.Handle, error) {
	if l.Registry == nil {
		return nil, errors.New("scenario: nil registry")
	}
	f, err := l.decode(name, b)
	if err != nil {
		return nil, err
	}
	defs := make([]registry.TestDefinition, 0, len(f.Tests))
	for i, ts := range f.Tests {
		def, err := l.compileTest(f, ts)
		if err != nil {
			return nil, fmt.Errorf("%s: tests[%d] %q: %w", name, i, ts.Name, err)
		}
		def.Source = name
		defs = append(defs, def)
	}
	out := make([]registry.Handle, 0, len(defs))
	for _, def := range defs {
		h, err := l.Registry.Register(def)
		if err != nil {
			return out, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, h)
	}
	return out, nil
}

func (l *Loader) decode(name string, b []byte) (File, error) {
	if l.Schema != nil {
		var raw any
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return File{}, fmt.Errorf("%s: parse yaml: %w", name, err)
		}
		doc, err := jsonValue(raw)
		if err != nil {
			return File{}, fmt.Errorf("%s: %w", name, err)
		}
		if err := l.Schema.Validate(doc); err != nil {
			return File{}, fmt.Errorf("%s: %w: %v", name, ErrInvalidScenario, err)
		}
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("%s: decode yaml: %w", name, err)
	}
	if f.Suite == "" {
		return File{}, fmt.Errorf("%s: %w: missing suite", name, ErrInvalidScenario)
	}
	return f, nil
}

// jsonValue converts a decoded YAML tree into the shape the schema
// validator expects (json.Number for numbers, map[string]any for objects).
func jsonValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("convert yaml to json: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("convert yaml to json: %w", err)
	}
	return out, nil
}

func (l *Loader) compileTest(f File, ts TestEntry) (registry.TestDefinition, error) {
	def := registry.TestDefinition{
		Suite:      f.Suite,
		Name:       ts.Name,
		Structure:  firstNonEmpty(ts.Structure, f.Defaults.Structure),
		MaxTicks:   firstPositive(ts.MaxTicks, f.Defaults.MaxTicks, l.DefaultMaxTicks, DefaultMaxTicks),
		SetupTicks: f.Defaults.SetupTicks,
		Tags:       append(append([]string(nil), f.Defaults.Tags...), ts.Tags...),
		Rotate:     ts.Rotate,
		Required:   true,
	}
	if ts.SetupTicks != nil {
		def.SetupTicks = *ts.SetupTicks
	}
	if ts.Required != nil {
		def.Required = *ts.Required
	}

	steps := make([]*step, 0, len(ts.Steps))
	cursor := 0
	for i, ss := range ts.Steps {
		st, err := compileStep(ss, &cursor, def.MaxTicks)
		if err != nil {
			return registry.TestDefinition{}, fmt.Errorf("steps[%d]: %w", i, err)
		}
		steps = append(steps, st)
	}
	if len(steps) == 0 {
		return registry.TestDefinition{}, fmt.Errorf("%w: no steps", ErrInvalidScenario)
	}

	def.Func = func(t *gametest.T) error {
		s := newState(t)
		for _, st := range steps {
			st := st
			if err := t.RunAtTickTime(st.tick, func() error { return st.run(t, s) }); err != nil {
				return err
			}
		}
		return nil
	}
	return def, nil
}

type step struct {
	tick    int
	actions []action
	// Timed steps.
	assertSrc string
	assert    *vm.Program
	// Waits.
	untilSrc string
	until    *vm.Program
	timeout  int
	succeed  bool
	message  string
}

func compileStep(ss StepEntry, cursor *int, maxTicks int) (*step, error) {
	if ss.At != nil && ss.After != nil {
		return nil, fmt.Errorf("%w: at and after are exclusive", ErrInvalidScenario)
	}
	switch {
	case ss.At != nil:
		if *ss.At < 0 {
			return nil, fmt.Errorf("%w: negative at", ErrInvalidScenario)
		}
		*cursor = *ss.At
	case ss.After != nil:
		if *ss.After < 0 {
			return nil, fmt.Errorf("%w: negative after", ErrInvalidScenario)
		}
		*cursor += *ss.After
	}
	st := &step{tick: *cursor, message: ss.Message, succeed: ss.Succeed}

	for i, as := range ss.Do {
		a, err := compileAction(as)
		if err != nil {
			return nil, fmt.Errorf("do[%d]: %w", i, err)
		}
		st.actions = append(st.actions, a)
	}

	if ss.Until != "" {
		if ss.Assert != "" {
			return nil, fmt.Errorf("%w: until and assert are exclusive", ErrInvalidScenario)
		}
		p, err := compileCondition(ss.Until)
		if err != nil {
			return nil, fmt.Errorf("until: %w", err)
		}
		st.untilSrc, st.until = ss.Until, p
		st.timeout = ss.Timeout
		if st.timeout <= 0 {
			st.timeout = maxTicks - st.tick
			if st.timeout < 0 {
				st.timeout = 0
			}
		}
		return st, nil
	}
	if ss.Assert != "" {
		p, err := compileCondition(ss.Assert)
		if err != nil {
			return nil, fmt.Errorf("assert: %w", err)
		}
		st.assertSrc, st.assert = ss.Assert, p
	}
	if len(st.actions) == 0 && st.assert == nil && !st.succeed {
		return nil, fmt.Errorf("%w: empty step", ErrInvalidScenario)
	}
	return st, nil
}

func (st *step) run(t *gametest.T, s *state) error {
	if st.until != nil {
		return t.RepeatUntil(func() error {
			ok, err := s.eval(st.until, st.untilSrc)
			if err != nil {
				return err
			}
			if !ok {
				return t.Fail(st.failure("condition not met", st.untilSrc))
			}
			return nil
		}, st.timeout, func() error {
			if err := st.runActions(t, s); err != nil {
				return err
			}
			if st.succeed {
				t.Succeed()
			}
			return nil
		})
	}
	if err := st.runActions(t, s); err != nil {
		return err
	}
	if st.assert != nil {
		ok, err := s.eval(st.assert, st.assertSrc)
		if err != nil {
			return err
		}
		if !ok {
			return t.Fail(st.failure("assertion failed", st.assertSrc))
		}
	}
	if st.succeed {
		t.Succeed()
	}
	return nil
}

func (st *step) runActions(t *gametest.T, s *state) error {
	for _, a := range st.actions {
		if t.Done() {
			return nil
		}
		if err := a(t, s); err != nil {
			return err
		}
	}
	return nil
}

func (st *step) failure(prefix, src string) string {
	if st.message != "" {
		return st.message
	}
	return fmt.Sprintf("%s: %s", prefix, src)
}

type action func(t *gametest.T, s *state) error

func compileAction(as ActionEntry) (action, error) {
	n := 0
	var a action
	if as.SetBlock != nil {
		n++
		pos, err := vec(as.SetBlock.Pos)
		if err != nil {
			return nil, err
		}
		block := as.SetBlock.Block
		a = func(t *gametest.T, _ *state) error { return t.SetBlock(block, pos) }
	}
	if as.Spawn != nil {
		n++
		pos, err := vec(as.Spawn.Pos)
		if err != nil {
			return nil, err
		}
		typ, alias := as.Spawn.Type, as.Spawn.As
		a = func(t *gametest.T, s *state) error {
			id, err := t.Spawn(typ, pos)
			if err != nil {
				return err
			}
			if alias != "" {
				s.aliases[alias] = id
			}
			return nil
		}
	}
	if as.Interact != nil {
		n++
		pos, err := vec(as.Interact)
		if err != nil {
			return nil, err
		}
		a = func(t *gametest.T, _ *state) error { return t.PressButton(pos) }
	}
	if as.Walk != nil {
		n++
		pos, err := vec(as.Walk.To)
		if err != nil {
			return nil, err
		}
		alias := as.Walk.Entity
		a = func(t *gametest.T, s *state) error {
			id, err := s.entity(alias)
			if err != nil {
				return err
			}
			return t.WalkTo(id, pos)
		}
	}
	if as.Remove != "" {
		n++
		alias := as.Remove
		a = func(t *gametest.T, s *state) error {
			id, err := s.entity(alias)
			if err != nil {
				return err
			}
			return t.Remove(id)
		}
	}
	if as.Succeed {
		n++
		a = func(t *gametest.T, _ *state) error {
			t.Succeed()
			return nil
		}
	}
	if as.Fail != "" {
		n++
		msg := as.Fail
		a = func(t *gametest.T, _ *state) error { return t.Fail(msg) }
	}
	if n != 1 {
		return nil, fmt.Errorf("%w: action must set exactly one of set_block, spawn, interact, walk, remove, succeed, fail (got %d)", ErrInvalidScenario, n)
	}
	return a, nil
}

func (s *state) entity(alias string) (host.EntityID, error) {
	id, ok := s.aliases[alias]
	if !ok {
		return "", fmt.Errorf("unknown entity alias %q", alias)
	}
	return id, nil
}

func vec(p []int) (host.Vec3i, error) {
	if len(p) != 3 {
		return host.Vec3i{}, fmt.Errorf("%w: position needs 3 coordinates, got %d", ErrInvalidScenario, len(p))
	}
	return host.Vec3i{X: p[0], Y: p[1], Z: p[2]}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
