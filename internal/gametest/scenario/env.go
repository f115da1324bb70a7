package scenario

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"voxelcraft.ai/gametest/internal/gametest"
	"voxelcraft.ai/gametest/internal/host"
)

// state is the per-run data expressions and actions see.
type state struct {
	t       *gametest.T
	aliases map[string]host.EntityID
}

func newState(t *gametest.T) *state {
	return &state{t: t, aliases: map[string]host.EntityID{}}
}

// env exposes the fixture to expressions. Positions are fixture-relative.
//
//	tick                      current run tick
//	block(x, y, z)            block name, "" when unreadable
//	entity_at(type, x, y, z)  any entity of type ("" for any) at the position
//	count(type)               entities of type in the world
//	spawned(alias)            the aliased entity exists
//	at(alias, x, y, z)        the aliased entity stands at the position
func (s *state) env() map[string]any {
	return map[string]any{
		"tick": s.tick(),
		"block": func(x, y, z int) string {
			b, err := s.t.BlockAt(host.Vec3i{X: x, Y: y, Z: z})
			if err != nil {
				return ""
			}
			return b
		},
		"entity_at": func(typ string, x, y, z int) bool {
			return len(s.t.Host().EntitiesAt(typ, s.t.Abs(host.Vec3i{X: x, Y: y, Z: z}))) > 0
		},
		"count": func(typ string) int {
			return s.t.Host().CountEntities(typ)
		},
		"spawned": func(alias string) bool {
			id, ok := s.aliases[alias]
			if !ok {
				return false
			}
			_, ok = s.t.Host().EntityPos(id)
			return ok
		},
		"at": func(alias string, x, y, z int) bool {
			id, ok := s.aliases[alias]
			if !ok {
				return false
			}
			rel, ok := s.t.EntityRel(id)
			return ok && rel == host.Vec3i{X: x, Y: y, Z: z}
		},
	}
}

func (s *state) tick() int {
	if s.t == nil {
		return 0
	}
	return int(s.t.Tick())
}

// compileEnv is the type template expressions are checked against.
var compileEnv = (&state{}).env()

func compileCondition(src string) (*vm.Program, error) {
	return expr.Compile(src, expr.Env(compileEnv), expr.AsBool())
}

func (s *state) eval(p *vm.Program, src string) (bool, error) {
	out, err := expr.Run(p, s.env())
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: non-boolean result %T", src, out)
	}
	return b, nil
}
