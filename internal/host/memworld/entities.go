package memworld

import (
	"fmt"
	"sort"

	"voxelcraft.ai/gametest/internal/host"
)

func (w *World) SpawnEntity(typ string, pos host.Vec3i) (host.EntityID, error) {
	if _, ok := w.catalogs.Entities.Defs[typ]; !ok {
		return "", fmt.Errorf("spawn %s: %w", typ, host.ErrUnknownEntity)
	}
	if !w.inBounds(pos) {
		return "", fmt.Errorf("spawn %s at %s: %w", typ, pos, host.ErrOutOfBounds)
	}
	w.nextEntity++
	id := host.EntityID(fmt.Sprintf("E%06d", w.nextEntity))
	w.entities[id] = &entity{ID: id, Type: typ, Pos: pos}
	return id, nil
}

func (w *World) MoveEntity(id host.EntityID, target host.Vec3i) error {
	e := w.entities[id]
	if e == nil {
		return fmt.Errorf("move %s: %w", id, host.ErrNoSuchEntity)
	}
	if !w.inBounds(target) {
		return fmt.Errorf("move %s to %s: %w", id, target, host.ErrOutOfBounds)
	}
	t := target
	e.Target = &t
	return nil
}

func (w *World) RemoveEntity(id host.EntityID) error {
	if _, ok := w.entities[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, host.ErrNoSuchEntity)
	}
	delete(w.entities, id)
	return nil
}

func (w *World) EntityPos(id host.EntityID) (host.Vec3i, bool) {
	e := w.entities[id]
	if e == nil {
		return host.Vec3i{}, false
	}
	return e.Pos, true
}

func (w *World) EntitiesAt(typ string, pos host.Vec3i) []host.EntityID {
	var out []host.EntityID
	for _, e := range w.entities {
		if e.Pos != pos {
			continue
		}
		if typ != "" && e.Type != typ {
			continue
		}
		out = append(out, e.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (w *World) CountEntities(typ string) int {
	n := 0
	for _, e := range w.entities {
		if typ == "" || e.Type == typ {
			n++
		}
	}
	return n
}

func (w *World) sortedEntities() []*entity {
	out := make([]*entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// tickEntities applies gravity, then one walk step per unit of speed. Entities
// are processed in id order so the result does not depend on map iteration.
func (w *World) tickEntities() {
	for _, e := range w.sortedEntities() {
		def := w.catalogs.Entities.Defs[e.Type]
		// y=0 rests on bedrock.
		if def.Falls && e.Pos.Y > 0 {
			below := host.Vec3i{X: e.Pos.X, Y: e.Pos.Y - 1, Z: e.Pos.Z}
			if !w.blockSolid(w.getBlock(below)) {
				e.Pos = below
				continue
			}
		}
		if e.Target == nil || def.Speed == 0 {
			continue
		}
		for i := 0; i < def.Speed; i++ {
			if e.Pos == *e.Target {
				break
			}
			next, ok := w.walkStep(e.Pos, *e.Target, !def.Falls)
			if !ok {
				break
			}
			e.Pos = next
		}
		if e.Pos == *e.Target {
			e.Target = nil
		}
	}
}

// walkStep picks the next cell toward target: x axis first, then z, then y
// (flyers only). A solid cell on the preferred axis falls through to the next.
func (w *World) walkStep(from, to host.Vec3i, fly bool) (host.Vec3i, bool) {
	cands := make([]host.Vec3i, 0, 3)
	if d := sign(to.X - from.X); d != 0 {
		cands = append(cands, host.Vec3i{X: from.X + d, Y: from.Y, Z: from.Z})
	}
	if d := sign(to.Z - from.Z); d != 0 {
		cands = append(cands, host.Vec3i{X: from.X, Y: from.Y, Z: from.Z + d})
	}
	if fly {
		if d := sign(to.Y - from.Y); d != 0 {
			cands = append(cands, host.Vec3i{X: from.X, Y: from.Y + d, Z: from.Z})
		}
	}
	for _, c := range cands {
		if !w.inBounds(c) {
			continue
		}
		if w.blockSolid(w.getBlock(c)) {
			continue
		}
		return c, true
	}
	return from, false
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
