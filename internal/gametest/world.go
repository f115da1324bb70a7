package gametest

import (
	"fmt"

	"voxelcraft.ai/gametest/internal/host"
)

// World helpers take positions relative to the fixture; the placement maps
// them to world coordinates, so rotated runs need no changes.

func (t *T) SetBlock(block string, rel host.Vec3i) error {
	return t.host.SetBlock(t.place.Abs(rel), block)
}

func (t *T) BlockAt(rel host.Vec3i) (string, error) {
	return t.host.BlockAt(t.place.Abs(rel))
}

func (t *T) Spawn(typ string, rel host.Vec3i) (host.EntityID, error) {
	return t.host.SpawnEntity(typ, t.place.Abs(rel))
}

// PressButton interacts with the block at rel (buttons, levers, doors).
func (t *T) PressButton(rel host.Vec3i) error {
	return t.host.Interact(t.place.Abs(rel))
}

func (t *T) WalkTo(id host.EntityID, rel host.Vec3i) error {
	return t.host.MoveEntity(id, t.place.Abs(rel))
}

func (t *T) Remove(id host.EntityID) error {
	return t.host.RemoveEntity(id)
}

// EntityRel reports an entity's position relative to the fixture.
func (t *T) EntityRel(id host.EntityID) (host.Vec3i, bool) {
	p, ok := t.host.EntityPos(id)
	if !ok {
		return host.Vec3i{}, false
	}
	return t.place.Rel(p), true
}

// AssertBlockPresent checks that rel holds block (present) or anything but
// block (!present). Host errors are returned unwrapped and end the run as
// unexpected.
func (t *T) AssertBlockPresent(block string, rel host.Vec3i, present bool) error {
	got, err := t.BlockAt(rel)
	if err != nil {
		return err
	}
	if (got == block) == present {
		return nil
	}
	if present {
		return t.Failf("expected %s at %s, got %s", block, rel, got)
	}
	return t.Failf("expected no %s at %s", block, rel)
}

func (t *T) AssertBlockNotPresent(block string, rel host.Vec3i) error {
	return t.AssertBlockPresent(block, rel, false)
}

// AssertEntityPresent checks for an entity of typ at rel. An empty typ
// matches any entity.
func (t *T) AssertEntityPresent(typ string, rel host.Vec3i) error {
	if len(t.host.EntitiesAt(typ, t.place.Abs(rel))) > 0 {
		return nil
	}
	return t.Failf("expected %s at %s", entityLabel(typ), rel)
}

func (t *T) AssertEntityNotPresent(typ string, rel host.Vec3i) error {
	ids := t.host.EntitiesAt(typ, t.place.Abs(rel))
	if len(ids) == 0 {
		return nil
	}
	return t.Failf("expected no %s at %s, found %d", entityLabel(typ), rel, len(ids))
}

func (t *T) AssertEntityCount(typ string, want int) error {
	got := t.host.CountEntities(typ)
	if got == want {
		return nil
	}
	return t.Failf("expected %d %s, got %d", want, entityLabel(typ), got)
}

func entityLabel(typ string) string {
	if typ == "" {
		return "entity"
	}
	return fmt.Sprintf("entity %s", typ)
}
