package memworld

import (
	"errors"
	"testing"

	"voxelcraft.ai/gametest/internal/host"
	"voxelcraft.ai/gametest/internal/host/catalogs"
)

func newTestWorld(t *testing.T, cfg WorldConfig) *World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := New(cfg, cats)
	if err != nil {
		t.Fatalf("memworld.New: %v", err)
	}
	return w
}

func mustBlock(t *testing.T, w *World, p Vec3i) string {
	t.Helper()
	b, err := w.BlockAt(p)
	if err != nil {
		t.Fatalf("BlockAt(%v): %v", p, err)
	}
	return b
}

func TestSetBlock_AndFloor(t *testing.T) {
	w := newTestWorld(t, WorldConfig{FloorBlock: "GRASS"})
	if got := mustBlock(t, w, Vec3i{X: 3, Y: 0, Z: 3}); got != "GRASS" {
		t.Fatalf("floor: got %q want GRASS", got)
	}
	if got := mustBlock(t, w, Vec3i{X: 3, Y: 1, Z: 3}); got != "AIR" {
		t.Fatalf("above floor: got %q want AIR", got)
	}
	if err := w.SetBlock(Vec3i{X: 3, Y: 1, Z: 3}, "STONE"); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if got := mustBlock(t, w, Vec3i{X: 3, Y: 1, Z: 3}); got != "STONE" {
		t.Fatalf("got %q want STONE", got)
	}
	if err := w.SetBlock(Vec3i{X: 0, Y: 1, Z: 0}, "NOPE"); !errors.Is(err, host.ErrUnknownBlock) {
		t.Fatalf("expected ErrUnknownBlock, got %v", err)
	}
	if err := w.SetBlock(Vec3i{X: 100000, Y: 1, Z: 0}, "STONE"); !errors.Is(err, host.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestPlaceFixture_Rotated(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	origin := Vec3i{X: 10, Y: 0, Z: 10}
	p, err := w.PlaceFixture("door_pen", origin, 1)
	if err != nil {
		t.Fatalf("PlaceFixture: %v", err)
	}
	if p.Rotation != 1 || p.Size != [3]int{5, 3, 3} {
		t.Fatalf("placement: %+v", p)
	}
	door := p.Abs(Vec3i{X: 2, Y: 1, Z: 1})
	if got := mustBlock(t, w, door); got != "DOOR_CLOSED" {
		t.Fatalf("door at %v: got %q", door, got)
	}
	// rot=1 maps (x,z) -> (z,-x).
	if door != (Vec3i{X: 11, Y: 1, Z: 8}) {
		t.Fatalf("door world pos: got %v", door)
	}
	if _, err := w.PlaceFixture("nope", origin, 0); !errors.Is(err, host.ErrUnknownStructure) {
		t.Fatalf("expected ErrUnknownStructure, got %v", err)
	}
}

func TestPlaceFixture_ClearsFootprint(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	junk := Vec3i{X: 1, Y: 2, Z: 1}
	if err := w.SetBlock(junk, "DIRT"); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if _, err := w.PlaceFixture("platform_5x5", Vec3i{}, 0); err != nil {
		t.Fatalf("PlaceFixture: %v", err)
	}
	if got := mustBlock(t, w, junk); got != "AIR" {
		t.Fatalf("expected footprint cleared, got %q", got)
	}
	if got := mustBlock(t, w, Vec3i{X: 4, Y: 0, Z: 4}); got != "STONE" {
		t.Fatalf("expected STONE floor, got %q", got)
	}
}

func TestInteract_ButtonResets(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	pos := Vec3i{X: 0, Y: 1, Z: 0}
	if err := w.SetBlock(pos, "BUTTON"); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if err := w.Interact(pos); err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if got := mustBlock(t, w, pos); got != "BUTTON_PRESSED" {
		t.Fatalf("after press: got %q", got)
	}
	for i := 0; i < 9; i++ {
		w.Tick()
	}
	if got := mustBlock(t, w, pos); got != "BUTTON_PRESSED" {
		t.Fatalf("before reset: got %q", got)
	}
	w.Tick()
	if got := mustBlock(t, w, pos); got != "BUTTON" {
		t.Fatalf("after reset: got %q", got)
	}
	if err := w.Interact(Vec3i{X: 5, Y: 1, Z: 5}); !errors.Is(err, host.ErrNotInteractive) {
		t.Fatalf("expected ErrNotInteractive, got %v", err)
	}
}

func TestEntities_Gravity(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	if _, err := w.PlaceFixture("drop_shaft", Vec3i{}, 0); err != nil {
		t.Fatalf("PlaceFixture: %v", err)
	}
	id, err := w.SpawnEntity("zombie", Vec3i{X: 1, Y: 5, Z: 1})
	if err != nil {
		t.Fatalf("SpawnEntity: %v", err)
	}
	for i := 0; i < 3; i++ {
		w.Tick()
	}
	if pos, _ := w.EntityPos(id); pos.Y != 2 {
		t.Fatalf("after 3 ticks: y=%d want 2", pos.Y)
	}
	for i := 0; i < 5; i++ {
		w.Tick()
	}
	if got := w.EntitiesAt("zombie", Vec3i{X: 1, Y: 1, Z: 1}); len(got) != 1 || got[0] != id {
		t.Fatalf("expected zombie resting at y=1, got %v", got)
	}
}

func TestEntities_WalkBlockedBySolid(t *testing.T) {
	w := newTestWorld(t, WorldConfig{FloorBlock: "STONE"})
	id, err := w.SpawnEntity("villager", Vec3i{X: 0, Y: 1, Z: 0})
	if err != nil {
		t.Fatalf("SpawnEntity: %v", err)
	}
	if err := w.SetBlock(Vec3i{X: 3, Y: 1, Z: 0}, "STONE"); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if err := w.MoveEntity(id, Vec3i{X: 5, Y: 1, Z: 0}); err != nil {
		t.Fatalf("MoveEntity: %v", err)
	}
	for i := 0; i < 10; i++ {
		w.Tick()
	}
	if pos, _ := w.EntityPos(id); pos != (Vec3i{X: 2, Y: 1, Z: 0}) {
		t.Fatalf("expected villager stopped at wall, got %v", pos)
	}

	// Remove the wall; the walk target is still set.
	if err := w.SetBlock(Vec3i{X: 3, Y: 1, Z: 0}, "AIR"); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	for i := 0; i < 3; i++ {
		w.Tick()
	}
	if pos, _ := w.EntityPos(id); pos != (Vec3i{X: 5, Y: 1, Z: 0}) {
		t.Fatalf("expected villager at target, got %v", pos)
	}
}

func TestEntities_CountAndRemove(t *testing.T) {
	w := newTestWorld(t, WorldConfig{})
	a, _ := w.SpawnEntity("chicken", Vec3i{})
	_, _ = w.SpawnEntity("chicken", Vec3i{X: 1})
	_, _ = w.SpawnEntity("zombie", Vec3i{X: 2})
	if got := w.CountEntities("chicken"); got != 2 {
		t.Fatalf("chickens=%d", got)
	}
	if got := w.CountEntities(""); got != 3 {
		t.Fatalf("all=%d", got)
	}
	if err := w.RemoveEntity(a); err != nil {
		t.Fatalf("RemoveEntity: %v", err)
	}
	if err := w.RemoveEntity(a); !errors.Is(err, host.ErrNoSuchEntity) {
		t.Fatalf("expected ErrNoSuchEntity, got %v", err)
	}
	if _, err := w.SpawnEntity("dragon", Vec3i{}); !errors.Is(err, host.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestDigest_Deterministic(t *testing.T) {
	run := func() string {
		w := newTestWorld(t, WorldConfig{FloorBlock: "STONE"})
		_, _ = w.PlaceFixture("door_pen", Vec3i{X: 4, Y: 0, Z: 4}, 2)
		for i := 0; i < 4; i++ {
			id, _ := w.SpawnEntity("villager", Vec3i{X: i, Y: 1, Z: 0})
			_ = w.MoveEntity(id, Vec3i{X: i, Y: 1, Z: 6})
		}
		for i := 0; i < 20; i++ {
			w.Tick()
		}
		return w.Digest()
	}
	d1, d2 := run(), run()
	if d1 != d2 {
		t.Fatalf("digest mismatch: %s vs %s", d1, d2)
	}
}
