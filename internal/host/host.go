// Package host defines the world primitives the harness drives. The world
// simulation itself lives behind the Host interface.
package host

import (
	"errors"
	"fmt"
)

type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

func Manhattan(a, b Vec3i) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	return dx + dy + dz
}

type EntityID string

var (
	ErrUnknownBlock     = errors.New("unknown block")
	ErrUnknownEntity    = errors.New("unknown entity type")
	ErrNoSuchEntity     = errors.New("no such entity")
	ErrUnknownStructure = errors.New("unknown structure")
	ErrOutOfBounds      = errors.New("position out of bounds")
	ErrNotInteractive   = errors.New("block is not interactive")
)

// Host is the world a run executes against. Every method is called from the
// goroutine driving the run; implementations need not be safe for concurrent use.
type Host interface {
	// Tick advances the simulation by one tick.
	Tick()
	CurrentTick() uint64

	// PlaceFixture loads the named structure at origin with the given rotation
	// (quarter turns) and returns the transform for test-relative positions.
	// An empty name places nothing and returns an identity placement at origin.
	PlaceFixture(name string, origin Vec3i, rotation int) (Placement, error)

	SetBlock(pos Vec3i, block string) error
	BlockAt(pos Vec3i) (string, error)
	// Interact simulates a player using the block at pos (button, lever, door).
	Interact(pos Vec3i) error

	SpawnEntity(typ string, pos Vec3i) (EntityID, error)
	// MoveEntity gives the entity a walk target; the host moves it over later ticks.
	MoveEntity(id EntityID, target Vec3i) error
	RemoveEntity(id EntityID) error
	EntityPos(id EntityID) (Vec3i, bool)
	// EntitiesAt returns ids of entities of typ at pos, sorted. An empty typ matches any type.
	EntitiesAt(typ string, pos Vec3i) []EntityID
	CountEntities(typ string) int
}

// Factory builds a fresh Host for one run so runs never share world state.
type Factory func() (Host, error)
