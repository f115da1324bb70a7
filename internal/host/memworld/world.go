// Package memworld is a small deterministic voxel world that implements
// host.Host. It keeps blocks in a sparse map and simulates just enough
// behavior for scenarios: entity walking, entity gravity and interactive
// blocks that toggle (and optionally reset).
package memworld

import (
	"fmt"
	"sort"

	"voxelcraft.ai/gametest/internal/host"
	"voxelcraft.ai/gametest/internal/host/catalogs"
)

type Vec3i = host.Vec3i

type WorldConfig struct {
	// BoundaryR bounds |x| and |z|.
	BoundaryR int
	// Height bounds y to [0, Height).
	Height int
	// FloorBlock fills y=0 everywhere not explicitly set. Empty means AIR.
	FloorBlock string
}

func (c *WorldConfig) normalize() {
	if c.BoundaryR <= 0 {
		c.BoundaryR = 256
	}
	if c.Height <= 0 {
		c.Height = 64
	}
}

type entity struct {
	ID     host.EntityID
	Type   string
	Pos    host.Vec3i
	Target *host.Vec3i
}

type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs

	tick uint64

	air    uint16
	floor  uint16
	blocks map[host.Vec3i]uint16

	entities   map[host.EntityID]*entity
	nextEntity uint64

	// pos -> tick at which a toggled block reverts
	resets map[host.Vec3i]uint64
}

var _ host.Host = (*World)(nil)

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("memworld: nil catalogs")
	}
	cfg.normalize()
	w := &World{
		cfg:      cfg,
		catalogs: cats,
		air:      cats.Blocks.Index["AIR"],
		blocks:   map[host.Vec3i]uint16{},
		entities: map[host.EntityID]*entity{},
		resets:   map[host.Vec3i]uint64{},
	}
	w.floor = w.air
	if cfg.FloorBlock != "" {
		id, ok := cats.Blocks.Index[cfg.FloorBlock]
		if !ok {
			return nil, fmt.Errorf("memworld: floor: %w: %s", host.ErrUnknownBlock, cfg.FloorBlock)
		}
		w.floor = id
	}
	return w, nil
}

// Factory returns a host.Factory that builds a fresh world per run.
func Factory(cfg WorldConfig, cats *catalogs.Catalogs) host.Factory {
	return func() (host.Host, error) {
		return New(cfg, cats)
	}
}

func (w *World) CurrentTick() uint64 { return w.tick }

func (w *World) Tick() {
	w.tick++
	w.tickResets()
	w.tickEntities()
}

func (w *World) inBounds(p host.Vec3i) bool {
	r := w.cfg.BoundaryR
	if p.X < -r || p.X > r || p.Z < -r || p.Z > r {
		return false
	}
	return p.Y >= 0 && p.Y < w.cfg.Height
}

func (w *World) getBlock(p host.Vec3i) uint16 {
	if b, ok := w.blocks[p]; ok {
		return b
	}
	if p.Y == 0 {
		return w.floor
	}
	return w.air
}

func (w *World) setBlock(p host.Vec3i, b uint16) {
	if p.Y == 0 && b == w.floor {
		delete(w.blocks, p)
	} else if p.Y != 0 && b == w.air {
		delete(w.blocks, p)
	} else {
		w.blocks[p] = b
	}
	delete(w.resets, p)
}

func (w *World) blockName(b uint16) string {
	if int(b) >= len(w.catalogs.Blocks.Palette) {
		return ""
	}
	return w.catalogs.Blocks.Palette[b]
}

func (w *World) blockSolid(b uint16) bool {
	return w.catalogs.Blocks.Defs[w.blockName(b)].Solid
}

func (w *World) SetBlock(pos host.Vec3i, block string) error {
	if !w.inBounds(pos) {
		return fmt.Errorf("set %s: %w", pos, host.ErrOutOfBounds)
	}
	id, ok := w.catalogs.Blocks.Index[block]
	if !ok {
		return fmt.Errorf("set %s: %w: %s", pos, host.ErrUnknownBlock, block)
	}
	w.setBlock(pos, id)
	return nil
}

func (w *World) BlockAt(pos host.Vec3i) (string, error) {
	if !w.inBounds(pos) {
		return "", fmt.Errorf("get %s: %w", pos, host.ErrOutOfBounds)
	}
	return w.blockName(w.getBlock(pos)), nil
}

func (w *World) Interact(pos host.Vec3i) error {
	if !w.inBounds(pos) {
		return fmt.Errorf("interact %s: %w", pos, host.ErrOutOfBounds)
	}
	name := w.blockName(w.getBlock(pos))
	def := w.catalogs.Blocks.Defs[name]
	if def.TogglesTo == "" {
		return fmt.Errorf("interact %s: %w: %s", pos, host.ErrNotInteractive, name)
	}
	w.setBlock(pos, w.catalogs.Blocks.Index[def.TogglesTo])
	if def.ResetTicks > 0 {
		w.resets[pos] = w.tick + uint64(def.ResetTicks)
	}
	return nil
}

func (w *World) tickResets() {
	if len(w.resets) == 0 {
		return
	}
	due := make([]host.Vec3i, 0, len(w.resets))
	for p, at := range w.resets {
		if at <= w.tick {
			due = append(due, p)
		}
	}
	sortPositions(due)
	for _, p := range due {
		name := w.blockName(w.getBlock(p))
		back := w.catalogs.Blocks.Defs[name].TogglesTo
		delete(w.resets, p)
		if back == "" {
			continue
		}
		w.setBlock(p, w.catalogs.Blocks.Index[back])
	}
}

func (w *World) PlaceFixture(name string, origin host.Vec3i, rotation int) (host.Placement, error) {
	rot := host.NormalizeRotation(rotation)
	if name == "" {
		return host.Placement{Origin: origin, Rotation: rot}, nil
	}
	sd, ok := w.catalogs.Structures.ByID[name]
	if !ok {
		return host.Placement{}, fmt.Errorf("fixture %s: %w", name, host.ErrUnknownStructure)
	}
	p := host.Placement{Origin: origin, Rotation: rot, Size: sd.Size}

	// Clear the footprint (floor layer reset to the floor block) before placing.
	for y := 0; y < sd.Size[1]; y++ {
		for z := 0; z < sd.Size[2]; z++ {
			for x := 0; x < sd.Size[0]; x++ {
				abs := p.Abs(host.Vec3i{X: x, Y: y, Z: z})
				if !w.inBounds(abs) {
					return host.Placement{}, fmt.Errorf("fixture %s at %s: %w", name, origin, host.ErrOutOfBounds)
				}
				if abs.Y == 0 {
					w.setBlock(abs, w.floor)
				} else {
					w.setBlock(abs, w.air)
				}
			}
		}
	}
	for _, b := range sd.Blocks {
		abs := p.Abs(host.Vec3i{X: b.Pos[0], Y: b.Pos[1], Z: b.Pos[2]})
		w.setBlock(abs, w.catalogs.Blocks.Index[b.Block])
	}
	return p, nil
}

func sortPositions(ps []host.Vec3i) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].X != ps[j].X {
			return ps[i].X < ps[j].X
		}
		if ps[i].Y != ps[j].Y {
			return ps[i].Y < ps[j].Y
		}
		return ps[i].Z < ps[j].Z
	})
}
