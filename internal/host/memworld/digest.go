package memworld

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Digest hashes the full world state. Two worlds driven by the same inputs
// produce the same digest at the same tick.
func (w *World) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, w.tick)

	pos := make([]Vec3i, 0, len(w.blocks))
	for p := range w.blocks {
		pos = append(pos, p)
	}
	sortPositions(pos)
	digestWriteU64(h, &tmp, uint64(len(pos)))
	for _, p := range pos {
		digestWritePos(h, &tmp, p)
		digestWriteU64(h, &tmp, uint64(w.blocks[p]))
	}

	ents := w.sortedEntities()
	digestWriteU64(h, &tmp, uint64(len(ents)))
	for _, e := range ents {
		h.Write([]byte(e.ID))
		h.Write([]byte{0})
		h.Write([]byte(e.Type))
		h.Write([]byte{0})
		digestWritePos(h, &tmp, e.Pos)
		if e.Target != nil {
			h.Write([]byte{1})
			digestWritePos(h, &tmp, *e.Target)
		} else {
			h.Write([]byte{0})
		}
	}

	resets := make([]Vec3i, 0, len(w.resets))
	for p := range w.resets {
		resets = append(resets, p)
	}
	sortPositions(resets)
	for _, p := range resets {
		digestWritePos(h, &tmp, p)
		digestWriteU64(h, &tmp, w.resets[p])
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWritePos(h hash.Hash, tmp *[8]byte, p Vec3i) {
	digestWriteU64(h, tmp, uint64(int64(p.X)))
	digestWriteU64(h, tmp, uint64(int64(p.Y)))
	digestWriteU64(h, tmp, uint64(int64(p.Z)))
}
