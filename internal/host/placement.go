package host

// Placement maps test-relative positions onto world positions for one
// placed fixture.
type Placement struct {
	Origin   Vec3i
	Rotation int
	// Size is the unrotated structure extent; zero for an empty fixture.
	Size [3]int
}

// NormalizeRotation converts a rotation value into a stable quarter-turn
// count in [0,3]. Quarter turns (0..3) and degrees (multiples of 90) are both
// accepted.
func NormalizeRotation(r int) int {
	if r%90 == 0 && (r > 3 || r < -3) {
		r = r / 90
	}
	r %= 4
	if r < 0 {
		r += 4
	}
	return r
}

// RotateXZ rotates an (x,z) offset around the Y axis by rot*90 degrees clockwise.
// rot must be normalized.
func RotateXZ(x, z, rot int) (rx, rz int) {
	switch rot & 3 {
	case 0:
		return x, z
	case 1:
		return z, -x
	case 2:
		return -x, -z
	default:
		return -z, x
	}
}

func RotateOffset(off Vec3i, rot int) Vec3i {
	rx, rz := RotateXZ(off.X, off.Z, rot)
	return Vec3i{X: rx, Y: off.Y, Z: rz}
}

// Abs converts a structure-relative position to a world position.
func (p Placement) Abs(rel Vec3i) Vec3i {
	return p.Origin.Add(RotateOffset(rel, p.Rotation))
}

// Rel is the inverse of Abs.
func (p Placement) Rel(abs Vec3i) Vec3i {
	d := Vec3i{X: abs.X - p.Origin.X, Y: abs.Y - p.Origin.Y, Z: abs.Z - p.Origin.Z}
	return RotateOffset(d, (4-p.Rotation)&3)
}
