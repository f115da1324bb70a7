package host

import "testing"

func TestNormalizeRotation(t *testing.T) {
	cases := map[int]int{
		0:    0,
		1:    1,
		3:    3,
		4:    0,
		-1:   3,
		90:   1,
		180:  2,
		270:  3,
		-90:  3,
		360:  0,
		450:  1,
		-270: 1,
	}
	for in, want := range cases {
		if got := NormalizeRotation(in); got != want {
			t.Fatalf("NormalizeRotation(%d)=%d want %d", in, got, want)
		}
	}
}

func TestPlacement_AbsRelRoundTrip(t *testing.T) {
	rel := Vec3i{X: 2, Y: 1, Z: -3}
	for rot := 0; rot < 4; rot++ {
		p := Placement{Origin: Vec3i{X: 10, Y: 0, Z: -5}, Rotation: rot}
		abs := p.Abs(rel)
		if got := p.Rel(abs); got != rel {
			t.Fatalf("rot=%d: Rel(Abs(%v))=%v", rot, rel, got)
		}
	}
}

func TestPlacement_AbsQuarterTurn(t *testing.T) {
	p := Placement{Origin: Vec3i{}, Rotation: 1}
	if got := p.Abs(Vec3i{X: 1, Z: 0}); got != (Vec3i{X: 0, Z: -1}) {
		t.Fatalf("Abs: got %v", got)
	}
	if got := p.Abs(Vec3i{X: 0, Y: 2, Z: 1}); got != (Vec3i{X: 1, Y: 2, Z: 0}) {
		t.Fatalf("Abs: got %v", got)
	}
}

func TestManhattan(t *testing.T) {
	if got := Manhattan(Vec3i{X: 1, Y: 2, Z: 3}, Vec3i{X: -1, Y: 2, Z: 0}); got != 5 {
		t.Fatalf("Manhattan=%d want 5", got)
	}
}
