package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"

	"voxelcraft.ai/gametest/internal/gametest"
	"voxelcraft.ai/gametest/internal/gametest/assert"
	"voxelcraft.ai/gametest/internal/gametest/registry"
	"voxelcraft.ai/gametest/internal/host"
	"voxelcraft.ai/gametest/internal/host/memworld"
	"voxelcraft.ai/gametest/internal/protocol"
)

var doorRel = host.Vec3i{X: 2, Y: 1, Z: 1}
var leverRel = host.Vec3i{X: 1, Y: 1, Z: 2}

func newDriver(t *testing.T, reg *registry.Registry, sink Sink) *Driver {
	t.Helper()
	cats := loadCatalogs(t)
	var n uint32
	return &Driver{
		Registry: reg,
		NewHost:  memworld.Factory(memworld.WorldConfig{}, cats),
		Sink:     sink,
		Origin:   host.Vec3i{X: 8, Y: 0, Z: 8},
		Now:      func() time.Time { return time.Unix(1700000000, 0) },
		NewRunID: func() uuid.UUID {
			n++
			var id uuid.UUID
			id[15] = byte(n)
			return id
		},
	}
}

func mustRegister(t *testing.T, reg *registry.Registry, def registry.TestDefinition) {
	t.Helper()
	if _, err := reg.Register(def); err != nil {
		t.Fatalf("Register(%s): %v", def.ID(), err)
	}
}

func openDoor(gt *gametest.T) error {
	if err := gt.RunAtTickTime(2, func() error { return gt.PressButton(doorRel) }); err != nil {
		return err
	}
	return gt.SucceedWhen(func() error {
		return gt.AssertBlockPresent("DOOR_OPEN", doorRel, true)
	})
}

func TestDriver_RotatedRunsSeeTheSameFixture(t *testing.T) {
	reg := registry.New()
	mustRegister(t, reg, registry.TestDefinition{
		Suite: "redstone", Name: "door_opens", Structure: "door_pen",
		MaxTicks: 20, Rotate: true, Required: true, Func: openDoor,
	})
	rec := &recorder{}
	sum, err := newDriver(t, reg, rec).Run(context.Background(), registry.Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Total() != 4 || sum.Passed != 4 || !sum.OK() {
		t.Fatalf("summary: %+v", sum)
	}
	for i, o := range sum.Outcomes {
		if o.Rotation != i || o.Tick != 2 {
			t.Fatalf("outcome %d: %+v", i, o)
		}
	}
	if len(rec.started) != 4 || len(rec.batches) != 1 || rec.started[3].Rotation != 3 {
		t.Fatalf("events: started=%d batches=%d", len(rec.started), len(rec.batches))
	}
}

func TestDriver_FixtureErrorFailsRun(t *testing.T) {
	reg := registry.New()
	mustRegister(t, reg, registry.TestDefinition{
		Suite: "core", Name: "missing", Structure: "nope", MaxTicks: 5,
		Func: func(*gametest.T) error { return nil },
	})
	rec := &recorder{}
	sum, err := newDriver(t, reg, rec).Run(context.Background(), registry.Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	o := sum.Outcomes[0]
	if o.Status != assert.Failed || o.Code != protocol.ErrFixture || o.Tick != 0 {
		t.Fatalf("outcome: %+v", o)
	}
	if !errors.Is(o.Err, host.ErrUnknownStructure) {
		t.Fatalf("err=%v", o.Err)
	}
	if len(rec.started) != 0 || len(rec.finished) != 1 {
		t.Fatalf("events: started=%d finished=%d", len(rec.started), len(rec.finished))
	}
	if rec.finished[0].Code != protocol.ErrFixture {
		t.Fatalf("finished=%+v", rec.finished[0])
	}
	// Optional runs do not fail the batch.
	if !sum.OK() {
		t.Fatalf("optional fixture failure failed the batch")
	}
}

func TestDriver_RequiredFailureFailsBatch(t *testing.T) {
	reg := registry.New()
	pass := func(gt *gametest.T) error { gt.Succeed(); return nil }
	fail := func(gt *gametest.T) error { return gt.Fail("nope") }
	mustRegister(t, reg, registry.TestDefinition{Suite: "a", Name: "ok", MaxTicks: 5, Required: true, Func: pass})
	mustRegister(t, reg, registry.TestDefinition{Suite: "a", Name: "optional_bad", MaxTicks: 5, Func: fail})
	mustRegister(t, reg, registry.TestDefinition{Suite: "b", Name: "required_bad", MaxTicks: 5, Required: true, Func: fail})

	d := newDriver(t, reg, nil)
	sum, err := d.Run(context.Background(), registry.Filter{Suites: []string{"a"}})
	if err != nil || sum.Total() != 2 || sum.Failed != 1 || !sum.OK() {
		t.Fatalf("suite a: %+v err=%v", sum, err)
	}
	sum, err = d.Run(context.Background(), registry.Filter{})
	if err != nil || sum.Total() != 3 || sum.RequiredFailed != 1 || sum.OK() {
		t.Fatalf("all: %+v err=%v", sum, err)
	}
	msg := sum.Message()
	if msg.OK || msg.Total != 3 || msg.Passed != 1 || msg.Failed != 2 {
		t.Fatalf("summary msg: %+v", msg)
	}
}

func TestDriver_SetupTicksAndLockstep(t *testing.T) {
	reg := registry.New()
	mustRegister(t, reg, registry.TestDefinition{
		Suite: "core", Name: "lockstep", MaxTicks: 10, SetupTicks: 3,
		Func: func(gt *gametest.T) error {
			if err := gt.AssertEqual(uint64(3), gt.Host().CurrentTick(), "host tick at start"); err != nil {
				return err
			}
			return gt.SucceedOnTickWhen(4, func() error {
				return gt.AssertEqual(uint64(7), gt.Host().CurrentTick(), "host tick at run tick 4")
			})
		},
	})
	sum, err := newDriver(t, reg, nil).Run(context.Background(), registry.Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o := sum.Outcomes[0]; o.Status != assert.Passed || o.Tick != 4 {
		t.Fatalf("outcome: %+v", o)
	}
}

func TestDriver_CancelStopsBatch(t *testing.T) {
	reg := registry.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mustRegister(t, reg, registry.TestDefinition{
		Suite: "core", Name: "a_cancels", MaxTicks: 50,
		Func: func(gt *gametest.T) error {
			return gt.RunAtTickTime(2, func() error { cancel(); return nil })
		},
	})
	mustRegister(t, reg, registry.TestDefinition{
		Suite: "core", Name: "b_never_runs", MaxTicks: 5,
		Func: func(gt *gametest.T) error { gt.Succeed(); return nil },
	})
	rec := &recorder{}
	sum, err := newDriver(t, reg, rec).Run(ctx, registry.Filter{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if sum.Total() != 1 {
		t.Fatalf("total=%d", sum.Total())
	}
	o := sum.Outcomes[0]
	if o.Status != assert.Failed || o.Reason != "cancelled" || o.Code != protocol.ErrCancelled {
		t.Fatalf("outcome: %+v", o)
	}
	if len(rec.batches) != 1 {
		t.Fatalf("expected summary even on cancel")
	}
}

func TestDriver_HostFactoryError(t *testing.T) {
	reg := registry.New()
	mustRegister(t, reg, testDef("x", 5, func(*gametest.T) error { return nil }))
	d := &Driver{
		Registry: reg,
		NewHost:  func() (host.Host, error) { return nil, errors.New("no world") },
	}
	if _, err := d.Run(context.Background(), registry.Filter{}); err == nil {
		t.Fatalf("expected host factory error")
	}
}

func TestDriver_GoldenTraces(t *testing.T) {
	reg := registry.New()
	mustRegister(t, reg, registry.TestDefinition{
		Suite: "redstone", Name: "door_opens", Structure: "door_pen", MaxTicks: 20, Func: openDoor,
	})
	mustRegister(t, reg, registry.TestDefinition{
		Suite: "redstone", Name: "lever_does_not_open_door", Structure: "door_pen", MaxTicks: 5,
		Func: func(gt *gametest.T) error {
			if err := gt.RunAtTickTime(1, func() error { return gt.PressButton(leverRel) }); err != nil {
				return err
			}
			return gt.SucceedWhen(func() error {
				return gt.AssertBlockPresent("DOOR_OPEN", doorRel, true)
			})
		},
	})

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, name := range []string{"door_opens", "lever_does_not_open_door"} {
		rec := &recorder{}
		_, err := newDriver(t, reg, rec).Run(context.Background(), registry.Filter{Name: name})
		if err != nil {
			t.Fatalf("Run(%s): %v", name, err)
		}
		g.Assert(t, name, rec.trace())
	}
}
