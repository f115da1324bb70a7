package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"voxelcraft.ai/gametest/internal/gametest/assert"
	"voxelcraft.ai/gametest/internal/gametest/registry"
	"voxelcraft.ai/gametest/internal/host"
	"voxelcraft.ai/gametest/internal/protocol"
)

// Driver executes a selection of registered tests, one run at a time. Each
// run gets a fresh host from NewHost so runs never share world state.
type Driver struct {
	Registry *registry.Registry
	NewHost  host.Factory
	Sink     Sink
	Logger   *log.Logger
	// Origin is where fixtures are placed.
	Origin host.Vec3i

	Now      func() time.Time
	NewRunID func() uuid.UUID
}

// Summary aggregates the outcomes of a batch.
type Summary struct {
	Outcomes       []Outcome
	Passed         int
	Failed         int
	TimedOut       int
	RequiredFailed int
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case assert.Passed:
		s.Passed++
	case assert.TimedOut:
		s.TimedOut++
	default:
		s.Failed++
	}
	if o.Required && !o.Passed() {
		s.RequiredFailed++
	}
}

func (s Summary) Total() int { return len(s.Outcomes) }

// OK is false when any required run did not pass. Optional runs never fail
// a batch.
func (s Summary) OK() bool { return s.RequiredFailed == 0 }

func (s Summary) Message() protocol.SummaryMsg {
	return protocol.SummaryMsg{
		Type:            protocol.TypeSummary,
		ProtocolVersion: protocol.Version,
		Total:           s.Total(),
		Passed:          s.Passed,
		Failed:          s.Failed,
		TimedOut:        s.TimedOut,
		RequiredFailed:  s.RequiredFailed,
		OK:              s.OK(),
	}
}

func (d *Driver) sink() Sink {
	if d.Sink == nil {
		return NopSink{}
	}
	return d.Sink
}

func (d *Driver) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

// Run executes every definition the filter selects.
func (d *Driver) Run(ctx context.Context, f registry.Filter) (Summary, error) {
	if d.Registry == nil {
		return Summary{}, errors.New("driver: nil registry")
	}
	return d.RunDefinitions(ctx, d.Registry.Select(f))
}

// RunDefinitions executes defs in order, each once per rotation. It stops
// early when ctx is cancelled; the run in flight ends Failed with reason
// "cancelled" and the partial summary is returned with ctx.Err().
func (d *Driver) RunDefinitions(ctx context.Context, defs []registry.TestDefinition) (Summary, error) {
	var sum Summary
	var err error
loop:
	for _, def := range defs {
		for _, rot := range def.Rotations() {
			if err = ctx.Err(); err != nil {
				break loop
			}
			var o Outcome
			o, err = d.RunOne(ctx, def, rot)
			if err != nil {
				break loop
			}
			sum.add(o)
		}
	}
	d.sink().BatchFinished(sum.Message())
	d.logf("batch done: total=%d passed=%d failed=%d timed_out=%d required_failed=%d",
		sum.Total(), sum.Passed, sum.Failed, sum.TimedOut, sum.RequiredFailed)
	if err == nil {
		err = ctx.Err()
	}
	return sum, err
}

// RunOne executes a single run of def at the given rotation. The error is
// reserved for infrastructure failures (no host); everything that happens
// inside the run is reported through the Outcome.
func (d *Driver) RunOne(ctx context.Context, def registry.TestDefinition, rotation int) (Outcome, error) {
	if d.NewHost == nil {
		return Outcome{}, errors.New("driver: nil host factory")
	}
	h, err := d.NewHost()
	if err != nil {
		return Outcome{}, fmt.Errorf("new host for %s: %w", def.ID(), err)
	}

	opts := Options{
		Rotation: rotation,
		Sink:     d.sink(),
		Now:      d.Now,
	}
	if d.NewRunID != nil {
		opts.RunID = d.NewRunID()
	}

	placement, perr := h.PlaceFixture(def.Structure, d.Origin, rotation)
	if perr == nil {
		opts.Placement = placement
	}
	run := NewRun(def, h, opts)
	if perr != nil {
		run.Abort(&FixtureError{Structure: def.Structure, Err: perr})
	} else {
		for i := 0; i < def.SetupTicks; i++ {
			h.Tick()
		}
		for !run.Advance() {
			if ctx.Err() != nil {
				run.Abort(assert.ErrCancelled)
				break
			}
			h.Tick()
		}
	}

	o, _ := run.Outcome()
	if o.Passed() {
		d.logf("%s rot=%d %s tick=%d", def.ID(), rotation, o.Status, o.Tick)
	} else {
		d.logf("%s rot=%d %s tick=%d code=%s reason=%q", def.ID(), rotation, o.Status, o.Tick, o.Code, o.Reason)
	}
	return o, nil
}
