// Package runner drives runs of registered tests. A Run is a single
// execution of one definition at one rotation, advanced one tick at a time
// in lockstep with its host.
package runner

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voxelcraft.ai/gametest/internal/gametest"
	"voxelcraft.ai/gametest/internal/gametest/assert"
	"voxelcraft.ai/gametest/internal/gametest/registry"
	"voxelcraft.ai/gametest/internal/gametest/sequencer"
	"voxelcraft.ai/gametest/internal/host"
	"voxelcraft.ai/gametest/internal/protocol"
)

type State uint8

const (
	Pending State = iota
	Running
	Passed
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Passed:
		return string(assert.Passed)
	case Failed:
		return string(assert.Failed)
	case TimedOut:
		return string(assert.TimedOut)
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

func (s State) Terminal() bool { return s >= Passed }

// FixtureError fails a run whose structure could not be placed.
type FixtureError struct {
	Structure string
	Err       error
}

func (e *FixtureError) Error() string {
	return fmt.Sprintf("place fixture %q: %v", e.Structure, e.Err)
}

func (e *FixtureError) Unwrap() error { return e.Err }

type panicError struct{ v any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.v) }

// Outcome is produced exactly once per run.
type Outcome struct {
	RunID    uuid.UUID
	Suite    string
	Name     string
	Rotation int
	Required bool

	Status assert.Status
	Code   string
	Reason string
	// Tick is the run tick the outcome was decided on.
	Tick uint64
	Err  error

	WorldDigest string
	StartedAt   time.Time
	FinishedAt  time.Time
}

func (o Outcome) Passed() bool { return o.Status == assert.Passed }

func (o Outcome) Message() protocol.RunFinishedMsg {
	return protocol.RunFinishedMsg{
		Type:             protocol.TypeRunFinished,
		ProtocolVersion:  protocol.Version,
		RunID:            o.RunID.String(),
		Suite:            o.Suite,
		Name:             o.Name,
		Rotation:         o.Rotation,
		Status:           string(o.Status),
		Code:             o.Code,
		Reason:           o.Reason,
		Tick:             o.Tick,
		Required:         o.Required,
		WorldDigest:      o.WorldDigest,
		FinishedAtUnixMS: o.FinishedAt.UnixMilli(),
		DurationMS:       o.FinishedAt.Sub(o.StartedAt).Milliseconds(),
	}
}

type Options struct {
	// RunID defaults to a random UUID.
	RunID     uuid.UUID
	Rotation  int
	Placement host.Placement
	Sink      Sink
	// Now defaults to time.Now.
	Now func() time.Time
}

// digester is implemented by hosts that can hash their state.
type digester interface {
	Digest() string
}

type Run struct {
	id   uuid.UUID
	def  registry.TestDefinition
	host host.Host
	opts Options

	seq *sequencer.Sequencer
	t   *gametest.T

	state     State
	tick      uint64
	outcome   Outcome
	reported  bool
	startedAt time.Time
}

// NewRun builds a Pending run. The fixture described by opts.Placement must
// already be in place on h.
func NewRun(def registry.TestDefinition, h host.Host, opts Options) *Run {
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	id := opts.RunID
	if id == uuid.Nil {
		id = uuid.New()
	}
	r := &Run{
		id:   id,
		def:  def,
		host: h,
		opts: opts,
		seq:  sequencer.New(),
	}
	r.t = gametest.New(gametest.Config{
		Suite:     def.Suite,
		Name:      def.Name,
		MaxTicks:  def.MaxTicks,
		Host:      h,
		Placement: opts.Placement,
		Sequencer: r.seq,
		Finish:    r.finish,
	})
	return r
}

func (r *Run) ID() uuid.UUID                       { return r.id }
func (r *Run) State() State                        { return r.state }
func (r *Run) Definition() registry.TestDefinition { return r.def }

// Tick is the run tick that the next Advance will process, or the tick the
// outcome was decided on once terminal.
func (r *Run) Tick() uint64 { return r.tick }

// Outcome returns the terminal outcome; ok is false while the run is live.
func (r *Run) Outcome() (Outcome, bool) {
	if !r.state.Terminal() {
		return Outcome{}, false
	}
	return r.outcome, true
}

// Advance processes one run tick: due steps in order, then pending
// RepeatUntil polls, then the tick budget. Steps scheduled for the current
// tick while it is processed, including by a satisfied poll, run on the same
// tick, and a RepeatUntil added on it is polled once before the tick ends.
// It reports whether the run is terminal. A terminal run never advances its
// tick counter again.
func (r *Run) Advance() bool {
	if r.state.Terminal() {
		return true
	}
	if r.state == Pending {
		r.start()
	}

	tick := r.tick
	r.seq.SetTick(tick)
	polled := map[*sequencer.Step]bool{}
	for {
		r.drain(tick)
		if r.state.Terminal() || !r.poll(tick, polled) {
			break
		}
	}
	if !r.state.Terminal() && tick >= uint64(r.def.MaxTicks) {
		r.finish(&assert.TimeoutError{Ticks: uint64(r.def.MaxTicks)})
	}
	if r.state.Terminal() {
		r.report()
		return true
	}
	r.tick++
	return false
}

// Abort ends a live run with err, which is treated like an action error.
// It is a no-op on a terminal run. A Pending run that is aborted never
// emits RUN_STARTED; only its RUN_FINISHED reaches the sink.
func (r *Run) Abort(err error) {
	if r.state.Terminal() {
		return
	}
	if r.state == Pending {
		r.state = Running
		r.startedAt = r.opts.Now()
	}
	r.finish(assert.Unexpected(err))
	r.report()
}

func (r *Run) begin() {
	r.state = Running
	r.startedAt = r.opts.Now()
	o := r.opts.Placement.Origin
	r.opts.Sink.RunStarted(protocol.RunStartedMsg{
		Type:            protocol.TypeRunStarted,
		ProtocolVersion: protocol.Version,
		RunID:           r.id.String(),
		Suite:           r.def.Suite,
		Name:            r.def.Name,
		Structure:       r.def.Structure,
		Rotation:        r.opts.Rotation,
		MaxTicks:        r.def.MaxTicks,
		Tags:            r.def.Tags,
		Required:        r.def.Required,
		Origin:          o.ToArray(),
		StartedAtUnixMS: r.startedAt.UnixMilli(),
	})
}

func (r *Run) start() {
	r.begin()
	body := r.def.Func
	if _, err := r.seq.Immediately("body", func() error { return body(r.t) }); err != nil {
		r.finish(assert.Unexpected(err))
	}
}

func (r *Run) exec(st *sequencer.Step) {
	err := protect(st.Action)
	r.emitStep(st, err)
	if err != nil {
		r.finish(assert.Unexpected(err))
	}
}

func (r *Run) drain(tick uint64) {
	for !r.state.Terminal() {
		st, ok := r.seq.Due(tick)
		if !ok {
			return
		}
		r.exec(st)
	}
}

// poll evaluates every pending RepeatUntil step not yet in polled and marks
// it. It reports whether anything was polled.
func (r *Run) poll(tick uint64, polled map[*sequencer.Step]bool) bool {
	ran := false
	for _, st := range r.seq.Pending() {
		if r.state.Terminal() {
			return ran
		}
		if polled[st] {
			continue
		}
		polled[st] = true
		ran = true
		err := protect(st.Until)
		var pe *panicError
		if errors.As(err, &pe) {
			r.emitStep(st, err)
			r.finish(assert.Unexpected(err))
			return ran
		}
		if err == nil {
			r.seq.Resolve(st)
			if st.Action != nil {
				r.exec(st)
			} else {
				r.emitStep(st, nil)
			}
			continue
		}
		st.Last = err
		if tick >= st.Deadline() {
			r.seq.Resolve(st)
			r.emitStep(st, err)
			r.finish(&assert.TimeoutError{Ticks: st.Timeout, Last: err})
		}
	}
	return ran
}

// finish records the terminal outcome. Only the first call counts; every
// queued step is discarded.
func (r *Run) finish(err error) {
	if r.state.Terminal() {
		return
	}
	status := assert.Classify(err)
	switch status {
	case assert.Passed:
		r.state = Passed
	case assert.TimedOut:
		r.state = TimedOut
	default:
		r.state = Failed
	}
	code := assert.Code(err)
	var fe *FixtureError
	if errors.As(err, &fe) {
		code = protocol.ErrFixture
	}
	r.outcome = Outcome{
		RunID:     r.id,
		Suite:     r.def.Suite,
		Name:      r.def.Name,
		Rotation:  r.opts.Rotation,
		Required:  r.def.Required,
		Status:    status,
		Code:      code,
		Reason:    assert.Reason(err),
		Tick:      r.tick,
		Err:       err,
		StartedAt: r.startedAt,
	}
	r.seq.Cancel()
}

func (r *Run) report() {
	if r.reported {
		return
	}
	r.reported = true
	r.outcome.FinishedAt = r.opts.Now()
	if d, ok := r.host.(digester); ok {
		r.outcome.WorldDigest = d.Digest()
	}
	r.opts.Sink.RunFinished(r.outcome.Message())
}

func (r *Run) emitStep(st *sequencer.Step, err error) {
	msg := protocol.StepMsg{
		Type:            protocol.TypeStep,
		ProtocolVersion: protocol.Version,
		RunID:           r.id.String(),
		Tick:            r.tick,
		Kind:            st.Kind.String(),
		Seq:             st.Seq(),
		Label:           st.Label,
	}
	if err != nil {
		msg.Error = err.Error()
	}
	r.opts.Sink.StepExecuted(msg)
}

// protect runs fn and turns a panic into an error.
func protect[F ~func() error](fn F) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{v: rec}
		}
	}()
	return fn()
}
