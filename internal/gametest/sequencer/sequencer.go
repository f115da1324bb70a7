// Package sequencer orders the deferred work of a single run. It never runs
// anything itself: the runner asks for due steps tick by tick and executes
// them, so a Sequencer is owned by exactly one run and is not safe for
// concurrent use.
package sequencer

import (
	"container/heap"
	"errors"
	"fmt"
)

var (
	ErrNegativeTick = errors.New("negative tick")
	ErrCancelled    = errors.New("sequencer cancelled")
	ErrNilFunc      = errors.New("nil step func")
)

type Kind uint8

const (
	Immediate Kind = iota
	DelayedAt
	RepeatUntil
)

func (k Kind) String() string {
	switch k {
	case Immediate:
		return "immediate"
	case DelayedAt:
		return "delayed_at"
	case RepeatUntil:
		return "repeat_until"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Action is the body of a step. A non-nil error fails the run.
type Action func() error

// Predicate is polled once per tick by RepeatUntil steps. nil means
// satisfied; any error means "not yet" and is kept as the step's last reason.
type Predicate func() error

type Step struct {
	Kind  Kind
	Label string
	// Tick is when a timed step is due, or when a RepeatUntil step was added.
	Tick    uint64
	Timeout uint64
	Until   Predicate
	Action  Action
	// Last is the most recent predicate error of a RepeatUntil step.
	Last error

	seq uint64
}

// Seq is the registration sequence number; it breaks ties between steps due
// on the same tick.
func (s *Step) Seq() uint64 { return s.seq }

// Deadline is the last tick a RepeatUntil step is polled on.
func (s *Step) Deadline() uint64 { return s.Tick + s.Timeout }

type Sequencer struct {
	now       uint64
	nextSeq   uint64
	queue     stepQueue
	pending   []*Step
	cancelled bool
}

func New() *Sequencer { return &Sequencer{} }

// SetTick moves the sequencer's notion of "now". Ticks never go backwards.
func (s *Sequencer) SetTick(tick uint64) {
	if tick > s.now {
		s.now = tick
	}
}

func (s *Sequencer) Now() uint64 { return s.now }

// At schedules action for an absolute run tick. Ticks already in the past run
// on the current tick.
func (s *Sequencer) At(tick int, label string, action Action) (*Step, error) {
	if tick < 0 {
		return nil, fmt.Errorf("at %d: %w", tick, ErrNegativeTick)
	}
	t := uint64(tick)
	if t < s.now {
		t = s.now
	}
	return s.push(DelayedAt, t, label, action)
}

// After schedules action delay ticks from now.
func (s *Sequencer) After(delay int, label string, action Action) (*Step, error) {
	if delay < 0 {
		return nil, fmt.Errorf("after %d: %w", delay, ErrNegativeTick)
	}
	return s.push(DelayedAt, s.now+uint64(delay), label, action)
}

// Immediately schedules action on the current tick, behind anything already
// due on it.
func (s *Sequencer) Immediately(label string, action Action) (*Step, error) {
	return s.push(Immediate, s.now, label, action)
}

// RepeatUntil polls until once per tick starting with the current one. When
// it is satisfied the step is resolved and action (optional) runs. A step
// still unsatisfied on its deadline tick times out.
func (s *Sequencer) RepeatUntil(until Predicate, timeout int, label string, action Action) (*Step, error) {
	if s.cancelled {
		return nil, ErrCancelled
	}
	if timeout < 0 {
		return nil, fmt.Errorf("timeout %d: %w", timeout, ErrNegativeTick)
	}
	if until == nil {
		return nil, ErrNilFunc
	}
	st := &Step{
		Kind:    RepeatUntil,
		Label:   label,
		Tick:    s.now,
		Timeout: uint64(timeout),
		Until:   until,
		Action:  action,
		seq:     s.nextSeq,
	}
	s.nextSeq++
	s.pending = append(s.pending, st)
	return st, nil
}

func (s *Sequencer) push(kind Kind, tick uint64, label string, action Action) (*Step, error) {
	if s.cancelled {
		return nil, ErrCancelled
	}
	if action == nil {
		return nil, ErrNilFunc
	}
	st := &Step{Kind: kind, Label: label, Tick: tick, Action: action, seq: s.nextSeq}
	s.nextSeq++
	heap.Push(&s.queue, st)
	return st, nil
}

// Due pops the next timed step due at or before tick. Steps come out in
// (tick, registration) order, including ones added while tick is being
// processed.
func (s *Sequencer) Due(tick uint64) (*Step, bool) {
	if s.cancelled || len(s.queue) == 0 {
		return nil, false
	}
	if s.queue[0].Tick > tick {
		return nil, false
	}
	return heap.Pop(&s.queue).(*Step), true
}

// Pending returns a snapshot of unresolved RepeatUntil steps in registration
// order.
func (s *Sequencer) Pending() []*Step {
	if s.cancelled {
		return nil
	}
	return append([]*Step(nil), s.pending...)
}

// Resolve drops a RepeatUntil step from the pending set.
func (s *Sequencer) Resolve(step *Step) {
	for i, p := range s.pending {
		if p == step {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// Cancel discards every remaining step. Later schedule calls fail with
// ErrCancelled.
func (s *Sequencer) Cancel() {
	s.cancelled = true
	s.queue = nil
	s.pending = nil
}

func (s *Sequencer) Cancelled() bool { return s.cancelled }

// Len counts queued timed steps plus pending RepeatUntil steps.
func (s *Sequencer) Len() int { return len(s.queue) + len(s.pending) }

// NextTick reports the tick of the earliest queued timed step.
func (s *Sequencer) NextTick() (uint64, bool) {
	if len(s.queue) == 0 {
		return 0, false
	}
	return s.queue[0].Tick, true
}

type stepQueue []*Step

func (q stepQueue) Len() int { return len(q) }

func (q stepQueue) Less(i, j int) bool {
	if q[i].Tick != q[j].Tick {
		return q[i].Tick < q[j].Tick
	}
	return q[i].seq < q[j].seq
}

func (q stepQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *stepQueue) Push(x any) { *q = append(*q, x.(*Step)) }

func (q *stepQueue) Pop() any {
	old := *q
	n := len(old)
	st := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return st
}
