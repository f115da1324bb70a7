// Package gametest is the surface test bodies are written against. A T is
// bound to one run: it schedules work on the run's sequencer, talks to the
// host through test-relative coordinates and reports the run's terminal
// outcome back to the runner.
package gametest

import (
	"fmt"

	"voxelcraft.ai/gametest/internal/gametest/assert"
	"voxelcraft.ai/gametest/internal/gametest/sequencer"
	"voxelcraft.ai/gametest/internal/host"
)

// TestFunc is a test body. It runs once, as the first step of tick 0. A
// returned error fails the run unless the run has already finished.
type TestFunc func(t *T) error

// FinishFunc records a terminal outcome; only the first call per run counts.
// A nil error means the run passed.
type FinishFunc func(err error)

type Config struct {
	Suite     string
	Name      string
	MaxTicks  int
	Host      host.Host
	Placement host.Placement
	Sequencer *sequencer.Sequencer
	Finish    FinishFunc
}

type T struct {
	suite    string
	name     string
	maxTicks int
	host     host.Host
	place    host.Placement
	seq      *sequencer.Sequencer
	finish   FinishFunc

	// >0 while a RepeatUntil predicate is being evaluated.
	polling int
	done    bool
}

func New(cfg Config) *T {
	return &T{
		suite:    cfg.Suite,
		name:     cfg.Name,
		maxTicks: cfg.MaxTicks,
		host:     cfg.Host,
		place:    cfg.Placement,
		seq:      cfg.Sequencer,
		finish:   cfg.Finish,
	}
}

func (t *T) Suite() string { return t.suite }
func (t *T) Name() string  { return t.name }

// Tick is the run tick currently being processed, starting at 0.
func (t *T) Tick() uint64 { return t.seq.Now() }

func (t *T) MaxTicks() int                 { return t.maxTicks }
func (t *T) Host() host.Host               { return t.host }
func (t *T) Placement() host.Placement     { return t.place }
func (t *T) Done() bool                    { return t.done || t.seq.Cancelled() }
func (t *T) Abs(rel host.Vec3i) host.Vec3i { return t.place.Abs(rel) }

func (t *T) end(err error) {
	if t.Done() {
		return
	}
	t.done = true
	t.finish(err)
}

// Succeed passes the run. Ignored while polling and after the run ended.
func (t *T) Succeed() {
	if t.polling > 0 {
		return
	}
	t.end(nil)
}

// Fail ends the run with an assertion failure. While polling it only
// reports "not yet" through the returned error.
func (t *T) Fail(msg string) error {
	return t.check(assert.Fail(msg))
}

func (t *T) Failf(format string, args ...any) error {
	return t.check(assert.Failf(format, args...))
}

// Assert fails the run with msg when cond is false.
func (t *T) Assert(cond bool, msg string) error {
	return t.check(assert.True(cond, msg))
}

func (t *T) AssertEqual(want, got any, msg string) error {
	return t.check(assert.Equal(want, got, msg))
}

// check turns a failed assertion into the run's outcome unless we are inside
// a polled predicate. The error is returned either way so callers can stop.
func (t *T) check(err error) error {
	if err == nil {
		return nil
	}
	if t.polling == 0 {
		t.end(err)
	}
	return err
}

// RunAtTickTime schedules fn for an absolute run tick.
func (t *T) RunAtTickTime(tick int, fn func() error) error {
	_, err := t.seq.At(tick, fmt.Sprintf("at %d", tick), fn)
	return err
}

// RunAfterDelay schedules fn delay ticks after the current tick.
func (t *T) RunAfterDelay(delay int, fn func() error) error {
	_, err := t.seq.After(delay, fmt.Sprintf("after %d", delay), fn)
	return err
}

// RepeatUntil polls until once per tick, starting now, for at most timeout
// ticks. fn (optional) runs on the tick the condition first holds. If the
// deadline passes the run times out with the last reason until gave.
func (t *T) RepeatUntil(until func() error, timeout int, fn func() error) error {
	_, err := t.seq.RepeatUntil(t.polled(until), timeout, "repeat_until", fn)
	return err
}

// Eventually passes the run on the first tick pred holds, or times it out
// after timeout ticks.
func (t *T) Eventually(pred func() error, timeout int) error {
	_, err := t.seq.RepeatUntil(t.polled(pred), timeout, "eventually", func() error {
		t.Succeed()
		return nil
	})
	return err
}

// SucceedWhen is Eventually bounded by the rest of the run's tick budget.
func (t *T) SucceedWhen(pred func() error) error {
	remaining := t.maxTicks - int(t.Tick())
	if remaining < 0 {
		remaining = 0
	}
	_, err := t.seq.RepeatUntil(t.polled(pred), remaining, "succeed_when", func() error {
		t.Succeed()
		return nil
	})
	return err
}

// SucceedOnTick passes the run on the given tick.
func (t *T) SucceedOnTick(tick int) error {
	_, err := t.seq.At(tick, fmt.Sprintf("succeed on %d", tick), func() error {
		t.Succeed()
		return nil
	})
	return err
}

// SucceedOnTickWhen runs check on the given tick and passes the run if it
// returns nil. Any error fails the run.
func (t *T) SucceedOnTickWhen(tick int, check func() error) error {
	_, err := t.seq.At(tick, fmt.Sprintf("succeed on %d when", tick), func() error {
		if err := check(); err != nil {
			return err
		}
		t.Succeed()
		return nil
	})
	return err
}

func (t *T) polled(pred func() error) sequencer.Predicate {
	if pred == nil {
		return nil
	}
	return func() error {
		t.polling++
		defer func() { t.polling-- }()
		return pred()
	}
}
