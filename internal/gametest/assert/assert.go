// Package assert defines the failure kinds a run can end with and the small
// set of value assertions shared by every frontend.
package assert

import (
	"errors"
	"fmt"
	"reflect"

	"voxelcraft.ai/gametest/internal/protocol"
)

// Status is a terminal run status.
type Status string

const (
	Passed   Status = protocol.StatusPassed
	Failed   Status = protocol.StatusFailed
	TimedOut Status = protocol.StatusTimedOut
)

// AssertionFailure is a failed check; its message becomes the run's reason.
type AssertionFailure struct {
	Message string
}

func (e *AssertionFailure) Error() string { return e.Message }

// TimeoutError ends a run whose budget or RepeatUntil deadline ran out.
type TimeoutError struct {
	Ticks uint64
	// Last is the most recent reason a polled condition gave, if any.
	Last error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("timed out after %d ticks: %v", e.Ticks, e.Last)
	}
	return fmt.Sprintf("timed out after %d ticks", e.Ticks)
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// UnexpectedActionError wraps anything a step action raised that was not an
// assertion: host errors, script exceptions, recovered panics.
type UnexpectedActionError struct {
	Err error
}

func (e *UnexpectedActionError) Error() string { return e.Err.Error() }

func (e *UnexpectedActionError) Unwrap() error { return e.Err }

// ErrCancelled ends a run that was stopped from outside.
var ErrCancelled = errors.New("cancelled")

// Fail builds an AssertionFailure.
func Fail(msg string) error { return &AssertionFailure{Message: msg} }

func Failf(format string, args ...any) error {
	return &AssertionFailure{Message: fmt.Sprintf(format, args...)}
}

// True returns an AssertionFailure carrying msg when cond is false.
func True(cond bool, msg string) error {
	if cond {
		return nil
	}
	if msg == "" {
		msg = "assertion failed"
	}
	return &AssertionFailure{Message: msg}
}

func Equal(want, got any, msg string) error {
	if reflect.DeepEqual(want, got) {
		return nil
	}
	if msg == "" {
		return Failf("expected %v, got %v", want, got)
	}
	return Failf("%s: expected %v, got %v", msg, want, got)
}

// Classify maps the error a run ended with to its status. A nil error is a
// pass; anything unrecognised fails the run.
func Classify(err error) Status {
	if err == nil {
		return Passed
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return TimedOut
	}
	return Failed
}

// Code maps the error a run ended with to its wire error code.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var (
		af *AssertionFailure
		te *TimeoutError
		ue *UnexpectedActionError
	)
	switch {
	case errors.Is(err, ErrCancelled):
		return protocol.ErrCancelled
	case errors.As(err, &te):
		return protocol.ErrTimeout
	case errors.As(err, &af):
		return protocol.ErrAssertion
	case errors.As(err, &ue):
		return protocol.ErrAction
	default:
		return protocol.ErrInternal
	}
}

// Reason is the human readable form stored on an Outcome.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Unexpected wraps err as an UnexpectedActionError unless it already is one
// of the run-ending kinds.
func Unexpected(err error) error {
	if err == nil {
		return nil
	}
	var (
		af *AssertionFailure
		te *TimeoutError
		ue *UnexpectedActionError
	)
	if errors.As(err, &af) || errors.As(err, &te) || errors.As(err, &ue) || errors.Is(err, ErrCancelled) {
		return err
	}
	return &UnexpectedActionError{Err: err}
}
