package assert

import (
	"errors"
	"fmt"
	"testing"

	"voxelcraft.ai/gametest/internal/protocol"
)

func TestTrue(t *testing.T) {
	if err := True(true, "x"); err != nil {
		t.Fatalf("True(true): %v", err)
	}
	err := True(false, "x")
	var af *AssertionFailure
	if !errors.As(err, &af) || af.Message != "x" {
		t.Fatalf("True(false): %#v", err)
	}
	if err := True(false, ""); err == nil || err.Error() != "assertion failed" {
		t.Fatalf("default message: %v", err)
	}
}

func TestEqual(t *testing.T) {
	if err := Equal([]int{1, 2}, []int{1, 2}, ""); err != nil {
		t.Fatalf("Equal slices: %v", err)
	}
	if err := Equal(3, 4, "zombies"); err == nil || err.Error() != "zombies: expected 3, got 4" {
		t.Fatalf("Equal mismatch: %v", err)
	}
}

func TestClassifyAndCode(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		err    error
		status Status
		code   string
	}{
		{nil, Passed, ""},
		{Fail("x"), Failed, protocol.ErrAssertion},
		{&TimeoutError{Ticks: 5}, TimedOut, protocol.ErrTimeout},
		{fmt.Errorf("step: %w", &TimeoutError{Ticks: 5, Last: boom}), TimedOut, protocol.ErrTimeout},
		{&UnexpectedActionError{Err: boom}, Failed, protocol.ErrAction},
		{ErrCancelled, Failed, protocol.ErrCancelled},
		{boom, Failed, protocol.ErrInternal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.status {
			t.Fatalf("Classify(%v)=%q want %q", tc.err, got, tc.status)
		}
		if got := Code(tc.err); got != tc.code {
			t.Fatalf("Code(%v)=%q want %q", tc.err, got, tc.code)
		}
	}
}

func TestTimeoutError_KeepsLastReason(t *testing.T) {
	last := Fail("door still closed")
	err := &TimeoutError{Ticks: 20, Last: last}
	if err.Error() != "timed out after 20 ticks: door still closed" {
		t.Fatalf("message: %q", err.Error())
	}
	var af *AssertionFailure
	if !errors.As(err, &af) {
		t.Fatalf("expected last reason reachable via errors.As")
	}
	// A timeout wrapping an assertion is still a timeout.
	if Classify(err) != TimedOut || Code(err) != protocol.ErrTimeout {
		t.Fatalf("classify=%q code=%q", Classify(err), Code(err))
	}
}

func TestUnexpected(t *testing.T) {
	boom := errors.New("boom")
	err := Unexpected(boom)
	var ue *UnexpectedActionError
	if !errors.As(err, &ue) || !errors.Is(err, boom) || err.Error() != "boom" {
		t.Fatalf("Unexpected(boom)=%#v", err)
	}
	af := Fail("x")
	if Unexpected(af) != af {
		t.Fatalf("assertion failures pass through unchanged")
	}
	if Unexpected(err) != err {
		t.Fatalf("already wrapped errors pass through unchanged")
	}
	if Unexpected(nil) != nil {
		t.Fatalf("nil stays nil")
	}
}
