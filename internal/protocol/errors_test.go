package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrAssertion,
		ErrTimeout,
		ErrAction,
		ErrCancelled,
		ErrDuplicate,
		ErrFixture,
		ErrLoad,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestIsKnownStatus(t *testing.T) {
	for _, s := range []string{StatusPassed, StatusFailed, StatusTimedOut} {
		if !IsKnownStatus(s) {
			t.Fatalf("expected known status: %q", s)
		}
	}
	if IsKnownStatus("") || IsKnownStatus("skipped") {
		t.Fatalf("expected unknown status rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"STEP","protocol_version":"1.0","tick":3}`))
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if m.Type != TypeStep || m.ProtocolVersion != Version {
		t.Fatalf("unexpected base: %+v", m)
	}
	if _, err := DecodeBase([]byte(`{`)); err == nil {
		t.Fatalf("expected error on truncated json")
	}
}
