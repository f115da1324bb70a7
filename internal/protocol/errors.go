package protocol

const (
	// Run outcomes.
	ErrAssertion = "E_ASSERTION"
	ErrTimeout   = "E_TIMEOUT"
	ErrAction    = "E_ACTION"
	ErrCancelled = "E_CANCELLED"

	// Setup.
	ErrDuplicate = "E_DUPLICATE"
	ErrFixture   = "E_FIXTURE"
	ErrLoad      = "E_LOAD"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrAssertion: {},
	ErrTimeout:   {},
	ErrAction:    {},
	ErrCancelled: {},
	ErrDuplicate: {},
	ErrFixture:   {},
	ErrLoad:      {},
	ErrInternal:  {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

var knownStatuses = map[string]struct{}{
	StatusPassed:   {},
	StatusFailed:   {},
	StatusTimedOut: {},
}

func IsKnownStatus(s string) bool {
	_, ok := knownStatuses[s]
	return ok
}
