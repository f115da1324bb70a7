package protocol

// Run statuses as they appear on the wire.
const (
	StatusPassed   = "passed"
	StatusFailed   = "failed"
	StatusTimedOut = "timed_out"
)

// Step kinds as they appear on the wire.
const (
	StepImmediate   = "immediate"
	StepDelayedAt   = "delayed_at"
	StepRepeatUntil = "repeat_until"
)

// RUN_STARTED
type RunStartedMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	RunID           string   `json:"run_id"`
	Suite           string   `json:"suite"`
	Name            string   `json:"name"`
	Structure       string   `json:"structure,omitempty"`
	Rotation        int      `json:"rotation"`
	MaxTicks        int      `json:"max_ticks"`
	Tags            []string `json:"tags,omitempty"`
	Required        bool     `json:"required,omitempty"`
	Origin          [3]int   `json:"origin"`
	StartedAtUnixMS int64    `json:"started_at_unix_ms"`
}

// STEP is emitted once per executed step. Polls of a RepeatUntil predicate
// that are still unsatisfied are not reported.
type StepMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Tick            uint64 `json:"tick"`
	Kind            string `json:"kind"`
	Seq             uint64 `json:"seq"`
	Label           string `json:"label,omitempty"`
	Error           string `json:"error,omitempty"`
}

// RUN_FINISHED
type RunFinishedMsg struct {
	Type             string `json:"type"`
	ProtocolVersion  string `json:"protocol_version"`
	RunID            string `json:"run_id"`
	Suite            string `json:"suite"`
	Name             string `json:"name"`
	Rotation         int    `json:"rotation"`
	Status           string `json:"status"`
	Code             string `json:"code,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Tick             uint64 `json:"tick"`
	Required         bool   `json:"required,omitempty"`
	WorldDigest      string `json:"world_digest,omitempty"`
	FinishedAtUnixMS int64  `json:"finished_at_unix_ms"`
	DurationMS       int64  `json:"duration_ms"`
}

// SUMMARY closes a batch.
type SummaryMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Total           int    `json:"total"`
	Passed          int    `json:"passed"`
	Failed          int    `json:"failed"`
	TimedOut        int    `json:"timed_out"`
	RequiredFailed  int    `json:"required_failed"`
	OK              bool   `json:"ok"`
}
