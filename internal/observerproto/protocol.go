package observerproto

// Version is the observer protocol version (separate from the run event
// protocol carried inside it).
const Version = "0.1"

const TypeSubscribe = "SUBSCRIBE"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Suites limits run events to these suites; empty means all.
	Suites []string `json:"suites,omitempty"`
	// Steps opts in to STEP events, which are far more frequent than the rest.
	Steps bool `json:"steps,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion    string   `json:"protocol_version"`
	RunProtocolVersion string   `json:"run_protocol_version"`
	Suites             []string `json:"suites"`
	Tests              int      `json:"tests"`
}
