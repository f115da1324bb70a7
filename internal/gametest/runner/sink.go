package runner

import "voxelcraft.ai/gametest/internal/protocol"

// Sink receives run events in order. Implementations must not block for
// long; the driver calls them inline between ticks.
type Sink interface {
	RunStarted(protocol.RunStartedMsg)
	StepExecuted(protocol.StepMsg)
	RunFinished(protocol.RunFinishedMsg)
	BatchFinished(protocol.SummaryMsg)
}

type NopSink struct{}

func (NopSink) RunStarted(protocol.RunStartedMsg)   {}
func (NopSink) StepExecuted(protocol.StepMsg)       {}
func (NopSink) RunFinished(protocol.RunFinishedMsg) {}
func (NopSink) BatchFinished(protocol.SummaryMsg)   {}

// MultiSink fans every event out to each sink in order.
type MultiSink []Sink

func (m MultiSink) RunStarted(msg protocol.RunStartedMsg) {
	for _, s := range m {
		s.RunStarted(msg)
	}
}

func (m MultiSink) StepExecuted(msg protocol.StepMsg) {
	for _, s := range m {
		s.StepExecuted(msg)
	}
}

func (m MultiSink) RunFinished(msg protocol.RunFinishedMsg) {
	for _, s := range m {
		s.RunFinished(msg)
	}
}

func (m MultiSink) BatchFinished(msg protocol.SummaryMsg) {
	for _, s := range m {
		s.BatchFinished(msg)
	}
}
