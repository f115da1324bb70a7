// Package scenario loads declarative YAML test files. A file names a suite
// and lists tests; each test is a sequence of timed steps and wait-until
// conditions written as expr-lang expressions over the fixture.
package scenario

// File is the top level of a scenario document.
type File struct {
	Suite    string      `yaml:"suite"`
	Defaults Defaults    `yaml:"defaults"`
	Tests    []TestEntry `yaml:"tests"`
}

type Defaults struct {
	MaxTicks   int      `yaml:"max_ticks"`
	Structure  string   `yaml:"structure"`
	SetupTicks int      `yaml:"setup_ticks"`
	Tags       []string `yaml:"tags"`
}

type TestEntry struct {
	Name       string      `yaml:"name"`
	Structure  string      `yaml:"structure"`
	MaxTicks   int         `yaml:"max_ticks"`
	SetupTicks *int        `yaml:"setup_ticks"`
	Tags       []string    `yaml:"tags"`
	Rotate     bool        `yaml:"rotate"`
	Required   *bool       `yaml:"required"`
	Steps      []StepEntry `yaml:"steps"`
}

// StepEntry is either a timed step (at/after, do, assert, succeed) or a wait
// (until, timeout, do, succeed). Steps are anchored on a cursor tick: at
// moves the cursor to an absolute tick, after moves it forward, and a wait
// starts polling on the cursor tick without moving it.
type StepEntry struct {
	At      *int          `yaml:"at"`
	After   *int          `yaml:"after"`
	Do      []ActionEntry `yaml:"do"`
	Assert  string        `yaml:"assert"`
	Until   string        `yaml:"until"`
	Timeout int           `yaml:"timeout"`
	Succeed bool          `yaml:"succeed"`
	Message string        `yaml:"message"`
}

// ActionEntry holds exactly one action.
type ActionEntry struct {
	SetBlock *SetBlockAction `yaml:"set_block"`
	Spawn    *SpawnAction    `yaml:"spawn"`
	Interact []int           `yaml:"interact"`
	Walk     *WalkAction     `yaml:"walk"`
	Remove   string          `yaml:"remove"`
	Succeed  bool            `yaml:"succeed"`
	Fail     string          `yaml:"fail"`
}

type SetBlockAction struct {
	Block string `yaml:"block"`
	Pos   []int  `yaml:"pos"`
}

type SpawnAction struct {
	Type string `yaml:"type"`
	Pos  []int  `yaml:"pos"`
	// As names the entity for later walk/remove actions and expressions.
	As string `yaml:"as"`
}

type WalkAction struct {
	Entity string `yaml:"entity"`
	To     []int  `yaml:"to"`
}
