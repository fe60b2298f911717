package types

// ExecutionResult is the result of one command run inside the sandbox.
type ExecutionResult struct {
	ExecID     string `json:"execID"`
	Command    string `json:"cmd"`
	Distro     string `json:"distro"`
	Output     string `json:"output"`
	ExitCode   int    `json:"exitCode"`
	Truncated  bool   `json:"truncated"`
	TimedOut   bool   `json:"timedOut,omitempty"`
	Repaired   bool   `json:"repaired,omitempty"`
	Notice     string `json:"notice,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// TermRequest is the request body for running a command.
type TermRequest struct {
	Command string `json:"command"`
}
