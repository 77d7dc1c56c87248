package contracts

// ToolCall is a concrete instruction to an external system, derived
// deterministically from one plan action via the static type→tool table.
type ToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`

	// DryRun is forwarded from the originating action, defaulted to true
	// when the action left it unspecified.
	DryRun bool `json:"dry_run"`

	// ExpectDiff describes the anticipated side effects. Always populated,
	// even for dry runs: approvers read it before authorizing a live run.
	ExpectDiff string `json:"expect_diff"`
}
