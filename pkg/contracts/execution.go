package contracts

import "time"

// ToolResultStatus is the terminal state of one dispatched tool call.
type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultError   ToolResultStatus = "error"
)

// ToolResult is the outcome of a single tool call, tagged with the index of
// the call that produced it so partial failure stays attributable.
type ToolResult struct {
	Index     int              `json:"index"`
	Tool      string           `json:"tool"`
	Status    ToolResultStatus `json:"status"`
	Result    any              `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ExecutionRecord aggregates the outcomes of one execution request under a
// single execution identifier. Results length always equals the number of
// submitted tool calls; one call's failure never suppresses its siblings'
// entries.
type ExecutionRecord struct {
	ExecutionID string       `json:"execution_id"`
	OK          bool         `json:"ok"`
	Results     []ToolResult `json:"results"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
}

// ErrorCount returns the number of error results in the record.
func (r *ExecutionRecord) ErrorCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == ToolResultError {
			n++
		}
	}
	return n
}
