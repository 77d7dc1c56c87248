package contracts

// ApprovalRequest is a single human sign-off the gate demands before a plan
// may execute live. One plan may require zero, one or many; the count scales
// with risk level and with the number of independent critical actions.
type ApprovalRequest struct {
	// CheckpointID distinguishes independent approvals for the same plan.
	CheckpointID string `json:"checkpoint_id"`

	// Reason is the human-readable justification shown to the approver.
	Reason string `json:"reason"`

	// ActionType is set when the approval is bound to one critical action
	// type rather than the plan as a whole.
	ActionType ActionType `json:"action_type,omitempty"`
}
