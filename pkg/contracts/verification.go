package contracts

// Verification is the outcome of one policy check run against a plan.
// Produced in a batch by the policy verifier, consumed by the risk assessor
// and the approval gate, never mutated.
type Verification struct {
	Type   string `json:"type"`
	Result string `json:"result"`
	Pass   bool   `json:"pass"`

	// Hard marks a policy-defined hard failure. A failed hard check blocks
	// execution irrespective of risk level or supplied approvals.
	Hard bool `json:"hard,omitempty"`
}

// HasHardFailure reports whether any verification in the batch is a failed
// hard check.
func HasHardFailure(verifications []Verification) bool {
	for _, v := range verifications {
		if v.Hard && !v.Pass {
			return true
		}
	}
	return false
}

// FailedCount returns the number of failed verifications in the batch.
func FailedCount(verifications []Verification) int {
	n := 0
	for _, v := range verifications {
		if !v.Pass {
			n++
		}
	}
	return n
}
