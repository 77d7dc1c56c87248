package approval

import (
	"fmt"

	"github.com/stratus-ops/conductor/pkg/contracts"
)

// Gate decides whether a plan may proceed at its assessed risk level. The
// gate declares what approval is needed and delegates token checking to the
// TokenValidator collaborator; it never inspects token internals itself.
type Gate struct {
	validator TokenValidator
}

// NewGate creates a gate backed by the given validator.
func NewGate(validator TokenValidator) *Gate {
	return &Gate{validator: validator}
}

// RequiredApprovals returns the human sign-offs the plan needs at the given
// risk level, in a stable order.
//
// LOW requires none. MEDIUM requires exactly one plan-level approval. HIGH
// requires the plan-level approval plus one per distinct irreversible action
// type, so a plan with several independently catastrophic actions demands
// several independent sign-offs.
func (g *Gate) RequiredApprovals(plan *contracts.ExecutionPlan, assessment contracts.RiskAssessment) []contracts.ApprovalRequest {
	if assessment.Level == contracts.RiskLow {
		return nil
	}

	approvals := []contracts.ApprovalRequest{{
		CheckpointID: PlanCheckpointID,
		Reason: fmt.Sprintf("plan %q assessed %s (score %.2f) requires operator approval",
			plan.Goal, assessment.Level, assessment.Score),
	}}

	if assessment.Level == contracts.RiskHigh {
		for _, actionType := range plan.IrreversibleActionTypeSet() {
			approvals = append(approvals, contracts.ApprovalRequest{
				CheckpointID: "action:" + string(actionType),
				Reason:       fmt.Sprintf("irreversible action %q requires a dedicated approval at HIGH risk", actionType),
				ActionType:   actionType,
			})
		}
	}

	return approvals
}

// CheckpointIDs extracts the checkpoint identifiers from approval requests,
// preserving order.
func CheckpointIDs(approvals []contracts.ApprovalRequest) []string {
	if len(approvals) == 0 {
		return nil
	}
	ids := make([]string, 0, len(approvals))
	for _, a := range approvals {
		ids = append(ids, a.CheckpointID)
	}
	return ids
}

// Allows reports whether the plan may proceed to tool mapping and execution.
//
// A failed hard verification blocks unconditionally: no token, however valid,
// overrides it. Otherwise LOW passes without a token and MEDIUM/HIGH pass
// only once the supplied token validates against the plan hash and covers
// every checkpoint the level demands.
func (g *Gate) Allows(plan *contracts.ExecutionPlan, assessment contracts.RiskAssessment, verifications []contracts.Verification, token string) (bool, error) {
	if contracts.HasHardFailure(verifications) {
		return false, nil
	}

	if assessment.Level == contracts.RiskLow {
		return true, nil
	}

	required := CheckpointIDs(g.RequiredApprovals(plan, assessment))
	if err := g.validator.ValidateApproval(token, plan.Hash, required); err != nil {
		return false, err
	}
	return true, nil
}
